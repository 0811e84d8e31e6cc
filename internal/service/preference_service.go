package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/internal/repository"
)

// PreferenceUpdate carries a partial update of the channel matrix; nil
// fields are left untouched.
type PreferenceUpdate struct {
	LikePush  *bool `json:"like_push"`
	LikeEmail *bool `json:"like_email"`
	LikeInApp *bool `json:"like_in_app"`

	CommentPush  *bool `json:"comment_push"`
	CommentEmail *bool `json:"comment_email"`
	CommentInApp *bool `json:"comment_in_app"`

	FollowPush  *bool `json:"follow_push"`
	FollowEmail *bool `json:"follow_email"`
	FollowInApp *bool `json:"follow_in_app"`

	MessagePush  *bool `json:"message_push"`
	MessageEmail *bool `json:"message_email"`
	MessageInApp *bool `json:"message_in_app"`

	MentionPush  *bool `json:"mention_push"`
	MentionEmail *bool `json:"mention_email"`
	MentionInApp *bool `json:"mention_in_app"`
}

// PreferencesView is the API shape: the matrix plus registered tokens.
type PreferencesView struct {
	model.NotificationPreference
	FCMTokens []string `json:"fcm_tokens"`
}

type PreferenceService interface {
	Get(ctx context.Context, userID uuid.UUID) (*PreferencesView, error)
	Update(ctx context.Context, userID uuid.UUID, update PreferenceUpdate) (*PreferencesView, error)
	AddToken(ctx context.Context, userID uuid.UUID, token string) (*PreferencesView, error)
	RemoveToken(ctx context.Context, userID uuid.UUID, token string) (*PreferencesView, error)
}

type preferenceService struct {
	preferences repository.PreferenceRepository
}

func NewPreferenceService(preferences repository.PreferenceRepository) PreferenceService {
	return &preferenceService{preferences: preferences}
}

func (s *preferenceService) Get(ctx context.Context, userID uuid.UUID) (*PreferencesView, error) {
	pref, err := s.preferences.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, pref)
}

func (s *preferenceService) Update(ctx context.Context, userID uuid.UUID, update PreferenceUpdate) (*PreferencesView, error) {
	pref, err := s.preferences.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	apply := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&pref.LikePush, update.LikePush)
	apply(&pref.LikeEmail, update.LikeEmail)
	apply(&pref.LikeInApp, update.LikeInApp)
	apply(&pref.CommentPush, update.CommentPush)
	apply(&pref.CommentEmail, update.CommentEmail)
	apply(&pref.CommentInApp, update.CommentInApp)
	apply(&pref.FollowPush, update.FollowPush)
	apply(&pref.FollowEmail, update.FollowEmail)
	apply(&pref.FollowInApp, update.FollowInApp)
	apply(&pref.MessagePush, update.MessagePush)
	apply(&pref.MessageEmail, update.MessageEmail)
	apply(&pref.MessageInApp, update.MessageInApp)
	apply(&pref.MentionPush, update.MentionPush)
	apply(&pref.MentionEmail, update.MentionEmail)
	apply(&pref.MentionInApp, update.MentionInApp)

	if err := s.preferences.Update(ctx, pref); err != nil {
		return nil, err
	}
	return s.view(ctx, pref)
}

func (s *preferenceService) AddToken(ctx context.Context, userID uuid.UUID, token string) (*PreferencesView, error) {
	if _, err := s.preferences.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.preferences.AddToken(ctx, userID, token); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *preferenceService) RemoveToken(ctx context.Context, userID uuid.UUID, token string) (*PreferencesView, error) {
	if err := s.preferences.RemoveToken(ctx, userID, token); err != nil {
		return nil, err
	}
	return s.Get(ctx, userID)
}

func (s *preferenceService) view(ctx context.Context, pref *model.NotificationPreference) (*PreferencesView, error) {
	tokens, err := s.preferences.TokensByUser(ctx, pref.UserID)
	if err != nil {
		return nil, err
	}
	view := &PreferencesView{NotificationPreference: *pref, FCMTokens: make([]string, 0, len(tokens))}
	for _, t := range tokens {
		view.FCMTokens = append(view.FCMTokens, t.Token)
	}
	return view, nil
}
