package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/internal/repository"
	"github.com/wavegram/notify-engine/pkg/apperror"
)

// Dispatcher schedules channel fan-out for a stored notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, notificationID uuid.UUID)
}

// EmitInput describes one domain event reported by a collaborator app,
// e.g. "user A liked post P owned by user B".
type EmitInput struct {
	RecipientID uuid.UUID
	Type        model.NotificationType
	SenderID    *uuid.UUID // nil for system notifications
	Target      model.TargetRef
	Text        string // preview / override text, optional
}

// IngestService is the single entry point collaborators call to report a
// domain event. Emit returns as soon as the notification row exists;
// delivery happens in the background and its failures never reach the
// caller.
type IngestService interface {
	// Emit stores the event as a (possibly grouped) notification and
	// schedules delivery. A uuid.Nil id with a nil error means the event
	// was deliberately dropped (self-action, or in-app disabled).
	Emit(ctx context.Context, input EmitInput) (uuid.UUID, error)
}

type ingestService struct {
	users         repository.UserRepository
	notifications repository.NotificationRepository
	preferences   repository.PreferenceRepository
	reads         ReadService
	dispatcher    Dispatcher // nil disables background delivery (tests)
}

func NewIngestService(
	users repository.UserRepository,
	notifications repository.NotificationRepository,
	preferences repository.PreferenceRepository,
	reads ReadService,
	dispatcher Dispatcher,
) IngestService {
	return &ingestService{
		users:         users,
		notifications: notifications,
		preferences:   preferences,
		reads:         reads,
		dispatcher:    dispatcher,
	}
}

func (s *ingestService) Emit(ctx context.Context, input EmitInput) (uuid.UUID, error) {
	if !input.Type.Valid() {
		return uuid.Nil, fmt.Errorf("%w: unknown notification type %q", apperror.ErrInvalidInput, input.Type)
	}

	// Users never get notified about their own actions.
	if input.SenderID != nil && *input.SenderID == input.RecipientID {
		return uuid.Nil, nil
	}

	recipient, err := s.users.FindByID(ctx, input.RecipientID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", apperror.ErrRecipientUnavailable, err)
	}
	if !recipient.IsActive {
		return uuid.Nil, apperror.ErrRecipientUnavailable
	}

	prefs, err := s.preferences.GetOrCreate(ctx, input.RecipientID)
	if err != nil {
		return uuid.Nil, err
	}
	if !prefs.IsEnabled(input.Type, model.ChannelInApp) {
		// The stored record doubles as the in-app feed; the user asked for
		// neither, so there is nothing to create or deliver.
		return uuid.Nil, nil
	}

	n := &model.Notification{
		RecipientID:    input.RecipientID,
		SenderID:       input.SenderID,
		Type:           input.Type,
		TargetType:     input.Target.Type,
		TargetID:       input.Target.ID,
		PreviewText:    input.Text,
		GroupKey:       model.GroupKeyFor(input.RecipientID, input.Type, input.Target),
		AggregateCount: 1,
	}

	if input.SenderID != nil {
		sender, err := s.users.FindByID(ctx, *input.SenderID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("sender lookup: %w", err)
		}
		n.ActorIDs = []string{sender.ID.String()}
		n.ActorNames = []string{sender.DisplayName()}
	}
	n.Text = n.DisplayText()
	if input.Type == model.TypeSystem && input.Text != "" {
		n.Text = input.Text
	}

	created := true
	if input.Type.Groupable() {
		n, created, err = s.notifications.UpsertGrouped(ctx, n)
	} else {
		err = s.notifications.Create(ctx, n)
	}
	if err != nil {
		return uuid.Nil, err
	}

	if created && s.reads != nil {
		s.reads.InvalidateCount(ctx, input.RecipientID)
	}

	if s.dispatcher != nil {
		// Fire and return: the emitting code path never waits on channels.
		// The pending DeliveryAttempt rows written by the dispatcher are
		// what make this recoverable, not this goroutine.
		id := n.ID
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("dispatch panic for notification %s: %v", id, r)
				}
			}()
			s.dispatcher.Dispatch(context.Background(), id)
		}()
	}

	return n.ID, nil
}
