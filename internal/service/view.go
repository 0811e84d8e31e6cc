package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wavegram/notify-engine/internal/model"
)

// SenderView is the compact actor shape embedded in notification payloads.
type SenderView struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
}

// NotificationView is the API-facing shape of a notification, shared by the
// REST listing and the WebSocket envelope.
type NotificationView struct {
	ID             uuid.UUID              `json:"id"`
	RecipientID    uuid.UUID              `json:"recipient_id"`
	Type           model.NotificationType `json:"notification_type"`
	Text           string                 `json:"text"`
	Link           string                 `json:"link,omitempty"`
	Target         *model.TargetPreview   `json:"target,omitempty"`
	Sender         *SenderView            `json:"sender,omitempty"`
	ActorNames     []string               `json:"actor_names,omitempty"`
	AggregateCount int                    `json:"aggregate_count"`
	IsRead         bool                   `json:"is_read"`
	CreatedAt      time.Time              `json:"created_at"`
	TimeAgo        string                 `json:"time_ago"`
}

// NewNotificationView builds the API shape, resolving the target preview
// through the registered resolvers.
func NewNotificationView(ctx context.Context, n *model.Notification, resolvers model.ResolverRegistry) NotificationView {
	view := NotificationView{
		ID:             n.ID,
		RecipientID:    n.RecipientID,
		Type:           n.Type,
		Text:           n.DisplayText(),
		Link:           n.Target().Link(),
		Target:         resolvers.Resolve(ctx, n.Target(), n.PreviewText),
		ActorNames:     n.ActorNames,
		AggregateCount: n.AggregateCount,
		IsRead:         n.IsRead,
		CreatedAt:      n.CreatedAt,
		TimeAgo:        n.TimeAgo(time.Now()),
	}
	if n.Sender != nil {
		view.Sender = &SenderView{
			ID:        n.Sender.ID,
			Username:  n.Sender.Username,
			FullName:  n.Sender.FullName,
			AvatarURL: n.Sender.AvatarURL,
		}
	}
	return view
}
