package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/internal/repository"
	"github.com/wavegram/notify-engine/pkg/apperror"
)

// GroupedView folds a user's recent history (read and unread) by
// (type, target) for the digest-style feed.
type GroupedView struct {
	Type            model.NotificationType `json:"notification_type"`
	Target          *model.TargetPreview   `json:"target,omitempty"`
	Count           int                    `json:"count"`
	IsRead          bool                   `json:"is_read"`
	LatestCreatedAt time.Time              `json:"latest_created_at"`
	Text            string                 `json:"text"`
	Notifications   []NotificationView     `json:"notifications"`
}

// NotificationService is the query/management side of the engine, backing
// the REST surface. Delivery never goes through here.
type NotificationService interface {
	List(ctx context.Context, userID uuid.UUID, filter repository.NotificationFilter, page, perPage int) ([]NotificationView, int64, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*NotificationView, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	Grouped(ctx context.Context, userID uuid.UUID, limit int) ([]GroupedView, error)
}

type notificationService struct {
	notifications repository.NotificationRepository
	reads         ReadService
	resolvers     model.ResolverRegistry
}

func NewNotificationService(notifications repository.NotificationRepository, reads ReadService, resolvers model.ResolverRegistry) NotificationService {
	return &notificationService{
		notifications: notifications,
		reads:         reads,
		resolvers:     resolvers,
	}
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID, filter repository.NotificationFilter, page, perPage int) ([]NotificationView, int64, error) {
	offset := (page - 1) * perPage
	items, total, err := s.notifications.GetByRecipient(ctx, userID, filter, perPage, offset)
	if err != nil {
		return nil, 0, err
	}

	views := make([]NotificationView, 0, len(items))
	for i := range items {
		views = append(views, NewNotificationView(ctx, &items[i], s.resolvers))
	}
	return views, total, nil
}

func (s *notificationService) Get(ctx context.Context, id, userID uuid.UUID) (*NotificationView, error) {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != userID {
		return nil, apperror.ErrForbidden
	}
	view := NewNotificationView(ctx, n, s.resolvers)
	return &view, nil
}

func (s *notificationService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	n, err := s.notifications.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.notifications.Delete(ctx, id, userID); err != nil {
		return err
	}
	if !n.IsRead {
		s.reads.InvalidateCount(ctx, userID)
	}
	return nil
}

func (s *notificationService) Grouped(ctx context.Context, userID uuid.UUID, limit int) ([]GroupedView, error) {
	items, _, err := s.notifications.GetByRecipient(ctx, userID, repository.NotificationFilter{}, limit, 0)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		view GroupedView
	}
	buckets := make(map[string]*bucket)
	order := make([]string, 0)

	for i := range items {
		n := &items[i]
		key := string(n.Type) + "|" + string(n.TargetType) + "|" + n.TargetID.String()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{view: GroupedView{
				Type:            n.Type,
				Target:          s.resolvers.Resolve(ctx, n.Target(), n.PreviewText),
				IsRead:          true,
				LatestCreatedAt: n.CreatedAt,
				Text:            n.DisplayText(),
			}}
			buckets[key] = b
			order = append(order, key)
		}
		b.view.Count += n.AggregateCount
		if !n.IsRead {
			b.view.IsRead = false
		}
		if n.CreatedAt.After(b.view.LatestCreatedAt) {
			b.view.LatestCreatedAt = n.CreatedAt
			b.view.Text = n.DisplayText()
		}
		b.view.Notifications = append(b.view.Notifications, NewNotificationView(ctx, n, s.resolvers))
	}

	grouped := make([]GroupedView, 0, len(order))
	for _, key := range order {
		grouped = append(grouped, buckets[key].view)
	}
	sort.Slice(grouped, func(i, j int) bool {
		return grouped[i].LatestCreatedAt.After(grouped[j].LatestCreatedAt)
	})
	return grouped, nil
}
