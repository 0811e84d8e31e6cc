package repository

import (
	"context"
	"errors"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/pkg/apperror"
	"gorm.io/gorm"
)

// NotificationFilter narrows listing queries.
type NotificationFilter struct {
	IsRead *bool
	Type   model.NotificationType
}

type NotificationRepository interface {
	// UpsertGrouped either creates a fresh notification or folds the event
	// into the existing unread group for the same key. The returned bool is
	// true when a new row was created. Folding the same actor into the same
	// group twice is a no-op, so identical causes never double-count.
	UpsertGrouped(ctx context.Context, n *model.Notification) (*model.Notification, bool, error)
	Create(ctx context.Context, n *model.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	GetByRecipient(ctx context.Context, userID uuid.UUID, filter NotificationFilter, limit, offset int) ([]model.Notification, int64, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	DeleteOldRead(ctx context.Context, cutoff time.Time) (int64, error)
}

const groupShards = 64

type notificationRepository struct {
	db *gorm.DB

	// Striped locks serialize grouping per group key. The registry serving
	// live connections already pins one engine process per deployment, so
	// in-process striping is what makes the fold atomic.
	groupMu [groupShards]sync.Mutex
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) groupLock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &r.groupMu[h.Sum32()%groupShards]
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) UpsertGrouped(ctx context.Context, n *model.Notification) (*model.Notification, bool, error) {
	mu := r.groupLock(n.GroupKey)
	mu.Lock()
	defer mu.Unlock()

	var existing model.Notification
	err := r.db.WithContext(ctx).
		Where("group_key = ? AND recipient_id = ? AND is_read = ?", n.GroupKey, n.RecipientID, false).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
			return nil, false, err
		}
		return n, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	actor := ""
	if len(n.ActorIDs) > 0 {
		actor = n.ActorIDs[0]
	}
	if actor == "" || slices.Contains(existing.ActorIDs, actor) {
		// Same cause reported twice; the group already accounts for it.
		return &existing, false, nil
	}

	existing.ActorIDs = append(existing.ActorIDs, actor)
	if len(existing.ActorNames) < model.MaxDisplayActors && len(n.ActorNames) > 0 {
		existing.ActorNames = append(existing.ActorNames, n.ActorNames[0])
	}
	existing.AggregateCount++
	existing.Text = existing.DisplayText()
	existing.CreatedAt = time.Now()

	err = r.db.WithContext(ctx).Model(&existing).
		Select("aggregate_count", "actor_ids", "actor_names", "text", "created_at").
		Updates(&existing).Error
	if err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var n model.Notification
	err := r.db.WithContext(ctx).
		Preload("Sender", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "full_name", "avatar_url")
		}).
		First(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepository) GetByRecipient(ctx context.Context, userID uuid.UUID, filter NotificationFilter, limit, offset int) ([]model.Notification, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Notification{}).Where("recipient_id = ?", userID)
	if filter.IsRead != nil {
		q = q.Where("is_read = ?", *filter.IsRead)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notifications []model.Notification
	err := q.Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Preload("Sender", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "full_name", "avatar_url")
		}).
		Find(&notifications).Error
	return notifications, total, err
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

// MarkAllAsRead is a single batched UPDATE: rows created after the
// statement runs stay unread, and no partially-flipped window is visible.
func (r *notificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *notificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, userID).
		Delete(&model.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) DeleteOldRead(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&model.Notification{})
	return res.RowsAffected, res.Error
}
