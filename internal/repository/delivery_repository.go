package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wavegram/notify-engine/internal/model"
	"gorm.io/gorm"
)

// retryLease bounds how long a pending attempt may sit in flight before
// the retry worker is allowed to pick it up. Every pending row always
// carries a due time, so an attempt orphaned by a crash, whether before
// its first send or mid-retry, comes due again once the lease expires.
const retryLease = time.Minute

type DeliveryRepository interface {
	// CreatePending persists one pending attempt per channel before any
	// send starts. Each row is created with a due time one lease ahead:
	// a crash between here and the send leaves recoverable rows, not
	// silently stuck ones.
	CreatePending(ctx context.Context, notificationID uuid.UUID, channels []model.Channel) ([]model.DeliveryAttempt, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error
	// RecordFailure increments the attempt counter and either schedules the
	// next retry or, when nextRetryAt is nil, fails the attempt terminally.
	RecordFailure(ctx context.Context, id uuid.UUID, cause string, nextRetryAt *time.Time) error
	// DueAttempts claims pending attempts whose due time has passed by
	// pushing their due time one lease ahead.
	DueAttempts(ctx context.Context, now time.Time, limit int) ([]model.DeliveryAttempt, error)
	ByNotification(ctx context.Context, notificationID uuid.UUID) ([]model.DeliveryAttempt, error)
}

type deliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

func (r *deliveryRepository) CreatePending(ctx context.Context, notificationID uuid.UUID, channels []model.Channel) ([]model.DeliveryAttempt, error) {
	due := time.Now().Add(retryLease)
	attempts := make([]model.DeliveryAttempt, 0, len(channels))
	for _, ch := range channels {
		attempts = append(attempts, model.DeliveryAttempt{
			NotificationID: notificationID,
			Channel:        ch,
			Status:         model.DeliveryPending,
			NextRetryAt:    &due,
		})
	}
	if len(attempts) == 0 {
		return attempts, nil
	}
	if err := r.db.WithContext(ctx).Create(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *deliveryRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&model.DeliveryAttempt{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        model.DeliverySent,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    "",
			"next_retry_at": nil,
		}).Error
}

func (r *deliveryRepository) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).Model(&model.DeliveryAttempt{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        model.DeliverySkipped,
			"last_error":    reason,
			"next_retry_at": nil,
		}).Error
}

func (r *deliveryRepository) RecordFailure(ctx context.Context, id uuid.UUID, cause string, nextRetryAt *time.Time) error {
	updates := map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    cause,
		"next_retry_at": nextRetryAt,
	}
	if nextRetryAt == nil {
		updates["status"] = model.DeliveryFailed
	}
	return r.db.WithContext(ctx).Model(&model.DeliveryAttempt{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *deliveryRepository) DueAttempts(ctx context.Context, now time.Time, limit int) ([]model.DeliveryAttempt, error) {
	var candidates []model.DeliveryAttempt
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", model.DeliveryPending, now).
		Order("next_retry_at asc").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	// Claiming pushes the due time one lease ahead rather than clearing
	// it: overlapping ticks cannot double-claim, and an attempt orphaned
	// mid-retry by a crash comes due again after the lease expires. A row
	// whose claim update fails stays unclaimed and is retried next tick.
	lease := now.Add(retryLease)
	claimed := make([]model.DeliveryAttempt, 0, len(candidates))
	var errs []error
	for i := range candidates {
		if err := r.db.WithContext(ctx).Model(&candidates[i]).
			Update("next_retry_at", lease).Error; err != nil {
			errs = append(errs, err)
			continue
		}
		candidates[i].NextRetryAt = &lease
		claimed = append(claimed, candidates[i])
	}
	return claimed, errors.Join(errs...)
}

func (r *deliveryRepository) ByNotification(ctx context.Context, notificationID uuid.UUID) ([]model.DeliveryAttempt, error) {
	var attempts []model.DeliveryAttempt
	err := r.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("created_at asc").
		Find(&attempts).Error
	return attempts, err
}
