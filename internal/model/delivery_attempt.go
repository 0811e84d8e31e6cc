package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryStatus is the lifecycle state of a DeliveryAttempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	// DeliverySkipped marks a channel that was not applicable at send time
	// (no live connections, no tokens, no email address). Terminal, never
	// retried, distinct from failure.
	DeliverySkipped DeliveryStatus = "skipped"
	DeliveryFailed  DeliveryStatus = "failed"
)

// DeliveryAttempt tracks one channel's delivery of one notification.
// A pending row with a due NextRetryAt is the unit of work the retry
// worker claims; attempts therefore survive process restarts.
type DeliveryAttempt struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	NotificationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"notification_id"`
	Channel        Channel        `gorm:"type:varchar(20);not null" json:"channel"`
	Status         DeliveryStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_delivery_due" json:"status"`
	AttemptCount   int            `gorm:"not null;default:0" json:"attempt_count"`
	LastError      string         `gorm:"type:text" json:"last_error,omitempty"`
	NextRetryAt    *time.Time     `gorm:"index:idx_delivery_due" json:"next_retry_at,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	Notification *Notification `gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (a *DeliveryAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Terminal reports whether no further work will happen for this attempt.
func (a *DeliveryAttempt) Terminal() bool {
	return a.Status == DeliverySent || a.Status == DeliverySkipped || a.Status == DeliveryFailed
}
