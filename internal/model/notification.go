package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType enumerates the domain events that produce notifications.
type NotificationType string

const (
	TypeLike    NotificationType = "like"
	TypeComment NotificationType = "comment"
	TypeFollow  NotificationType = "follow"
	TypeMessage NotificationType = "message"
	TypeMention NotificationType = "mention"
	TypeSystem  NotificationType = "system"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeLike, TypeComment, TypeFollow, TypeMessage, TypeMention, TypeSystem:
		return true
	}
	return false
}

// Groupable reports whether repeated events of this type collapse into a
// single notification. Messages and mentions are individually significant
// and never grouped; system notices have no grouping cause.
func (t NotificationType) Groupable() bool {
	switch t {
	case TypeLike, TypeComment, TypeFollow:
		return true
	}
	return false
}

// MaxDisplayActors caps how many actor names are kept for display text.
const MaxDisplayActors = 3

type Notification struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID        `gorm:"type:uuid;not null;index:idx_notifications_recipient_read" json:"recipient_id"`
	SenderID    *uuid.UUID       `gorm:"type:uuid" json:"sender_id,omitempty"` // nil for system notifications
	Type        NotificationType `gorm:"type:varchar(20);not null;index" json:"type"`
	TargetType  TargetType       `gorm:"type:varchar(20)" json:"target_type,omitempty"`
	TargetID    uuid.UUID        `gorm:"type:uuid" json:"target_id,omitempty"`
	Text        string           `gorm:"type:text" json:"text"`
	PreviewText string           `gorm:"type:text" json:"preview_text,omitempty"`

	// Grouping state. GroupKey collapses repeated events for the same
	// (recipient, type, target) while the row is unread. ActorIDs holds
	// every contributing sender so the same cause can never double-count;
	// ActorNames keeps only the first MaxDisplayActors for display.
	GroupKey       string   `gorm:"type:varchar(64);index:idx_notifications_group" json:"-"`
	AggregateCount int      `gorm:"not null;default:1" json:"aggregate_count"`
	ActorIDs       []string `gorm:"serializer:json" json:"-"`
	ActorNames     []string `gorm:"serializer:json" json:"actor_names,omitempty"`

	IsRead    bool      `gorm:"default:false;index:idx_notifications_recipient_read" json:"is_read"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`

	Recipient *User `gorm:"foreignKey:RecipientID" json:"-"`
	Sender    *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// Target returns the tagged reference this notification points at.
func (n *Notification) Target() TargetRef {
	return TargetRef{Type: n.TargetType, ID: n.TargetID}
}

// GroupKeyFor derives the collapse key for a (recipient, type, target)
// triple. Senders are deliberately excluded so different actors land in
// the same group.
func GroupKeyFor(recipient uuid.UUID, t NotificationType, target TargetRef) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", recipient, t, target.Type, target.ID)))
	return hex.EncodeToString(sum[:])
}

// DisplayText renders the user-facing text from the current actors and
// aggregate count, e.g. "Alice and 12 others liked your post".
func (n *Notification) DisplayText() string {
	if len(n.ActorNames) == 0 {
		if n.Text != "" {
			return n.Text
		}
		return "You have a new notification"
	}

	var subject string
	switch {
	case n.AggregateCount == 1:
		subject = n.ActorNames[0]
	case n.AggregateCount == 2 && len(n.ActorNames) >= 2:
		subject = fmt.Sprintf("%s and %s", n.ActorNames[0], n.ActorNames[1])
	default:
		subject = fmt.Sprintf("%s and %d others", n.ActorNames[0], n.AggregateCount-1)
	}

	switch n.Type {
	case TypeLike:
		return subject + " liked your post"
	case TypeComment:
		return subject + " commented on your post"
	case TypeFollow:
		return subject + " started following you"
	case TypeMessage:
		return subject + " sent you a message"
	case TypeMention:
		return subject + " mentioned you"
	default:
		return "You have a new notification"
	}
}

// TimeAgo returns a compact human-readable age for API payloads.
func (n *Notification) TimeAgo(now time.Time) string {
	diff := now.Sub(n.CreatedAt)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return n.CreatedAt.Format("Jan 02")
	}
}
