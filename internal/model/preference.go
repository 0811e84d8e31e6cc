package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Channel is a delivery path for a notification.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
)

// NotificationPreference is the per-user channel matrix. One row per user,
// created lazily with the defaults below on first access.
type NotificationPreference struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	LikePush  bool `gorm:"default:true" json:"like_push"`
	LikeEmail bool `gorm:"default:false" json:"like_email"`
	LikeInApp bool `gorm:"default:true" json:"like_in_app"`

	CommentPush  bool `gorm:"default:true" json:"comment_push"`
	CommentEmail bool `gorm:"default:true" json:"comment_email"`
	CommentInApp bool `gorm:"default:true" json:"comment_in_app"`

	FollowPush  bool `gorm:"default:true" json:"follow_push"`
	FollowEmail bool `gorm:"default:false" json:"follow_email"`
	FollowInApp bool `gorm:"default:true" json:"follow_in_app"`

	MessagePush  bool `gorm:"default:true" json:"message_push"`
	MessageEmail bool `gorm:"default:false" json:"message_email"`
	MessageInApp bool `gorm:"default:true" json:"message_in_app"`

	MentionPush  bool `gorm:"default:true" json:"mention_push"`
	MentionEmail bool `gorm:"default:true" json:"mention_email"`
	MentionInApp bool `gorm:"default:true" json:"mention_in_app"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultPreference is the matrix a user starts with: everything in-app
// and push, email only for comments and mentions.
func DefaultPreference(userID uuid.UUID) NotificationPreference {
	return NotificationPreference{
		UserID: userID,

		LikePush: true, LikeEmail: false, LikeInApp: true,
		CommentPush: true, CommentEmail: true, CommentInApp: true,
		FollowPush: true, FollowEmail: false, FollowInApp: true,
		MessagePush: true, MessageEmail: false, MessageInApp: true,
		MentionPush: true, MentionEmail: true, MentionInApp: true,
	}
}

func (p *NotificationPreference) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IsEnabled reports whether the given type is enabled on the given channel.
// System notifications ignore the matrix and are always deliverable in-app.
func (p *NotificationPreference) IsEnabled(t NotificationType, ch Channel) bool {
	if t == TypeSystem {
		return ch == ChannelInApp
	}
	switch t {
	case TypeLike:
		return p.pick(ch, p.LikeInApp, p.LikePush, p.LikeEmail)
	case TypeComment:
		return p.pick(ch, p.CommentInApp, p.CommentPush, p.CommentEmail)
	case TypeFollow:
		return p.pick(ch, p.FollowInApp, p.FollowPush, p.FollowEmail)
	case TypeMessage:
		return p.pick(ch, p.MessageInApp, p.MessagePush, p.MessageEmail)
	case TypeMention:
		return p.pick(ch, p.MentionInApp, p.MentionPush, p.MentionEmail)
	}
	return false
}

func (p *NotificationPreference) pick(ch Channel, inApp, push, email bool) bool {
	switch ch {
	case ChannelInApp:
		return inApp
	case ChannelPush:
		return push
	case ChannelEmail:
		return email
	}
	return false
}

// PushToken is one registered FCM device token. Tokens are unique per user
// and pruned when the provider reports them unregistered.
type PushToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_push_tokens_user_token" json:"user_id"`
	Token     string    `gorm:"size:512;not null;uniqueIndex:idx_push_tokens_user_token" json:"token"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (t *PushToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
