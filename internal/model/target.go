package model

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// TargetType identifies which kind of domain object a notification points at.
type TargetType string

const (
	TargetPost    TargetType = "post"
	TargetComment TargetType = "comment"
	TargetUser    TargetType = "user"
	TargetMessage TargetType = "message"
	TargetStory   TargetType = "story"
	TargetReel    TargetType = "reel"
)

// TargetRef is a tagged reference to the object a notification is about.
// The zero value means "no target" (system notifications).
type TargetRef struct {
	Type TargetType `json:"type"`
	ID   uuid.UUID  `json:"id"`
}

func (t TargetRef) IsZero() bool {
	return t.Type == "" && t.ID == uuid.Nil
}

// Link builds the client navigation path for a target.
func (t TargetRef) Link() string {
	switch t.Type {
	case TargetPost:
		return fmt.Sprintf("/posts/%s/", t.ID)
	case TargetComment:
		return fmt.Sprintf("/posts/%s/", t.ID)
	case TargetUser:
		return fmt.Sprintf("/profile/%s/", t.ID)
	case TargetMessage:
		return fmt.Sprintf("/chat/%s/", t.ID)
	case TargetStory:
		return fmt.Sprintf("/stories/%s/", t.ID)
	case TargetReel:
		return fmt.Sprintf("/reels/%s/", t.ID)
	default:
		return ""
	}
}

// TargetPreview is the minimal denormalized view of a target attached to
// API responses and push payloads.
type TargetPreview struct {
	Type     TargetType `json:"type"`
	ID       uuid.UUID  `json:"id"`
	Text     string     `json:"text,omitempty"`
	ImageURL string     `json:"image_url,omitempty"`
}

// TargetResolver resolves a target id into a preview. Each owning app
// registers one per target type; unresolved targets fall back to the
// preview text captured at emit time.
type TargetResolver func(ctx context.Context, id uuid.UUID) (*TargetPreview, error)

// ResolverRegistry maps target types to their resolvers.
type ResolverRegistry map[TargetType]TargetResolver

// Resolve looks up the preview for ref, falling back to the stored text
// when no resolver is registered or resolution fails.
func (r ResolverRegistry) Resolve(ctx context.Context, ref TargetRef, fallbackText string) *TargetPreview {
	if ref.IsZero() {
		return nil
	}
	if resolve, ok := r[ref.Type]; ok {
		if preview, err := resolve(ctx, ref.ID); err == nil && preview != nil {
			return preview
		}
	}
	return &TargetPreview{Type: ref.Type, ID: ref.ID, Text: fallbackText}
}
