package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wavegram/notify-engine/internal/repository"
)

// unreadCacheTTL bounds how long a cached unread count can outlive a
// missed invalidation before a recount corrects it.
const unreadCacheTTL = 5 * time.Minute

// ReadService owns read/unread transitions and the unread counter.
// The database count is the source of truth; redis only caches it, and
// every mutation invalidates the cache so the two can never drift apart
// for longer than one read.
type ReadService interface {
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	// MarkAllRead flips every unread row in one statement and returns how
	// many it flipped. Rows created afterwards stay unread.
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	// InvalidateCount drops the cached counter after any mutation that
	// changes the unread set (new notification, deletion).
	InvalidateCount(ctx context.Context, userID uuid.UUID)
}

type readService struct {
	notifications repository.NotificationRepository
	redisClient   *redis.Client // nil falls back to plain recounts
}

func NewReadService(notifications repository.NotificationRepository, redisClient *redis.Client) ReadService {
	return &readService{notifications: notifications, redisClient: redisClient}
}

func unreadKey(userID uuid.UUID) string {
	return fmt.Sprintf("notifications:unread:%s", userID)
}

func (s *readService) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.notifications.MarkAsRead(ctx, id, userID); err != nil {
		return err
	}
	s.InvalidateCount(ctx, userID)
	return nil
}

func (s *readService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	updated, err := s.notifications.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	// Invalidate rather than write 0: a notification emitted while the
	// sweep runs would have its Del overwritten by the Set, pinning a
	// stale zero for a full TTL.
	s.InvalidateCount(ctx, userID)
	return updated, nil
}

func (s *readService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if s.redisClient != nil {
		cached, err := s.redisClient.Get(ctx, unreadKey(userID)).Int64()
		if err == nil && cached >= 0 {
			return cached, nil
		}
	}

	count, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.redisClient != nil {
		if err := s.redisClient.Set(ctx, unreadKey(userID), count, unreadCacheTTL).Err(); err != nil {
			log.Printf("unread cache set failed for %s: %v", userID, err)
		}
	}
	return count, nil
}

func (s *readService) InvalidateCount(ctx context.Context, userID uuid.UUID) {
	if s.redisClient == nil {
		return
	}
	if err := s.redisClient.Del(ctx, unreadKey(userID)).Err(); err != nil {
		log.Printf("unread cache invalidation failed for %s: %v", userID, err)
	}
}
