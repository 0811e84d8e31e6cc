package service

import (
	"context"
	"log"
	"time"

	"github.com/wavegram/notify-engine/internal/repository"
)

// CleanupWorker prunes read notifications older than maxAge so the feed
// table does not grow without bound. Unread rows are kept regardless of
// age.
type CleanupWorker struct {
	notifications repository.NotificationRepository
	interval      time.Duration
	maxAge        time.Duration
}

func NewCleanupWorker(notifications repository.NotificationRepository, interval, maxAge time.Duration) *CleanupWorker {
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}
	return &CleanupWorker{
		notifications: notifications,
		interval:      interval,
		maxAge:        maxAge,
	}
}

// Start launches the sweep loop in its own goroutine and returns
// immediately. The loop stops when ctx is cancelled.
func (w *CleanupWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := w.notifications.DeleteOldRead(ctx, time.Now().Add(-w.maxAge))
				if err != nil {
					log.Printf("cleanup: delete old notifications: %v", err)
					continue
				}
				if deleted > 0 {
					log.Printf("cleanup: removed %d old read notifications", deleted)
				}
			}
		}
	}()
}
