package service

import (
	"context"
	"log"
	"time"

	"github.com/wavegram/notify-engine/internal/repository"
)

const retryBatchSize = 100

// RetryWorker drives rescheduled delivery attempts. It scans for pending
// rows whose next_retry_at came due and hands them back to the dispatcher.
// Because due times live in the database, work in flight when the process
// dies is picked up again after restart.
type RetryWorker struct {
	deliveries repository.DeliveryRepository
	dispatcher *DispatchService
	interval   time.Duration
}

func NewRetryWorker(deliveries repository.DeliveryRepository, dispatcher *DispatchService, interval time.Duration) *RetryWorker {
	if interval <= 0 {
		interval = time.Second
	}
	return &RetryWorker{
		deliveries: deliveries,
		dispatcher: dispatcher,
		interval:   interval,
	}
}

// Start launches the scan loop in its own goroutine and returns
// immediately. The loop stops when ctx is cancelled.
func (w *RetryWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce claims one batch of due attempts and retries each. Exposed so
// tests can drive the worker without the ticker.
func (w *RetryWorker) RunOnce(ctx context.Context) {
	attempts, err := w.deliveries.DueAttempts(ctx, time.Now(), retryBatchSize)
	if err != nil {
		// A partial claim still returns the rows that were claimed; they
		// must run now or they sit idle until their lease expires.
		log.Printf("retry worker: claim due attempts: %v", err)
	}
	for _, attempt := range attempts {
		w.dispatcher.Retry(ctx, attempt)
	}
}
