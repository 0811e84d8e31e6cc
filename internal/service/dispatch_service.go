package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wavegram/notify-engine/internal/model"
	"github.com/wavegram/notify-engine/internal/realtime"
	"github.com/wavegram/notify-engine/internal/repository"
	"github.com/wavegram/notify-engine/pkg/apperror"
	"github.com/wavegram/notify-engine/pkg/mailer"
	"github.com/wavegram/notify-engine/pkg/push"
)

const pushTitle = "Wavegram"

// providerTimeout bounds every external provider call so a dispatch task
// never hangs on a dead upstream.
const providerTimeout = 10 * time.Second

// RetryPolicy is the per-channel backoff schedule for transient failures.
// A try that fails with delays exhausted is terminal.
type RetryPolicy struct {
	Delays []time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delays: []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}}
}

// nextDelay returns the wait before the next try, given how many tries
// have completed; ok is false once the schedule is exhausted.
func (p RetryPolicy) nextDelay(tries int) (time.Duration, bool) {
	if tries < 1 || tries > len(p.Delays) {
		return 0, false
	}
	return p.Delays[tries-1], true
}

// DispatchService fans one stored notification out to the realtime, push
// and email channels per the recipient's preferences. Channels run
// concurrently and fail independently; each outcome lands in its own
// DeliveryAttempt row, and all pending rows exist before the first send
// starts.
type DispatchService struct {
	notifications repository.NotificationRepository
	deliveries    repository.DeliveryRepository
	preferences   repository.PreferenceRepository
	users         repository.UserRepository
	registry      *realtime.Registry
	pushSender    push.Sender   // nil when FCM is not configured
	emailSender   mailer.Sender // nil when the mail provider is not configured
	resolvers     model.ResolverRegistry
	policy        RetryPolicy
}

func NewDispatchService(
	notifications repository.NotificationRepository,
	deliveries repository.DeliveryRepository,
	preferences repository.PreferenceRepository,
	users repository.UserRepository,
	registry *realtime.Registry,
	pushSender push.Sender,
	emailSender mailer.Sender,
	resolvers model.ResolverRegistry,
	policy RetryPolicy,
) *DispatchService {
	return &DispatchService{
		notifications: notifications,
		deliveries:    deliveries,
		preferences:   preferences,
		users:         users,
		registry:      registry,
		pushSender:    pushSender,
		emailSender:   emailSender,
		resolvers:     resolvers,
		policy:        policy,
	}
}

// Dispatch resolves enabled channels, records pending attempts, then runs
// every channel concurrently. It blocks until the initial try of each
// channel finishes, so callers run it from their own goroutine or worker.
func (s *DispatchService) Dispatch(ctx context.Context, notificationID uuid.UUID) {
	n, err := s.notifications.GetByID(ctx, notificationID)
	if err != nil {
		log.Printf("dispatch: load notification %s: %v", notificationID, err)
		return
	}

	prefs, err := s.preferences.GetOrCreate(ctx, n.RecipientID)
	if err != nil {
		log.Printf("dispatch: load preferences for %s: %v", n.RecipientID, err)
		return
	}

	// The realtime channel rides on the stored record: if the row exists,
	// a connected client wants to hear about it.
	channels := []model.Channel{model.ChannelInApp}
	if prefs.IsEnabled(n.Type, model.ChannelPush) {
		channels = append(channels, model.ChannelPush)
	}
	if prefs.IsEnabled(n.Type, model.ChannelEmail) {
		channels = append(channels, model.ChannelEmail)
	}

	attempts, err := s.deliveries.CreatePending(ctx, n.ID, channels)
	if err != nil {
		log.Printf("dispatch: record attempts for %s: %v", n.ID, err)
		return
	}

	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func(attempt model.DeliveryAttempt) {
			defer wg.Done()
			s.runChannel(ctx, attempt, n)
		}(attempts[i])
	}
	wg.Wait()
}

// Retry re-runs a single claimed attempt. Used by the retry worker for
// rows whose next_retry_at came due.
func (s *DispatchService) Retry(ctx context.Context, attempt model.DeliveryAttempt) {
	n, err := s.notifications.GetByID(ctx, attempt.NotificationID)
	if err != nil {
		// The notification was deleted out from under the attempt; nothing
		// left to deliver.
		if markErr := s.deliveries.MarkSkipped(ctx, attempt.ID, "notification no longer exists"); markErr != nil {
			log.Printf("retry: mark skipped %s: %v", attempt.ID, markErr)
		}
		return
	}
	s.runChannel(ctx, attempt, n)
}

func (s *DispatchService) runChannel(ctx context.Context, attempt model.DeliveryAttempt, n *model.Notification) {
	switch attempt.Channel {
	case model.ChannelInApp:
		s.runRealtime(ctx, attempt, n)
	case model.ChannelPush:
		s.runPush(ctx, attempt, n)
	case model.ChannelEmail:
		s.runEmail(ctx, attempt, n)
	default:
		log.Printf("dispatch: unknown channel %q on attempt %s", attempt.Channel, attempt.ID)
	}
}

// runRealtime pushes to live connections. Best effort by nature: no
// connections means "not applicable", and a failed push is never retried
// because the client will fetch the feed on reconnect anyway.
func (s *DispatchService) runRealtime(ctx context.Context, attempt model.DeliveryAttempt, n *model.Notification) {
	payload, err := json.Marshal(wsEnvelope{
		Type:         "notification",
		Notification: NewNotificationView(ctx, n, s.resolvers),
	})
	if err != nil {
		log.Printf("dispatch: marshal realtime payload for %s: %v", n.ID, err)
		return
	}

	if s.registry.Push(n.RecipientID, payload) {
		s.finish(ctx, attempt.ID, s.deliveries.MarkSent(ctx, attempt.ID))
		return
	}
	s.finish(ctx, attempt.ID, s.deliveries.MarkSkipped(ctx, attempt.ID, "no live connections"))
}

func (s *DispatchService) runPush(ctx context.Context, attempt model.DeliveryAttempt, n *model.Notification) {
	if s.pushSender == nil {
		s.finish(ctx, attempt.ID, s.deliveries.MarkSkipped(ctx, attempt.ID, "push sender not configured"))
		return
	}

	tokens, err := s.preferences.TokensByUser(ctx, n.RecipientID)
	if err != nil {
		s.scheduleRetry(ctx, attempt, err)
		return
	}
	if len(tokens) == 0 {
		s.finish(ctx, attempt.ID, s.deliveries.MarkSkipped(ctx, attempt.ID, "no registered device tokens"))
		return
	}

	payload := push.Payload{
		Title: pushTitle,
		Body:  n.DisplayText(),
		Data: map[string]string{
			"notification_id":   n.ID.String(),
			"notification_type": string(n.Type),
			"link":              n.Target().Link(),
		},
	}
	if n.Sender != nil && n.Sender.AvatarURL != nil {
		payload.ImageURL = *n.Sender.AvatarURL
	}

	sent := 0
	var transientErr error
	for _, t := range tokens {
		callCtx, cancel := context.WithTimeout(ctx, providerTimeout)
		err := s.pushSender.Send(callCtx, t.Token, payload)
		cancel()

		switch {
		case err == nil:
			sent++
		case errors.Is(err, apperror.ErrInvalidPushToken):
			// Dead token: prune it so it is never targeted again.
			if pruneErr := s.preferences.RemoveToken(ctx, n.RecipientID, t.Token); pruneErr != nil {
				log.Printf("dispatch: prune token for %s: %v", n.RecipientID, pruneErr)
			}
		default:
			transientErr = err
		}
	}

	switch {
	case sent > 0:
		s.finish(ctx, attempt.ID, s.deliveries.MarkSent(ctx, attempt.ID))
	case transientErr != nil:
		s.scheduleRetry(ctx, attempt, transientErr)
	default:
		// Every token was invalid and has been pruned; permanent, no retry.
		s.finish(ctx, attempt.ID, s.deliveries.RecordFailure(ctx, attempt.ID, "all device tokens invalid", nil))
	}
}

func (s *DispatchService) runEmail(ctx context.Context, attempt model.DeliveryAttempt, n *model.Notification) {
	if s.emailSender == nil {
		s.finish(ctx, attempt.ID, s.deliveries.MarkSkipped(ctx, attempt.ID, "email sender not configured"))
		return
	}

	recipient, err := s.users.FindByID(ctx, n.RecipientID)
	if err != nil {
		s.scheduleRetry(ctx, attempt, err)
		return
	}
	if recipient.Email == "" {
		s.finish(ctx, attempt.ID, s.deliveries.MarkSkipped(ctx, attempt.ID, "no email address"))
		return
	}

	text := n.DisplayText()
	body := fmt.Sprintf(
		"Hi %s,\n\n%s\n\nView on Wavegram: %s\n\n---\nYou're receiving this email because you have email notifications enabled.\nTo change your notification preferences, visit your settings.\n",
		recipient.DisplayName(), text, n.Target().Link(),
	)

	callCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	err = s.emailSender.Send(callCtx, mailer.Message{
		To:       recipient.Email,
		Subject:  "Wavegram - " + text,
		TextBody: body,
		Tag:      string(n.Type),
	})
	cancel()

	switch {
	case err == nil:
		s.finish(ctx, attempt.ID, s.deliveries.MarkSent(ctx, attempt.ID))
	case errors.Is(err, apperror.ErrInvalidEmailAddress):
		s.finish(ctx, attempt.ID, s.deliveries.RecordFailure(ctx, attempt.ID, err.Error(), nil))
	default:
		s.scheduleRetry(ctx, attempt, err)
	}
}

// scheduleRetry books the next try per the backoff policy, or fails the
// attempt terminally once the schedule is exhausted.
func (s *DispatchService) scheduleRetry(ctx context.Context, attempt model.DeliveryAttempt, cause error) {
	tries := attempt.AttemptCount + 1
	delay, ok := s.policy.nextDelay(tries)
	if !ok {
		s.finish(ctx, attempt.ID, s.deliveries.RecordFailure(ctx, attempt.ID, cause.Error(), nil))
		return
	}
	next := time.Now().Add(delay)
	s.finish(ctx, attempt.ID, s.deliveries.RecordFailure(ctx, attempt.ID, cause.Error(), &next))
}

func (s *DispatchService) finish(ctx context.Context, attemptID uuid.UUID, err error) {
	if err != nil {
		log.Printf("dispatch: update attempt %s: %v", attemptID, err)
	}
}

type wsEnvelope struct {
	Type         string           `json:"type"`
	Notification NotificationView `json:"notification"`
}
