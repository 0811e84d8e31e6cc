package push

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"github.com/wavegram/notify-engine/pkg/apperror"
	"google.golang.org/api/option"
)

// Payload is one mobile push message targeted at a single device token.
type Payload struct {
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
}

// Sender defines contract for a mobile push provider (FCM implementation).
// Send errors are classified: an unusable token comes back wrapping
// apperror.ErrInvalidPushToken, anything retryable wraps
// apperror.ErrTransientDelivery.
type Sender interface {
	Send(ctx context.Context, token string, p Payload) error
}

type fcmSender struct {
	client *messaging.Client
}

// NewFCMSender initializes the Firebase app from a service-account
// credentials file and returns the messaging-backed Sender.
func NewFCMSender(ctx context.Context, credentialsPath string) (Sender, error) {
	if credentialsPath == "" {
		return nil, fmt.Errorf("firebase credentials path not provided")
	}
	if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("firebase credentials file not found at %s", credentialsPath)
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fcm messaging client: %w", err)
	}

	return &fcmSender{client: client}, nil
}

func (s *fcmSender) Send(ctx context.Context, token string, p Payload) error {
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title:    p.Title,
			Body:     p.Body,
			ImageURL: p.ImageURL,
		},
		Data: p.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
					Badge: intPtr(1),
				},
			},
		},
	}

	if _, err := s.client.Send(ctx, msg); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps FCM errors onto the engine's delivery taxonomy. Unknown
// errors count as transient: retries are bounded anyway, and dropping a
// token on an unclassified error would lose a working device.
func classify(err error) error {
	switch {
	case messaging.IsUnregistered(err), errorutils.IsInvalidArgument(err):
		return fmt.Errorf("%w: %v", apperror.ErrInvalidPushToken, err)
	default:
		return fmt.Errorf("%w: %v", apperror.ErrTransientDelivery, err)
	}
}

func intPtr(i int) *int {
	return &i
}
