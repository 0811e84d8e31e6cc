package mailer

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"
	"github.com/wavegram/notify-engine/pkg/apperror"
)

// Message is one transactional notification email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	Tag      string
}

// Sender defines contract for an email provider (Postmark implementation).
// A rejected address comes back wrapping apperror.ErrInvalidEmailAddress;
// anything retryable wraps apperror.ErrTransientDelivery.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Postmark API error codes for unusable recipient addresses.
const (
	codeInvalidEmail      = 300
	codeInactiveRecipient = 406
)

type postmarkSender struct {
	client *postmark.Client
	from   string
}

// NewPostmarkSender builds a Postmark-backed Sender. Both tokens and the
// sender address are required so a misconfigured process fails at startup
// instead of at first delivery.
func NewPostmarkSender(serverToken, accountToken, from string) (Sender, error) {
	if serverToken == "" || accountToken == "" {
		return nil, fmt.Errorf("postmark tokens not provided")
	}
	if from == "" {
		return nil, fmt.Errorf("sender email address not provided")
	}

	return &postmarkSender{
		client: postmark.NewClient(serverToken, accountToken),
		from:   from,
	}, nil
}

func (s *postmarkSender) Send(ctx context.Context, msg Message) error {
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       msg.To,
		Subject:  msg.Subject,
		TextBody: msg.TextBody,
		Tag:      msg.Tag,
	})
	if err != nil {
		// Transport-level failure (timeout, DNS, 5xx).
		return fmt.Errorf("%w: %v", apperror.ErrTransientDelivery, err)
	}

	switch resp.ErrorCode {
	case 0:
		return nil
	case codeInvalidEmail, codeInactiveRecipient:
		return fmt.Errorf("%w: postmark code %d: %s", apperror.ErrInvalidEmailAddress, resp.ErrorCode, resp.Message)
	default:
		return fmt.Errorf("%w: postmark code %d: %s", apperror.ErrTransientDelivery, resp.ErrorCode, resp.Message)
	}
}
