// Package mailer delivers tenancy emails through SendGrid.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender delivers one plain-text message.
type Sender interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGrid is a Sender backed by the SendGrid v3 mail API.
type SendGrid struct {
	client   sendClient
	fromName string
}

// NewSendGrid builds a SendGrid sender. fromName is shown as the sender
// display name.
func NewSendGrid(apiKey, fromName string) (*SendGrid, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	return &SendGrid{client: sendgrid.NewSendClient(apiKey), fromName: strings.TrimSpace(fromName)}, nil
}

// Send delivers body as plain text with a minimal HTML alternative.
func (s *SendGrid) Send(ctx context.Context, from, to, subject, body string) error {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return errors.New("from address is required")
	}
	if to == "" {
		return errors.New("to address is required")
	}
	message := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, from),
		subject,
		mail.NewEmail("", to),
		body,
		"<pre>"+html.EscapeString(body)+"</pre>",
	)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
