package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Email delivers alerts through SendGrid.
type Email struct {
	ChannelName string
	APIKey      string
	From        string
	To          string
}

var _ Channel = (*Email)(nil)

func NewEmail(name, apiKey, from, to string) *Email {
	if apiKey == "" || to == "" {
		return nil
	}
	if from == "" {
		from = to
	}
	return &Email{ChannelName: name, APIKey: apiKey, From: from, To: to}
}

func (e *Email) Name() string {
	if e == nil {
		return "email"
	}
	return e.ChannelName
}

func (e *Email) Kind() ChannelKind { return KindEmail }

func (e *Email) Send(ctx context.Context, a Alert) error {
	if e == nil || e.APIKey == "" || e.To == "" {
		return ErrNotConfigured
	}

	from := mail.NewEmail("backupwatch", e.From)
	to := mail.NewEmail("Operator", e.To)
	body := a.Body()
	msg := mail.NewSingleEmail(from, a.Title(), to, body, body)

	client := sendgrid.NewSendClient(e.APIKey)
	resp, err := client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("email %s: %w", e.ChannelName, err)
	}
	switch {
	case resp.StatusCode/100 == 2:
		return nil
	case resp.StatusCode/100 == 4:
		return Permanent(fmt.Errorf("email %s: sendgrid status %d", e.ChannelName, resp.StatusCode))
	default:
		return fmt.Errorf("email %s: sendgrid status %d", e.ChannelName, resp.StatusCode)
	}
}
