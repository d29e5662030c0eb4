package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Push posts the alert as JSON to a webhook endpoint (Slack-compatible and
// plain webhook receivers both accept the shape).
type Push struct {
	ChannelName string
	Webhook     string
	Client      *http.Client
}

var _ Channel = (*Push)(nil)

func NewPush(name, webhook string) *Push {
	if webhook == "" {
		return nil
	}
	return &Push{
		ChannelName: name,
		Webhook:     webhook,
		Client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Push) Name() string {
	if p == nil {
		return "push"
	}
	return p.ChannelName
}

func (p *Push) Kind() ChannelKind { return KindPush }

type pushPayload struct {
	Text  string `json:"text"`
	Alert Alert  `json:"alert"`
}

func (p *Push) Send(ctx context.Context, a Alert) error {
	if p == nil || p.Webhook == "" {
		return ErrNotConfigured
	}
	body, _ := json.Marshal(pushPayload{Text: "*" + a.Title() + "*\n" + a.Body(), Alert: a})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Webhook, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("push %s: %w", p.ChannelName, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		// Network errors (refused, timeout) are transient.
		return fmt.Errorf("push %s: %w", p.ChannelName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode/100 == 2:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("push %s: status %d", p.ChannelName, resp.StatusCode)
	default:
		// 4xx means the endpoint or payload is wrong; retrying won't help.
		return Permanent(fmt.Errorf("push %s: status %d", p.ChannelName, resp.StatusCode))
	}
}
