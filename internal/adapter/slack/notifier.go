// Package slack implements a notifier.Notifier for Slack incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/RepairDesk/internal/port/notifier"
)

const (
	providerName   = "slack"
	requestTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// Notifier posts notifications to a Slack channel via incoming webhook.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewNotifier creates a Slack notifier with the given webhook URL.
func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

func (n *Notifier) Name() string { return providerName }

// message is the Slack Block Kit payload. Text is the fallback shown in
// push notifications.
type message struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks"`
}

type block struct {
	Type     string    `json:"type"`
	Text     *text     `json:"text,omitempty"`
	Elements []element `json:"elements,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// element is a context text or an actions button.
type element struct {
	Type string `json:"type"`
	Text any    `json:"text"`
	URL  string `json:"url,omitempty"`
}

func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.webhookURL == "" {
		return notifier.ErrNotConfigured
	}

	body, err := json.Marshal(render(notification))
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("slack webhook %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func render(n notifier.Notification) message {
	title := fmt.Sprintf("%s %s", levelPrefix(n.Level), n.Title)
	msg := message{
		Text: title,
		Blocks: []block{
			{Type: "header", Text: &text{Type: "plain_text", Text: title}},
			{Type: "section", Text: &text{Type: "mrkdwn", Text: n.Message}},
		},
	}
	if n.Link != "" {
		msg.Blocks = append(msg.Blocks, block{
			Type: "actions",
			Elements: []element{{
				Type: "button",
				Text: text{Type: "plain_text", Text: "Open in RepairDesk"},
				URL:  n.Link,
			}},
		})
	}
	if n.Source != "" {
		msg.Blocks = append(msg.Blocks, block{
			Type:     "context",
			Elements: []element{{Type: "mrkdwn", Text: "_" + n.Source + "_"}},
		})
	}
	return msg
}

func levelPrefix(level notifier.Level) string {
	switch level {
	case notifier.LevelError:
		return ":rotating_light:"
	case notifier.LevelWarning:
		return ":warning:"
	default:
		return ":bell:"
	}
}
