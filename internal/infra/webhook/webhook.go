// Package webhook delivers job outcome notifications as JSON POSTs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pablopunk/bucky-sub000/internal/domain"
)

type payload struct {
	Recipient string              `json:"recipient"`
	Subject   string              `json:"subject"`
	Body      domain.Notification `json:"body"`
}

// Notifier posts notifications to recipient URLs and implements
// domain.Notifier.
type Notifier struct {
	client *http.Client
}

// NewNotifier creates a webhook notifier with the given request timeout.
func NewNotifier(timeout time.Duration) *Notifier {
	return &Notifier{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Notify sends one message to one recipient. The recipient is the webhook
// URL to post to.
func (n *Notifier) Notify(ctx context.Context, recipient, subject string, msg domain.Notification) error {
	body, err := json.Marshal(payload{
		Recipient: recipient,
		Subject:   subject,
		Body:      msg,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification request returned %s", resp.Status)
	}
	return nil
}
