package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// WebhookNotifier posts alerts as text messages to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends an alert to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, msg AlertMessage) error {
	if n == nil || n.url == "" {
		return eris.New("webhook notifier: empty url")
	}
	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatAlertMessage(msg)},
	})
	if err != nil {
		return eris.Wrap(err, "webhook notifier: encode")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "webhook notifier: request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "webhook notifier: post")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return eris.Errorf("webhook notifier: non-2xx status %d", resp.StatusCode)
	}
	return nil
}

func formatAlertMessage(msg AlertMessage) string {
	var b strings.Builder
	b.WriteString("[MIS Reconcile Alert]\n")
	if msg.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", msg.RunID)
	}
	if msg.Table != "" {
		fmt.Fprintf(&b, "Table: %s\n", msg.Table)
	}
	if msg.Report != "" {
		fmt.Fprintf(&b, "Report: %s\n", msg.Report)
	}
	if msg.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", msg.Status)
	}
	if msg.State != "" {
		fmt.Fprintf(&b, "State: %s\n", msg.State)
	}
	if len(msg.FailedBatches) > 0 {
		fmt.Fprintf(&b, "Failed batches: %s\n", strings.Join(msg.FailedBatches, ", "))
	}
	if len(msg.Counts) > 0 {
		keys := make([]string, 0, len(msg.Counts))
		for k := range msg.Counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%d", k, msg.Counts[k])
		}
		fmt.Fprintf(&b, "Counts: %s\n", strings.Join(parts, " "))
	}
	if msg.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", msg.Message)
	}
	return strings.TrimSpace(b.String())
}
