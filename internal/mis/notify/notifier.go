// Package notify delivers run alerts to operators.
package notify

import "context"

// AlertMessage describes a run that needs attention.
type AlertMessage struct {
	RunID         string            `json:"run_id"`
	Table         string            `json:"table"`
	Report        string            `json:"report"`
	Status        string            `json:"status"`
	State         string            `json:"state,omitempty"`
	FailedBatches []string          `json:"failed_batches,omitempty"`
	Message       string            `json:"message,omitempty"`
	Counts        map[string]int    `json:"counts,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}

// Nop discards alerts.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, AlertMessage) error { return nil }
