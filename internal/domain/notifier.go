package domain

import (
	"context"
	"time"
)

// Notification is the payload delivered to one recipient after a job
// reaches a terminal state.
type Notification struct {
	JobName   string    `json:"job_name"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier sends a message to a single recipient. Per-recipient failures
// are logged by the caller and never roll back job or history state.
type Notifier interface {
	Notify(ctx context.Context, recipient, subject string, msg Notification) error
}
