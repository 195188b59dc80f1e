// Package notify delivers user notifications, immediately or on a schedule.
package notify

import (
	"context"
	"time"
)

// Notification is the user-visible content of a push.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Scheduled is a pending notification. Daily entries re-arm themselves after
// each delivery; one-shot entries are removed once fired.
type Scheduled struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Notification Notification `json:"notification"`
	FireAt       time.Time    `json:"fire_at"`
	Daily        bool         `json:"daily"`
	Hour         int          `json:"hour,omitempty"`
	Minute       int          `json:"minute,omitempty"`
}

// Delivered records a notification that was actually sent.
type Delivered struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// Sender pushes a notification to the user's devices.
type Sender interface {
	Send(ctx context.Context, userID string, n Notification) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, userID string, n Notification) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, userID string, n Notification) error {
	return f(ctx, userID, n)
}
