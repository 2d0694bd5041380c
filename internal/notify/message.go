// Package notify carries structured notification messages to a delivery
// channel. Messages are plain values; rendering is the channel's concern.
package notify

import (
	"context"
	"time"
)

// Field is one named line in a message. Order is preserved.
type Field struct {
	Name  string
	Value string
}

// Message is a presentation-free notification. Channels decide how to
// render it for their platform.
type Message struct {
	Title     string
	Body      string
	Fields    []Field
	Footer    string
	Timestamp time.Time
}

// Channel delivers a message to one recipient chat.
type Channel interface {
	Deliver(ctx context.Context, chatID int64, msg Message) error
}
