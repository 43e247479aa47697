// Package notify delivers fulfillment notifications to the configured channels.
package notify

import (
	"context"
	"errors"
	"time"
)

// Kind tells receivers whether a paid order was handed to the actor.
type Kind string

const (
	KindFulfilled Kind = "fulfilled"
	KindFailed    Kind = "failed"
)

// Message is the payload every channel receives.
type Message struct {
	Kind            Kind      `json:"status"`
	SessionID       string    `json:"sessionId"`
	ContactAddress  string    `json:"contactAddress"`
	RequestedVolume int       `json:"requestedVolume"`
	DestinationURL  string    `json:"destinationUrl"`
	FileName        string    `json:"fileName,omitempty"`
	RunID           string    `json:"runId,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Notifier sends one message to one channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Fanout sends to every channel and joins the failures.
type Fanout []Notifier

// NewFanout drops nil channels.
func NewFanout(channels ...Notifier) Fanout {
	out := make(Fanout, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			out = append(out, ch)
		}
	}
	return out
}

// Notify implements Notifier. An empty Fanout is a no-op.
func (f Fanout) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, ch := range f {
		if err := ch.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
