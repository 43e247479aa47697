package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

type messageSender interface {
	SendMessage(ctx context.Context, messageBody string, attributes map[string]string) (string, error)
}

// QueueNotifier publishes the message to a queue for downstream consumers.
type QueueNotifier struct {
	publisher messageSender
}

// NewQueueNotifier wraps an SQS publisher (aws.Publisher).
func NewQueueNotifier(publisher messageSender) *QueueNotifier {
	return &QueueNotifier{publisher: publisher}
}

func (q *QueueNotifier) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = q.publisher.SendMessage(ctx, string(body), map[string]string{
		"kind":       string(msg.Kind),
		"session_id": msg.SessionID,
	})
	return err
}
