package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/leadflow/internal/logging"
	"github.com/imrishuroy/leadflow/internal/telemetry"
)

type purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type countSink interface {
	Count(ctx context.Context, metric, outcome string, value float64) error
}

// Sweeper removes pending orders whose checkout was abandoned.
type Sweeper struct {
	store   purger
	metrics countSink // optional
	nowFunc func() time.Time
}

// NewSweeper accepts a nil metrics sink.
func NewSweeper(store purger, metrics countSink) *Sweeper {
	return &Sweeper{store: store, metrics: metrics, nowFunc: time.Now}
}

// Run purges once and reports how many orders were removed.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	n, err := s.store.PurgeExpired(ctx, s.nowFunc())
	telemetry.OrdersSwept.Add(float64(n))
	if err != nil {
		return n, fmt.Errorf("purge expired orders: %w", err)
	}
	if s.metrics != nil {
		if merr := s.metrics.Count(ctx, "OrdersSwept", "", float64(n)); merr != nil {
			logging.Logger.WithError(merr).Warn("failed to publish sweep metric")
		}
	}
	logging.Logger.WithField("removed", n).Info("orphan sweep complete")
	return n, nil
}

// Handle is the scheduled Lambda entry point.
func (s *Sweeper) Handle(ctx context.Context, ev events.CloudWatchEvent) error {
	logging.Logger.WithField("event_id", ev.ID).Debug("scheduled sweep")
	_, err := s.Run(ctx)
	return err
}
