// Package fulfillment turns a verified payment event into exactly one
// scraping run.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/leadflow/internal/actor"
	"github.com/imrishuroy/leadflow/internal/logging"
	"github.com/imrishuroy/leadflow/internal/notify"
	"github.com/imrishuroy/leadflow/internal/orders"
	"github.com/sirupsen/logrus"
)

// OrderStore is the part of the staging store fulfillment consumes.
type OrderStore interface {
	Get(ctx context.Context, sessionID string) (*orders.PendingOrder, error)
	Delete(ctx context.Context, sessionID string) error
}

// Ledger records which sessions were fulfilled.
type Ledger interface {
	IsProcessed(ctx context.Context, sessionID string) (bool, error)
	Claim(ctx context.Context, sessionID string) (bool, error)
	Release(ctx context.Context, sessionID, note string) error
	MarkProcessed(ctx context.Context, sessionID, runID string) error
}

// JobTrigger starts the external scraping run.
type JobTrigger interface {
	Start(ctx context.Context, in actor.RunInput) (string, error)
}

// Recorder counts terminal states.
type Recorder interface {
	Record(ctx context.Context, outcome string)
}

// Event is the part of a verified payment event fulfillment needs.
type Event struct {
	SessionID       string
	Metadata        map[string]string
	ContactFallback string
}

// Result describes where processing stopped.
type Result struct {
	SessionID string
	State     State
	RunID     string
	FileName  string
}

// Options tune an Orchestrator. Zero values fall back to defaults.
type Options struct {
	TriggerTimeout time.Duration
	NotifyTimeout  time.Duration
	FileNameLength int
}

// Orchestrator runs the fulfillment state machine for one session at a time.
// It holds no per-session state, so one instance serves concurrent events.
type Orchestrator struct {
	orders   OrderStore
	ledger   Ledger
	trigger  JobTrigger
	notifier notify.Notifier
	recorder Recorder
	opts     Options
	nowFunc  func() time.Time
}

// New wires an Orchestrator. notifier and recorder may be nil.
func New(store OrderStore, ledger Ledger, trigger JobTrigger, notifier notify.Notifier, recorder Recorder, opts Options) *Orchestrator {
	if opts.TriggerTimeout <= 0 {
		opts.TriggerTimeout = 60 * time.Second
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 10 * time.Second
	}
	if opts.FileNameLength <= 0 {
		opts.FileNameLength = 12
	}
	return &Orchestrator{
		orders:   store,
		ledger:   ledger,
		trigger:  trigger,
		notifier: notifier,
		recorder: recorder,
		opts:     opts,
		nowFunc:  time.Now,
	}
}

// Process fulfills a verified event. A nil error means the event should be
// acknowledged; this includes duplicates and orders that could not be
// recovered. Errors wrap ErrJobTrigger or ErrStorage and ask the sender to
// redeliver.
func (o *Orchestrator) Process(ctx context.Context, ev Event) (Result, error) {
	res := Result{SessionID: ev.SessionID, State: StateVerified}
	log := logging.ForSession(ev.SessionID)

	done, err := o.ledger.IsProcessed(ctx, ev.SessionID)
	if err != nil {
		return o.errored(ctx, log, res, fmt.Errorf("%w: ledger lookup: %v", ErrStorage, err))
	}
	if done {
		log.Info("session already fulfilled, skipping")
		return o.finish(ctx, res, StateDeduplicated), nil
	}

	claimed, err := o.ledger.Claim(ctx, ev.SessionID)
	if err != nil {
		return o.errored(ctx, log, res, fmt.Errorf("%w: ledger claim: %v", ErrStorage, err))
	}
	if !claimed {
		log.Info("session claimed by a concurrent delivery, skipping")
		return o.finish(ctx, res, StateDeduplicated), nil
	}

	res.State = StateRecovering
	order, err := o.recoverOrder(ctx, log, ev)
	if err != nil {
		o.release(ctx, log, ev.SessionID, err)
		if errors.Is(err, ErrRecovery) {
			log.WithError(err).Error("paid order could not be recovered")
			o.notify(ctx, log, notify.Message{
				Kind:            notify.KindFailed,
				SessionID:       ev.SessionID,
				ContactAddress:  order.ContactAddress,
				RequestedVolume: order.RequestedVolume,
				DestinationURL:  order.DestinationURL,
				Reason:          err.Error(),
				Timestamp:       o.nowFunc().UTC(),
			})
			return o.finish(ctx, res, StateErrored), nil
		}
		return o.errored(ctx, log, res, err)
	}
	res.State = StateRecovered
	log.WithField("state", res.State).Debug("order recovered")

	res.State = StateTriggering
	res.FileName = NewFileName(o.opts.FileNameLength)
	triggerCtx, cancel := context.WithTimeout(ctx, o.opts.TriggerTimeout)
	runID, err := o.trigger.Start(triggerCtx, actor.RunInput{
		URL:          order.DestinationURL,
		TotalRecords: order.RequestedVolume,
		FileName:     res.FileName,
		Email:        order.ContactAddress,
		CleanOutput:  order.OutputCleaningRequested,
	})
	cancel()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrJobTrigger, err)
		o.release(ctx, log, ev.SessionID, err)
		return o.errored(ctx, log, res, err)
	}
	res.RunID = runID
	log.WithFields(logrus.Fields{"run_id": runID, "file_name": res.FileName, "leads": order.RequestedVolume}).Info("actor run started")

	res.State = StateNotifying
	o.notify(ctx, log, notify.Message{
		Kind:            notify.KindFulfilled,
		SessionID:       ev.SessionID,
		ContactAddress:  order.ContactAddress,
		RequestedVolume: order.RequestedVolume,
		DestinationURL:  order.DestinationURL,
		FileName:        res.FileName,
		RunID:           runID,
		Timestamp:       o.nowFunc().UTC(),
	})

	// A leftover order is swept by TTL; a missing ledger entry is not.
	if err := o.orders.Delete(ctx, ev.SessionID); err != nil {
		log.WithError(err).Warn("failed to delete pending order")
	}
	if err := o.ledger.MarkProcessed(ctx, ev.SessionID, runID); err != nil {
		return o.errored(ctx, log, res, fmt.Errorf("%w: mark processed: %v", ErrStorage, err))
	}
	log.Info("fulfillment finalized")
	return o.finish(ctx, res, StateFinalized), nil
}

func (o *Orchestrator) recoverOrder(ctx context.Context, log *logrus.Entry, ev Event) (orders.PendingOrder, error) {
	staged, err := o.orders.Get(ctx, ev.SessionID)
	if err != nil {
		return orders.PendingOrder{}, fmt.Errorf("%w: order lookup: %v", ErrStorage, err)
	}
	if staged != nil {
		return *staged, nil
	}

	log.Warn("pending order missing, rebuilding from metadata")
	order, truncated, err := OrderFromMetadata(ev.SessionID, ev.Metadata, ev.ContactFallback)
	if truncated && order.DestinationURL != "" {
		log.WithField("url", order.DestinationURL).Warn("url chunks incomplete, using truncated copy")
	}
	return order, err
}

func (o *Orchestrator) notify(ctx context.Context, log *logrus.Entry, msg notify.Message) {
	if o.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, o.opts.NotifyTimeout)
	defer cancel()
	if err := o.notifier.Notify(nctx, msg); err != nil {
		log.WithError(fmt.Errorf("%w: %v", ErrNotification, err)).Warn("notification not delivered")
	}
}

func (o *Orchestrator) release(ctx context.Context, log *logrus.Entry, sessionID string, cause error) {
	if err := o.ledger.Release(ctx, sessionID, cause.Error()); err != nil {
		log.WithError(err).Error("failed to release ledger claim")
	}
}

func (o *Orchestrator) errored(ctx context.Context, log *logrus.Entry, res Result, err error) (Result, error) {
	log.WithError(err).WithField("state", res.State).Error("fulfillment failed")
	return o.finish(ctx, res, StateErrored), err
}

func (o *Orchestrator) finish(ctx context.Context, res Result, s State) Result {
	res.State = s
	o.record(ctx, s)
	return res
}

func (o *Orchestrator) record(ctx context.Context, s State) {
	if o.recorder != nil {
		o.recorder.Record(ctx, string(s))
	}
}
