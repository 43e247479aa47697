// Package app builds the storage and notification dependencies shared by
// the API and the sweeper.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/imrishuroy/leadflow/internal/aws"
	"github.com/imrishuroy/leadflow/internal/config"
	"github.com/imrishuroy/leadflow/internal/fulfillment"
	"github.com/imrishuroy/leadflow/internal/idempotency"
	"github.com/imrishuroy/leadflow/internal/notify"
	"github.com/imrishuroy/leadflow/internal/orders"
	"github.com/imrishuroy/leadflow/internal/telemetry"
)

// OrderStore is implemented by both staging backends.
type OrderStore interface {
	Put(ctx context.Context, order orders.PendingOrder) error
	Get(ctx context.Context, sessionID string) (*orders.PendingOrder, error)
	Delete(ctx context.Context, sessionID string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// Deps holds the backends selected by configuration.
type Deps struct {
	AWS     *aws.Clients // nil when nothing needs AWS
	Orders  OrderStore
	Ledger  fulfillment.Ledger
	Metrics *aws.MetricsPublisher // nil unless CLOUDWATCH_METRICS is set
}

// Build opens the configured backends.
func Build(ctx context.Context, cfg config.Config) (*Deps, error) {
	d := &Deps{}
	if cfg.NeedsAWS() {
		clients, err := aws.NewClients(ctx, aws.Services{
			DynamoDB:   cfg.StoreBackend == config.BackendDynamoDB,
			SQS:        cfg.NotifyQueueURL != "",
			CloudWatch: cfg.CloudWatchMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("init aws clients: %w", err)
		}
		d.AWS = clients
	}

	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		d.Orders = orders.NewStore(d.AWS.DynamoDB, cfg.OrdersTable, cfg.OrderTTL)
		d.Ledger = idempotency.NewStore(d.AWS.DynamoDB, cfg.LedgerTable, cfg.ClaimTimeout)
	case config.BackendDisk:
		orderStore, err := orders.NewDiskStore(filepath.Join(cfg.DataDir, "orders"), cfg.OrderTTL)
		if err != nil {
			return nil, err
		}
		ledgerStore, err := idempotency.NewDiskStore(filepath.Join(cfg.DataDir, "ledger"), cfg.ClaimTimeout)
		if err != nil {
			return nil, err
		}
		d.Orders, d.Ledger = orderStore, ledgerStore
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.CloudWatchMetrics && d.AWS != nil {
		d.Metrics = aws.NewMetricsPublisher(d.AWS.CloudWatch, cfg.MetricsNamespace)
	}
	return d, nil
}

// Notifier returns the configured notification channels. An empty Fanout
// is valid and sends nothing.
func (d *Deps) Notifier(cfg config.Config) notify.Fanout {
	var channels []notify.Notifier
	if cfg.NotifyWebhookURL != "" {
		channels = append(channels, notify.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyTimeout))
	}
	if cfg.SendGridAPIKey != "" {
		channels = append(channels, notify.NewEmailNotifier(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.OperatorEmail, cfg.SendGridSandbox))
	}
	if cfg.NotifyQueueURL != "" && d.AWS != nil {
		channels = append(channels, notify.NewQueueNotifier(aws.NewPublisher(d.AWS.SQS, cfg.NotifyQueueURL)))
	}
	return notify.NewFanout(channels...)
}

// Recorder counts fulfillment outcomes, in CloudWatch too when enabled.
func (d *Deps) Recorder() *telemetry.Recorder {
	if d.Metrics == nil {
		return telemetry.NewRecorder(nil)
	}
	return telemetry.NewRecorder(d.Metrics)
}
