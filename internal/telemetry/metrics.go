package telemetry

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imrishuroy/leadflow/internal/logging"
)

var (
	once sync.Once

	CheckoutsCreated    = prometheus.NewCounter(prometheus.CounterOpts{Name: "leadflow_checkouts_created_total", Help: "Checkout sessions created"})
	CheckoutRejects     = prometheus.NewCounter(prometheus.CounterOpts{Name: "leadflow_checkout_rejects_total", Help: "Checkout requests that failed validation"})
	RateLimitRejects    = prometheus.NewCounter(prometheus.CounterOpts{Name: "leadflow_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
	WebhookRejects      = prometheus.NewCounter(prometheus.CounterOpts{Name: "leadflow_webhook_verification_failures_total", Help: "Payment events with a bad signature"})
	WebhookIgnored      = prometheus.NewCounter(prometheus.CounterOpts{Name: "leadflow_webhook_ignored_total", Help: "Verified payment events that do not start fulfillment"})
	FulfillmentOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "leadflow_fulfillment_outcomes_total", Help: "Fulfillments by terminal state"}, []string{"outcome"})
	ResultsForwarded    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "leadflow_results_forwarded_total", Help: "Actor result batches forwarded"}, []string{"result"})
	OrdersSwept         = prometheus.NewCounter(prometheus.CounterOpts{Name: "leadflow_orders_swept_total", Help: "Expired pending orders removed"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			CheckoutsCreated,
			CheckoutRejects,
			RateLimitRejects,
			WebhookRejects,
			WebhookIgnored,
			FulfillmentOutcomes,
			ResultsForwarded,
			OrdersSwept,
		)
	})
	return promhttp.Handler()
}

type outcomeSink interface {
	RecordOutcome(ctx context.Context, outcome string) error
}

// Recorder counts fulfillment outcomes in Prometheus and, when a sink is
// set, in CloudWatch.
type Recorder struct {
	sink outcomeSink
}

// NewRecorder accepts a nil sink.
func NewRecorder(sink outcomeSink) *Recorder {
	return &Recorder{sink: sink}
}

func (r *Recorder) Record(ctx context.Context, outcome string) {
	FulfillmentOutcomes.WithLabelValues(outcome).Inc()
	if r.sink == nil {
		return
	}
	if err := r.sink.RecordOutcome(ctx, outcome); err != nil {
		logging.Logger.WithError(err).WithField("outcome", outcome).Warn("failed to publish outcome metric")
	}
}
