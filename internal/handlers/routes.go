package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/imrishuroy/leadflow/internal/config"
	"github.com/imrishuroy/leadflow/internal/fulfillment"
	"github.com/imrishuroy/leadflow/internal/orders"
	"github.com/imrishuroy/leadflow/internal/payments"
	"github.com/imrishuroy/leadflow/internal/validation"
)

// OrderWriter stages orders at checkout.
type OrderWriter interface {
	Put(ctx context.Context, order orders.PendingOrder) error
}

// EventVerifier authenticates raw payment events.
type EventVerifier interface {
	Verify(rawBytes []byte, signatureHeader string) (stripe.Event, error)
}

// EventProcessor fulfills verified events.
type EventProcessor interface {
	Process(ctx context.Context, ev fulfillment.Event) (fulfillment.Result, error)
}

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	Config        config.Config
	Orders        OrderWriter
	Checkout      payments.SessionCreator
	Verifier      EventVerifier
	Processor     EventProcessor
	ResultsClient *http.Client
	// CheckoutLimiter runs before POST /checkout when set.
	CheckoutLimiter gin.HandlerFunc
}

// RegisterRoutes registers the public API and the inbound webhooks.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New(validation.Rules{
		MinLeads:       cfg.Config.MinLeads,
		MaxLeads:       cfg.Config.MaxLeads,
		AllowedHosts:   cfg.Config.AllowedSearchHosts,
		MinChargeCents: cfg.Config.MinChargeCents,
		MaxChargeCents: cfg.Config.MaxChargeCents,
		Price:          cfg.Config.PriceCents,
	})
	if cfg.ResultsClient == nil {
		cfg.ResultsClient = &http.Client{Timeout: cfg.Config.NotifyTimeout}
	}

	r.GET("/config", configHandler(cfg))

	checkout := []gin.HandlerFunc{checkoutHandler(cfg, v)}
	if cfg.CheckoutLimiter != nil {
		checkout = append([]gin.HandlerFunc{cfg.CheckoutLimiter}, checkout...)
	}
	r.POST("/checkout", checkout...)

	r.POST("/webhook/stripe", stripeWebhookHandler(cfg))
	r.POST("/webhook/results", resultsHandler(cfg))
}

func configHandler(cfg HandlerConfig) gin.HandlerFunc {
	public := cfg.Config.Public()
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, public)
	}
}
