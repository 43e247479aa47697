package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/imrishuroy/leadflow/internal/fulfillment"
	"github.com/imrishuroy/leadflow/internal/payments"
	"github.com/imrishuroy/leadflow/internal/telemetry"
)

// Stripe caps event payloads well below this.
const maxWebhookBody = 1 << 20

// stripeWebhookHandler -> POST /webhook/stripe
// The body is read untouched and verified before anything parses it.
func stripeWebhookHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			telemetry.WebhookRejects.Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
			return
		}

		event, err := cfg.Verifier.Verify(payload, c.GetHeader(payments.SignatureHeader))
		if err != nil {
			telemetry.WebhookRejects.Inc()
			requestLog(c).WithError(err).Warn("payment event rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
			return
		}
		log := requestLog(c).WithField("event_id", event.ID).WithField("event_type", event.Type)

		switch event.Type {
		case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
			cs, err := payments.SessionFromEvent(event)
			if err != nil {
				// redelivery cannot fix a malformed object
				log.WithError(err).Error("could not parse checkout session")
				telemetry.WebhookIgnored.Inc()
				c.JSON(http.StatusOK, gin.H{"received": true})
				return
			}
			if !payments.IsFulfillable(event, cs) {
				log.WithField("payment_status", cs.PaymentStatus).Info("checkout not paid yet, waiting for async payment")
				telemetry.WebhookIgnored.Inc()
				c.JSON(http.StatusOK, gin.H{"received": true})
				return
			}

			// Once accepted, an event runs to a terminal state even if the sender hangs up.
			ctx := context.WithoutCancel(c.Request.Context())
			res, err := cfg.Processor.Process(ctx, fulfillment.Event{
				SessionID:       cs.ID,
				Metadata:        cs.Metadata,
				ContactFallback: payments.ContactFromSession(cs),
			})
			if err != nil {
				code := "fulfillment_failed"
				if errors.Is(err, fulfillment.ErrStorage) {
					code = "storage_unavailable"
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": code})
				return
			}
			c.JSON(http.StatusOK, gin.H{"received": true, "state": res.State})

		case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
			log.Warn("async payment failed, order will not be fulfilled")
			telemetry.WebhookIgnored.Inc()
			c.JSON(http.StatusOK, gin.H{"received": true})

		default:
			log.Debug("ignoring event type")
			telemetry.WebhookIgnored.Inc()
			c.JSON(http.StatusOK, gin.H{"received": true})
		}
	}
}
