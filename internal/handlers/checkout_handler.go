package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/leadflow/internal/fulfillment"
	"github.com/imrishuroy/leadflow/internal/metacodec"
	"github.com/imrishuroy/leadflow/internal/orders"
	"github.com/imrishuroy/leadflow/internal/payments"
	"github.com/imrishuroy/leadflow/internal/telemetry"
	"github.com/imrishuroy/leadflow/internal/validation"
)

// Stripe accepts at most this many metadata keys per object.
const maxMetadataKeys = 50

func checkoutHandler(cfg HandlerConfig, v *validatorv10.Validate) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateCheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			telemetry.CheckoutRejects.Inc()
			return
		}

		order := orders.PendingOrder{
			DestinationURL:          req.SearchURL,
			ContactAddress:          req.Email,
			RequestedVolume:         req.Leads,
			OutputCleaningRequested: req.CleanOutput,
		}
		md := fulfillment.EncodeMetadata(order, cfg.Config.MetadataFieldLimit)
		if len(md) > maxMetadataKeys {
			telemetry.CheckoutRejects.Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": "search_url_too_long"})
			return
		}

		amount := cfg.Config.PriceCents(req.Leads)
		cs, err := cfg.Checkout.CreateSession(payments.CheckoutRequest{
			ProductName:   fmt.Sprintf("%d leads", req.Leads),
			Description:   metacodec.Encode(req.SearchURL, cfg.Config.MetadataFieldLimit).Truncated,
			AmountCents:   amount,
			Currency:      cfg.Config.Currency,
			CustomerEmail: req.Email,
			SuccessURL:    cfg.Config.CheckoutSuccessURL,
			CancelURL:     cfg.Config.CheckoutCancelURL,
			Metadata:      md,
		})
		if err != nil {
			requestLog(c).WithError(err).Error("checkout session creation failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "checkout_unavailable"})
			return
		}

		order.SessionID = cs.ID
		if err := cfg.Orders.Put(ctx, order); err != nil {
			requestLog(c).WithField("session_id", cs.ID).WithError(err).Error("failed to stage order")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_store_failed"})
			return
		}

		telemetry.CheckoutsCreated.Inc()
		requestLog(c).WithField("session_id", cs.ID).WithField("leads", req.Leads).WithField("amount_cents", amount).Info("checkout session created")
		c.JSON(http.StatusOK, gin.H{"sessionId": cs.ID, "url": cs.URL})
	}
}
