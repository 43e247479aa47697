package payments

import (
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// SessionFromEvent decodes the checkout session carried by a checkout.session.* event.
func SessionFromEvent(ev stripe.Event) (*stripe.CheckoutSession, error) {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("event %s has no data object", ev.ID)
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if cs.ID == "" {
		return nil, fmt.Errorf("event %s: checkout session without id", ev.ID)
	}
	return &cs, nil
}

// IsFulfillable reports whether ev signals a paid checkout that should be fulfilled.
// checkout.session.completed with an unpaid session means a delayed payment
// method; fulfillment waits for async_payment_succeeded.
func IsFulfillable(ev stripe.Event, cs *stripe.CheckoutSession) bool {
	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return true
	default:
		return false
	}
}

// ContactFromSession returns the customer address Stripe collected, if any.
func ContactFromSession(cs *stripe.CheckoutSession) string {
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		return cs.CustomerDetails.Email
	}
	return cs.CustomerEmail
}

// CheckoutRequest describes one hosted checkout page.
type CheckoutRequest struct {
	ProductName   string
	Description   string
	AmountCents   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// SessionCreator creates hosted checkout sessions.
type SessionCreator interface {
	CreateSession(req CheckoutRequest) (*stripe.CheckoutSession, error)
}

// StripeCheckout creates sessions with the global Stripe client.
type StripeCheckout struct{}

// NewStripeCheckout sets the API key and returns a session creator.
func NewStripeCheckout(secretKey string) *StripeCheckout {
	stripe.Key = secretKey
	return &StripeCheckout{}
}

// CreateSession creates a payment-mode checkout session. Metadata is attached
// to both the session and its PaymentIntent.
func (s *StripeCheckout) CreateSession(req CheckoutRequest) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.CustomerEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ProductName),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{},
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
		params.PaymentIntentData.Metadata[k] = v
	}

	cs, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return cs, nil
}
