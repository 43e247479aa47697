package payments

import (
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// SignatureHeader is the header Stripe signs webhook deliveries with.
const SignatureHeader = "Stripe-Signature"

// ErrVerification means the event could not be authenticated. Callers must
// reject the request and must not look at the payload.
var ErrVerification = errors.New("webhook verification failed")

// Verifier authenticates Stripe webhook deliveries.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier returns a Verifier for the endpoint signing secret (whsec_...).
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Verify checks signatureHeader against the untouched request body and only
// then parses it. API version mismatches are tolerated; the fields we read are
// stable across versions.
func (v *Verifier) Verify(rawBytes []byte, signatureHeader string) (stripe.Event, error) {
	return Verify(rawBytes, signatureHeader, v.secret, v.tolerance)
}

// Verify is the stateless form of Verifier.Verify.
func Verify(rawBytes []byte, signatureHeader, secret string, tolerance time.Duration) (stripe.Event, error) {
	if secret == "" {
		return stripe.Event{}, fmt.Errorf("%w: no signing secret configured", ErrVerification)
	}
	if signatureHeader == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing %s header", ErrVerification, SignatureHeader)
	}
	if len(rawBytes) == 0 {
		return stripe.Event{}, fmt.Errorf("%w: empty body", ErrVerification)
	}
	event, err := webhook.ConstructEventWithOptions(rawBytes, signatureHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	return event, nil
}
