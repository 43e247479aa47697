package orders

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PendingOrder is everything needed to fulfil a paid checkout session.
// It is written at checkout and consumed once by fulfillment.
type PendingOrder struct {
	SessionID               string    `dynamodbav:"session_id" json:"session_id"` // PK
	DestinationURL          string    `dynamodbav:"destination_url" json:"destination_url"`
	ContactAddress          string    `dynamodbav:"contact_address" json:"contact_address"`
	RequestedVolume         int       `dynamodbav:"requested_volume" json:"requested_volume"`
	OutputCleaningRequested bool      `dynamodbav:"output_cleaning_requested" json:"output_cleaning_requested"`
	CreatedAt               time.Time `dynamodbav:"created_at" json:"created_at"`
	ExpiresAt               int64     `dynamodbav:"expires_at,omitempty" json:"expires_at,omitempty"` // TTL epoch seconds
}

// ErrInvalidOrder is returned for orders that can never be fulfilled.
var ErrInvalidOrder = errors.New("invalid order")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,255}$`)

// ValidSessionID reports whether id is safe to use as a storage key.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Validate checks the fields fulfillment depends on.
func (o PendingOrder) Validate() error {
	switch {
	case !ValidSessionID(o.SessionID):
		return fmt.Errorf("%w: bad session id %q", ErrInvalidOrder, o.SessionID)
	case o.DestinationURL == "":
		return fmt.Errorf("%w: destination url is empty", ErrInvalidOrder)
	case !strings.Contains(o.ContactAddress, "@"):
		return fmt.Errorf("%w: contact address %q", ErrInvalidOrder, o.ContactAddress)
	case o.RequestedVolume <= 0:
		return fmt.Errorf("%w: requested volume %d", ErrInvalidOrder, o.RequestedVolume)
	}
	return nil
}

// stamp fills CreatedAt and ExpiresAt before a write.
func (o *PendingOrder) stamp(now time.Time, ttl time.Duration) {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now.UTC()
	}
	if ttl > 0 && o.ExpiresAt == 0 {
		o.ExpiresAt = o.CreatedAt.Add(ttl).Unix()
	}
}
