package idempotency

import "time"

// Status values for ledger entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// FulfillmentRecord is the shape persisted in the ledger, keyed by checkout session.
// Once Status is DONE the record is never changed again.
type FulfillmentRecord struct {
	SessionID   string     `dynamodbav:"session_id" json:"session_id"` // PK
	Status      string     `dynamodbav:"status" json:"status"`
	ClaimedAt   int64      `dynamodbav:"claimed_at" json:"claimed_at"` // epoch seconds of the latest claim
	ProcessedAt *time.Time `dynamodbav:"processed_at,omitempty" json:"processed_at,omitempty"`
	RunID       string     `dynamodbav:"run_id,omitempty" json:"run_id,omitempty"`
	Note        string     `dynamodbav:"note,omitempty" json:"note,omitempty"`
	UpdatedAt   time.Time  `dynamodbav:"updated_at" json:"updated_at"`
}

// reclaimable reports whether a new claim may take over this record.
func (r *FulfillmentRecord) reclaimable(now time.Time, claimTimeout time.Duration) bool {
	switch r.Status {
	case StatusFailed:
		return true
	case StatusInProgress:
		return claimTimeout > 0 && r.ClaimedAt < now.Add(-claimTimeout).Unix()
	default:
		return false
	}
}
