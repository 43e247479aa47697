package fulfillment

import "errors"

// Error taxonomy. Verification failures never reach this package; see
// payments.ErrVerification.
var (
	ErrRecovery     = errors.New("order recovery failed")
	ErrJobTrigger   = errors.New("job trigger failed")
	ErrNotification = errors.New("notification failed")
	ErrStorage      = errors.New("storage failure")
)

// State is a step of one session's fulfillment.
type State string

const (
	StateReceived     State = "received"
	StateVerified     State = "verified"
	StateDeduplicated State = "deduplicated"
	StateRecovering   State = "recovering"
	StateRecovered    State = "recovered"
	StateTriggering   State = "triggering"
	StateNotifying    State = "notifying"
	StateFinalized    State = "finalized"
	StateErrored      State = "errored"
)

// Terminal reports whether processing stops in s.
func (s State) Terminal() bool {
	return s == StateDeduplicated || s == StateFinalized || s == StateErrored
}
