package schedule

import (
	"errors"
	"fmt"
	"time"
)

// Reason codes for unrecoverable failures.
const (
	ReasonSchema = "schema_invalid"
	ReasonPolicy = "policy_rejected"
	ReasonVirus  = "virus_detected"
	ReasonConfig = "config_missing"
)

// PermanentError marks a failure that retrying cannot fix: malformed input,
// a policy rejection, or broken configuration. Anything not wrapped in a
// PermanentError is treated as transient.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as an unrecoverable failure with the given reason code.
func Permanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

// Decision is the scheduling outcome for a failed attempt.
type Decision struct {
	Retry  bool
	Delay  time.Duration
	Reason string
}

// Classify maps a pipeline failure to a scheduling decision. Unrecoverable
// failures are discarded; everything else retries at the ladder delay for
// the given 0-based attempt count.
func Classify(err error, attempt int) Decision {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return Decision{Retry: false, Reason: perm.Reason}
	}
	return Decision{Retry: true, Delay: NextDelay(attempt)}
}
