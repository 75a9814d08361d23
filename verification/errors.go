package verification

import (
	"errors"
	"fmt"
)

var (
	// ErrSubmission is matched by every SubmissionError
	ErrSubmission = errors.New("verification submission rejected")

	// ErrProofFailed is returned when the service reports proof generation failed
	ErrProofFailed = errors.New("proof generation failed")

	// ErrProofExpired is returned when the tracker's budget ran out before a terminal status
	ErrProofExpired = errors.New("proof status polling expired")
)

// SubmissionError reports that the verification service did not accept a job
type SubmissionError struct {
	StatusCode         int    // HTTP status, 0 when the request never completed
	VerificationStatus string // verificationStatus reported by a 2xx response
	Body               string
	Err                error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("verification submission failed: %v", e.Err)
	case e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode >= 300):
		return fmt.Sprintf("verification submission failed: status %d body %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("verification submission rejected: status '%s'", e.VerificationStatus)
	}
}

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }

func (e *SubmissionError) Unwrap() error { return e.Err }

// TransientError is a network or decode failure during status polling.
// It is retried and only surfaces as the reason of an Expired status.
type TransientError struct {
	ImageID string
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient proof status error for %s: %v", e.ImageID, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a TransientError
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
