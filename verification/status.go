package verification

import (
	"fmt"
	"time"
)

// Kind tags a ProofStatus
type Kind int

const (
	Pending Kind = iota
	Proven
	Failed
	Expired
)

func (k Kind) String() string {
	switch k {
	case Pending:
		return "pending"
	case Proven:
		return "proven"
	case Failed:
		return "failed"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Values of proofStatus reported by the status endpoint
const (
	StatusProven   = "proven"
	StatusUnproven = "unproven"
	StatusFailed   = "failed"
)

// Artifact is the zero-knowledge proof output returned once verification succeeds
type Artifact struct {
	SourceHash string   `json:"sourceHash"`
	DestHash   string   `json:"destHash"`
	Proof      []string `json:"proof"`
	ContentURI string   `json:"walrusURI,omitempty"`
}

// ProofStatus is one observation of a verification job.
// Artifact is set only for Proven; Reason only for Failed and Expired.
type ProofStatus struct {
	Kind     Kind
	Artifact *Artifact
	Reason   string
	Err      error // transient error behind a Pending or Expired status
}

// Terminal reports whether no further status can follow
func (s ProofStatus) Terminal() bool {
	return s.Kind != Pending
}

// Job is a verification job accepted by the service
type Job struct {
	ImageID     string    `json:"image_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type verifyRequest struct {
	Image string `json:"image"`
	Logs  string `json:"logs"`
}

type verifyResponse struct {
	VerificationStatus string `json:"verificationStatus"`
	ImageID            string `json:"ImageID"`
}

// StatusResponse is the body of the proof status endpoint
type StatusResponse struct {
	ProofStatus string    `json:"proofStatus"`
	ZKProof     *Artifact `json:"ZKproof,omitempty"`
}
