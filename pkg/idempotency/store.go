package idempotency

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyKey         = errors.New("idempotency key must not be empty")
	ErrEmptyFingerprint = errors.New("request fingerprint must not be empty")
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Outcome of a Begin call.
type Outcome string

const (
	// OutcomeProceed means this caller owns the key and must run the
	// operation, then call Complete.
	OutcomeProceed Outcome = "proceed"
	// OutcomeReplay means the operation already completed; the stored
	// result must be returned verbatim without re-executing.
	OutcomeReplay Outcome = "replay"
	// OutcomeInProgress means a concurrent request holding the same key is
	// still running; this attempt is redundant and should be retried later.
	OutcomeInProgress Outcome = "in_progress"
	// OutcomeConflict means the key was reused with different request
	// parameters. Maps to a 409 idempotency_error on the boundary.
	OutcomeConflict Outcome = "conflict"
)

// Result is the stored response replayed for duplicate requests.
type Result struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

// Record is the unit of storage, one per idempotency key. The fingerprint
// never changes after creation and the status never moves backward from
// completed to in_progress.
type Record struct {
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint"`
	Status      Status    `json:"status"`
	Result      *Result   `json:"result,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store deduplicates mutating requests keyed by a client-supplied token.
// Begin is an atomic create-if-absent: of N concurrent calls with the same
// fresh key exactly one receives OutcomeProceed. Records expire after the
// configured TTL and expired records behave as absent.
type Store interface {
	Begin(ctx context.Context, key, fingerprint string) (Outcome, *Result, error)
	Complete(ctx context.Context, key string, result Result) error
}
