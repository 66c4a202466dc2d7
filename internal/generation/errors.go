// Package generation implements one decoding step over a batch of in-flight
// requests: token choice, incremental detokenization, stopping and the
// assembly of per-request outputs, partitioned across cooperating shards.
package generation

import "github.com/pkg/errors"

var (
	// ErrInvariantViolation marks corrupted batch state. The step that hit it
	// must be abandoned.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrCollaboratorFailure marks a failing or malformed forward pass or
	// tokenizer. It is propagated as is, never retried.
	ErrCollaboratorFailure = errors.New("collaborator failure")
	// ErrInvalidRequest is returned when a request cannot join a batch.
	ErrInvalidRequest = errors.New("invalid request")
)
