// Package errors provides error handling for sentinel.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for operators
//
// Usage:
//
//	// Wrap with context
//	if err := ledger.Append(line); err != nil {
//	    return errors.Wrap(err, "failed to append ledger entry")
//	}
//
//	// Mark a failure with its kind so callers can branch on it
//	return errors.Mark(errors.Newf("submit rejected: %s", body), errors.ErrExternalCall)
//
//	// Check errors
//	if errors.Is(err, errors.ErrKnowledgeUnavailable) {
//	    // fall back to defaults
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// Operator-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// GetStack returns the reportable stack trace attached to an error, if any.
var GetStack = crdb.GetReportableStackTrace

// Failure kinds of the decision loop.
// Use these with errors.Is() and attach them with errors.Mark() or errors.Wrap().
var (
	// ErrKnowledgeUnavailable indicates the knowledge source could not be read or parsed
	ErrKnowledgeUnavailable = New("knowledge base unavailable")

	// ErrFeasibilityRejected indicates a workload exceeds the margin-adjusted coherence limit
	ErrFeasibilityRejected = New("feasibility rejected")

	// ErrSafetyViolation indicates the obligation tolerance window was exceeded
	ErrSafetyViolation = New("safety violation")

	// ErrExternalCall indicates a synthesis or execution-backend call failed
	ErrExternalCall = New("external call failed")

	// ErrBreakerOpen indicates the health guard is refusing work
	ErrBreakerOpen = New("circuit breaker open")

	// ErrSigning indicates the ledger could not sign or verify a record
	ErrSigning = New("signing failed")

	// ErrNoSession indicates a submission was attempted without an open backend session
	ErrNoSession = New("no active backend session")

	// ErrRateLimited indicates a submission exceeded the configured rate
	ErrRateLimited = New("rate limit exceeded")
)

// IsExternalCallError checks if an error is or wraps ErrExternalCall
func IsExternalCallError(err error) bool {
	return err != nil && Is(err, ErrExternalCall)
}

// External marks err as an external-call failure while keeping its message and stack.
func External(err error, component string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, "%s call failed", component), ErrExternalCall)
}
