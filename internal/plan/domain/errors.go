package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Error taxonomy of the reconciliation engine. Callers are expected to match
// with errors.As and branch on the concrete type: validation failures are
// caught before any remote write, conflicts demand a refresh, locks block the
// operation, partial failures need manual reconciliation. Transient failures
// are NOT retried automatically anywhere; the user re-triggers the action.

// ValidationError reports a local pre-save rule violation. No remote write
// has happened when one is returned.
type ValidationError struct {
	Reason string

	// Set for quarter-sum mismatches, zero-valued otherwise.
	Product  string
	Quarter  string
	Entered  decimal.Decimal
	Required decimal.Decimal
}

func (e *ValidationError) Error() string {
	if e.Product != "" {
		return fmt.Sprintf("%s: product %s quarter %s entered %s, required %s",
			e.Reason, e.Product, e.Quarter, e.Entered, e.Required)
	}
	return e.Reason
}

// ConflictError reports a stale optimistic-lock version. The caller must
// re-fetch the authoritative record; retrying with the old payload is never
// correct.
type ConflictError struct {
	PlanID          string
	SuppliedVersion int64
	CurrentVersion  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("plan %s: version conflict (supplied %d, current %d)",
		e.PlanID, e.SuppliedVersion, e.CurrentVersion)
}

// LockedError reports that a plan cannot be deleted or moved because it is
// locked or has completed cargos.
type LockedError struct {
	PlanID string
	Reason string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("plan %s is locked: %s", e.PlanID, e.Reason)
}

// RecordOutcome is the per-record result of a multi-record operation.
type RecordOutcome struct {
	PlanID string
	Err    error // nil on success
}

// PartialFailureError reports a multi-record operation (combi move, batch
// save) where some records succeeded and others failed. There is no
// automatic compensating rollback; the outcomes are surfaced for manual
// reconciliation.
type PartialFailureError struct {
	Op       string
	Outcomes []RecordOutcome
}

func (e *PartialFailureError) Error() string {
	succeeded, failed := 0, 0
	for _, o := range e.Outcomes {
		if o.Err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	return fmt.Sprintf("%s partially failed: %d succeeded, %d failed", e.Op, succeeded, failed)
}

// Failed returns the outcomes that carry errors.
func (e *PartialFailureError) Failed() []RecordOutcome {
	var out []RecordOutcome
	for _, o := range e.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// TransientError wraps a network or storage failure that may succeed on a
// user-triggered retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
