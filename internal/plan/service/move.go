package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nholding/lifting-book/internal/contract"
	"github.com/nholding/lifting-book/internal/fiscal"
	"github.com/nholding/lifting-book/internal/logger"
	"github.com/nholding/lifting-book/internal/plan/domain"
	"github.com/nholding/lifting-book/internal/plan/repository"
)

type MoveState string

const (
	MoveStateRequested MoveState = "REQUESTED"
	MoveStateValidated MoveState = "VALIDATED"
	MoveStateExecuting MoveState = "EXECUTING"
	MoveStateCompleted MoveState = "COMPLETED"
	MoveStateFailed    MoveState = "FAILED"
)

// MoveTransition is one step of a move request's state trail.
type MoveTransition struct {
	OldState  MoveState `json:"oldState"`
	NewState  MoveState `json:"newState"`
	ChangedAt time.Time `json:"changedAt"`
	ChangedBy string    `json:"changedBy"`
	Note      string    `json:"note,omitempty"`
}

// MoveRequest relocates one plan entry (or a whole combi group) to a
// different month. Requests are transient: they live only for the duration
// of the operation, but keep an append-only trail so a failed move records
// where it stopped.
type MoveRequest struct {
	Entry  *domain.MonthlyEntry
	Action repository.MoveAction

	TargetMonth int
	TargetYear  int

	// Required for cross-quarter and cross-year moves.
	AuthorityReference string
	Reason             string

	RequestedBy string

	State MoveState
	Trail []MoveTransition
}

func NewMoveRequest(e *domain.MonthlyEntry, action repository.MoveAction, targetMonth, targetYear int, requestedBy string) *MoveRequest {
	now := time.Now().UTC()
	return &MoveRequest{
		Entry:       e,
		Action:      action,
		TargetMonth: targetMonth,
		TargetYear:  targetYear,
		RequestedBy: requestedBy,
		State:       MoveStateRequested,
		Trail: []MoveTransition{
			{
				OldState:  MoveStateRequested,
				NewState:  MoveStateRequested,
				ChangedAt: now,
				ChangedBy: requestedBy,
				Note:      "move requested",
			},
		},
	}
}

func (r *MoveRequest) transition(to MoveState, note string) {
	r.Trail = append(r.Trail, MoveTransition{
		OldState:  r.State,
		NewState:  to,
		ChangedAt: time.Now().UTC(),
		ChangedBy: r.RequestedBy,
		Note:      note,
	})
	r.State = to
}

// MoveScheduler relocates cargo entries across months while enforcing the
// fiscal-quarter authority policy.
type MoveScheduler struct {
	gateway repository.Gateway
	store   *domain.MonthlyEntryStore
	log     *logrus.Logger
}

func NewMoveScheduler(gateway repository.Gateway, store *domain.MonthlyEntryStore) *MoveScheduler {
	return &MoveScheduler{
		gateway: gateway,
		store:   store,
		log:     logger.Get(),
	}
}

// Move
//
// PURPOSE:
//
//	Relocates one plan entry (single product or whole combi group) to a
//	different scheduling month, under the fiscal authority policy:
//
//	  - SPOT contracts never move (terminal rejection, the request's
//	    trail is not even started past REQUESTED).
//	  - A move that stays inside its fiscal quarter needs no approval
//	    and keeps all negotiated windows.
//	  - A move that crosses a fiscal quarter or year boundary requires
//	    an authority reference AND a reason, and wipes the negotiated
//	    laycan/delivery windows: they must be renegotiated, losing
//	    them on such a move is deliberate.
//
//	The source quarter of a CIF entry is derived from its PARSED
//	delivery month, not the loading month: what matters contractually
//	is when the cargo arrives.
//
// STATE MACHINE (recorded in the request trail):
//
//	REQUESTED -> VALIDATED -> EXECUTING -> COMPLETED
//	                     \-> FAILED     \-> FAILED
//
// COMBI GROUPS:
//
//	All sibling plan records move together. If a sibling's remote move
//	fails mid-way the operation stops and returns a partial-failure
//	error listing which siblings moved and which did not; already-moved
//	siblings are NOT rolled back. Manual reconciliation is expected.
//
// EXAMPLE USAGE:
//
//	req := NewMoveRequest(entry, repository.MoveDefer, 10, 2026, "trader1")
//	req.AuthorityReference = "MOE/2026/114"
//	req.Reason = "refinery turnaround"
//
//	if err := scheduler.Move(ctx, c, req); err != nil {
//	    // req.State and req.Trail say how far it got
//	}
func (s *MoveScheduler) Move(ctx context.Context, c *contract.Contract, req *MoveRequest) error {
	e := req.Entry

	// SPOT contracts are single-cargo deals; relocation is meaningless.
	// Rejected before any transition is attempted.
	if c.Category == contract.CategorySpot {
		return &domain.ValidationError{Reason: "SPOT contract entries cannot be moved"}
	}

	if req.TargetMonth < 1 || req.TargetMonth > 12 {
		req.transition(MoveStateFailed, fmt.Sprintf("invalid target month %d", req.TargetMonth))
		return &domain.ValidationError{Reason: fmt.Sprintf("invalid target month %d", req.TargetMonth)}
	}

	targetDate := time.Date(req.TargetYear, time.Month(req.TargetMonth), 1, 0, 0, 0, 0, time.UTC)
	if !c.InPeriod(targetDate) {
		req.transition(MoveStateFailed, "target month outside contract period")
		return &domain.ValidationError{
			Reason: fmt.Sprintf("target month %d/%d lies outside the contract period", req.TargetMonth, req.TargetYear),
		}
	}

	ids := memberPlanIDs(e)
	if len(ids) == 0 {
		req.transition(MoveStateFailed, "entry has no durable id")
		return &domain.ValidationError{Reason: "entry must be saved before it can be moved"}
	}

	source, err := e.DeliveryKey()
	if err != nil {
		req.transition(MoveStateFailed, err.Error())
		return &domain.ValidationError{Reason: fmt.Sprintf("cannot resolve source month: %v", err)}
	}

	sourceQuarter := fiscal.QuarterForMonth(c.FiscalStartMonth, source.Month)
	targetQuarter := fiscal.QuarterForMonth(c.FiscalStartMonth, req.TargetMonth)
	crossBoundary := sourceQuarter != targetQuarter || source.Year != req.TargetYear

	if crossBoundary && (req.AuthorityReference == "" || req.Reason == "") {
		req.transition(MoveStateFailed, "cross-quarter move without authority reference")
		return &domain.ValidationError{
			Reason: fmt.Sprintf("move from Q%d to Q%d crosses a fiscal boundary and requires an authority reference and reason",
				sourceQuarter, targetQuarter),
		}
	}

	req.transition(MoveStateValidated, fmt.Sprintf("Q%d -> Q%d", sourceQuarter, targetQuarter))
	req.transition(MoveStateExecuting, "")

	in := repository.MoveInput{
		Action:       req.Action,
		TargetMonth:  req.TargetMonth,
		TargetYear:   req.TargetYear,
		Reason:       req.Reason,
		ClearWindows: crossBoundary,
	}

	oldKey := e.Key()
	outcomes := make([]domain.RecordOutcome, 0, len(ids))

	for _, planID := range ids {
		moved, err := s.gateway.Move(ctx, planID, in)
		if err != nil {
			err = classifyRemoteError("move plan", err)
		}
		outcomes = append(outcomes, domain.RecordOutcome{PlanID: planID, Err: err})
		if err != nil {
			logger.LogError(s.log, "plan", "Move", "sibling move failed", planID, err)
			req.transition(MoveStateFailed, fmt.Sprintf("sibling %s: %v", planID, err))
			if len(ids) == 1 {
				return err
			}
			return &domain.PartialFailureError{Op: "move combi group", Outcomes: outcomes}
		}
		applyMoved(e, planID, moved)
	}

	e.Month = req.TargetMonth
	e.Year = req.TargetYear
	if crossBoundary {
		e.ClearWindows()
	}
	if s.store != nil {
		s.store.Rekey(e, oldKey)
	}

	req.transition(MoveStateCompleted, "")
	s.log.WithFields(logrus.Fields{
		"module":  "plan",
		"records": len(ids),
		"month":   req.TargetMonth,
		"year":    req.TargetYear,
	}).Info("move completed")
	return nil
}

// memberPlanIDs lists the durable records behind a logical entry: the entry
// itself, or every persisted slot of a combi group.
func memberPlanIDs(e *domain.MonthlyEntry) []string {
	if !e.IsCombi {
		if e.ID == "" {
			return nil
		}
		return []string{e.ID}
	}
	var ids []string
	for _, slot := range e.Slots {
		if slot.PlanID != "" {
			ids = append(ids, slot.PlanID)
		}
	}
	return ids
}

// applyMoved folds a server response back into the logical entry: the
// single-product version token, or the matching combi slot's.
func applyMoved(e *domain.MonthlyEntry, planID string, moved *domain.MonthlyEntry) {
	if !e.IsCombi {
		e.Version = moved.Version
		return
	}
	for i := range e.Slots {
		if e.Slots[i].PlanID == planID {
			e.Slots[i].Version = moved.Version
			return
		}
	}
}
