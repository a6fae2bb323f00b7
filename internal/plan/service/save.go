package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nholding/lifting-book/internal/allocation"
	"github.com/nholding/lifting-book/internal/contract"
	"github.com/nholding/lifting-book/internal/logger"
	"github.com/nholding/lifting-book/internal/plan/domain"
	"github.com/nholding/lifting-book/internal/plan/repository"
)

// ConfirmCascadeFunc asks whether deleting a plan record may cascade to its
// linked downstream cargo records. Returning false keeps the record.
type ConfirmCascadeFunc func(planID string, cargoIDs []string) bool

// SaveReport is the outcome of one batch save: every attempted remote write
// with its result, plus the validator's data-quality warnings.
type SaveReport struct {
	Outcomes []domain.RecordOutcome
	Warnings []allocation.Warning
}

// Saver runs the explicit "save all" path: reconciliation first (all or
// nothing), then per-record persistence where partial completion is possible
// and reported record by record.
type Saver struct {
	gateway repository.Gateway
	log     *logrus.Logger

	// ConfirmCascade gates cascading cargo deletion. When nil, records
	// with linked cargos are never deleted.
	ConfirmCascade ConfirmCascadeFunc
}

func NewSaver(gateway repository.Gateway) *Saver {
	return &Saver{
		gateway: gateway,
		log:     logger.Get(),
	}
}

// SaveAll validates the whole buffer against the quarterly allocation and,
// only if it balances, persists every row: creates for rows without an id,
// version-guarded updates for the rest, deletes for combi slots reduced to
// zero. Validation failure aborts before ANY write. After validation,
// per-record failures do not stop the remaining records; they are collected
// and returned as a partial-failure error.
func (s *Saver) SaveAll(ctx context.Context, store *domain.MonthlyEntryStore, plan *allocation.Plan, c *contract.Contract) (*SaveReport, error) {
	res, err := allocation.Validate(store.All(), plan, c)
	if err != nil {
		return nil, err
	}

	report := &SaveReport{Warnings: res.Warnings}
	failed := false

	for _, e := range store.All() {
		records, deletions := domain.ExplodeGroup(e)

		for _, rec := range records {
			// Exploded combi members carry their quantity directly; only a
			// genuinely empty draft row has nothing to write.
			if !rec.Persisted() && !rec.Quantity.IsPositive() {
				continue
			}
			outcome := s.saveRecord(ctx, e, rec)
			report.Outcomes = append(report.Outcomes, outcome)
			failed = failed || outcome.Err != nil
		}

		for _, slot := range deletions {
			outcome := domain.RecordOutcome{PlanID: slot.PlanID, Err: s.deleteByID(ctx, slot.PlanID, e)}
			report.Outcomes = append(report.Outcomes, outcome)
			failed = failed || outcome.Err != nil
			if outcome.Err == nil {
				clearSlotIdentity(e, slot.PlanID)
			}
		}
	}

	if failed {
		return report, &domain.PartialFailureError{Op: "batch save", Outcomes: report.Outcomes}
	}

	s.log.WithFields(logrus.Fields{
		"module":  "plan",
		"records": len(report.Outcomes),
	}).Info("batch save completed")
	return report, nil
}

// DeleteEntry removes an entry from the buffer and from persistence, walking
// the cargo-cascade confirmation when downstream cargos are linked.
// Unsaved drafts are only dropped locally.
func (s *Saver) DeleteEntry(ctx context.Context, store *domain.MonthlyEntryStore, e *domain.MonthlyEntry) error {
	for _, planID := range memberPlanIDs(e) {
		if err := s.deleteByID(ctx, planID, e); err != nil {
			return err
		}
	}
	store.Remove(e)
	return nil
}

func (s *Saver) saveRecord(ctx context.Context, logical, rec *domain.MonthlyEntry) domain.RecordOutcome {
	if !rec.Persisted() {
		created, err := s.gateway.Create(ctx, rec)
		if err != nil {
			logger.LogError(s.log, "plan", "SaveAll", "create failed", rec.ProductName, err)
			return domain.RecordOutcome{Err: classifyRemoteError("create plan", err)}
		}
		adoptIdentity(logical, created)
		return domain.RecordOutcome{PlanID: created.ID}
	}

	updated, err := s.gateway.Update(ctx, rec.ID, updateFields(rec), rec.Version)
	if err != nil {
		logger.LogError(s.log, "plan", "SaveAll", "update failed", rec.ID, err)
		return domain.RecordOutcome{PlanID: rec.ID, Err: classifyRemoteError("update plan", err)}
	}
	adoptIdentity(logical, updated)
	return domain.RecordOutcome{PlanID: rec.ID}
}

// deleteByID deletes one persisted record, cascading to linked cargos only
// after explicit confirmation.
func (s *Saver) deleteByID(ctx context.Context, planID string, e *domain.MonthlyEntry) error {
	if planID == "" {
		return nil
	}

	if e.HasCompletedCargos {
		return &domain.LockedError{PlanID: planID, Reason: "plan has completed cargos"}
	}

	if e.HasCargos && len(e.CargoIDs) > 0 {
		if s.ConfirmCascade == nil || !s.ConfirmCascade(planID, e.CargoIDs) {
			return &domain.LockedError{PlanID: planID, Reason: "cascading cargo deletion not confirmed"}
		}
		for _, cargoID := range e.CargoIDs {
			if err := s.gateway.DeleteCargo(ctx, cargoID); err != nil {
				return classifyRemoteError("delete cargo", fmt.Errorf("delete cargo %s: %w", cargoID, err))
			}
		}
	}

	return classifyRemoteError("delete plan", s.gateway.Delete(ctx, planID))
}

// updateFields builds the partial update for one persisted record: the
// product and group-membership fields plus whichever schedule family the
// entry carries. Membership must travel with every save so that enabling or
// dissolving a combi group on an already-persisted record survives a reload.
func updateFields(rec *domain.MonthlyEntry) map[string]any {
	fields := map[string]any{
		"product_name":   rec.ProductName,
		"quantity":       rec.Quantity,
		"is_combi":       rec.IsCombi,
		"combi_group_id": rec.CombiGroupID,
	}
	switch sched := rec.Schedule.(type) {
	case *domain.FobSchedule:
		fields["laycan_5_days"] = sched.Laycan5Days
		fields["laycan_2_days"] = sched.Laycan2Days
		fields["remark"] = sched.Remark
	case *domain.CifSchedule:
		fields["loading_month"] = sched.LoadingMonth
		fields["loading_window"] = sched.LoadingWindow
		fields["cif_route"] = string(sched.Route)
		fields["delivery_month"] = sched.DeliveryMonth
		fields["delivery_window"] = sched.DeliveryWindow
		fields["remark"] = sched.Remark
	}
	return fields
}

// adoptIdentity folds a server response into the logical entry: the id and
// version land on the entry itself or on the matching combi slot.
func adoptIdentity(logical, saved *domain.MonthlyEntry) {
	if !logical.IsCombi {
		logical.ID = saved.ID
		logical.Version = saved.Version
		return
	}
	for i := range logical.Slots {
		if logical.Slots[i].Product == saved.ProductName {
			logical.Slots[i].PlanID = saved.ID
			logical.Slots[i].Version = saved.Version
			return
		}
	}
}

func clearSlotIdentity(e *domain.MonthlyEntry, planID string) {
	for i := range e.Slots {
		if e.Slots[i].PlanID == planID {
			e.Slots[i].PlanID = ""
			e.Slots[i].Version = 0
			return
		}
	}
}
