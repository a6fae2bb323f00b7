package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nholding/lifting-book/internal/allocation"
	"github.com/nholding/lifting-book/internal/plan/domain"
	"github.com/nholding/lifting-book/internal/utils"
)

// One product lifted in Q1 only; the other quarters carry no target.
func balancedPlan() *allocation.Plan {
	return &allocation.Plan{
		ID:           "qp-1",
		ContractID:   "c-1",
		ContractYear: 1,
		Allocations: []allocation.ProductAllocation{
			{Product: "MOGAS 95", Quarters: [4]allocation.QuarterTarget{{Target: kt("30")}}},
			{Product: "GASOIL"},
		},
	}
}

func TestSaveAll_ValidationFailureAbortsBeforeAnyWrite(t *testing.T) {
	g := newGateway()
	saver := NewSaver(g)

	// 25 KT entered against a 30 KT Q1 target.
	store := domain.NewMonthlyEntryStore([]*domain.MonthlyEntry{
		{ContractID: "c-1", Month: 7, Year: 2026, ProductName: "MOGAS 95", Quantity: kt("25")},
	})

	_, err := saver.SaveAll(context.Background(), store, balancedPlan(), termContract())

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *domain.ValidationError, got %v", err)
	}
	if len(g.UpdateCalls) != 0 {
		t.Error("validation failure must abort before any write")
	}
	if g.Stored("p-1") != nil {
		t.Error("no record may be created when validation fails")
	}
}

func TestSaveAll_CreatesDraftsAndUpdatesPersisted(t *testing.T) {
	g := newGateway()
	ctx := context.Background()
	saver := NewSaver(g)

	persisted := g.Seed(&domain.MonthlyEntry{
		ContractID: "c-1", Month: 7, Year: 2026,
		ProductName: "MOGAS 95", Quantity: kt("20"),
	})
	draft := &domain.MonthlyEntry{
		ContractID: "c-1", Month: 8, Year: 2026,
		ProductName: "MOGAS 95", Quantity: kt("10"),
	}
	store := domain.NewMonthlyEntryStore([]*domain.MonthlyEntry{persisted, draft})

	report, err := saver.SaveAll(ctx, store, balancedPlan(), termContract())
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(report.Outcomes))
	}

	if !draft.Persisted() {
		t.Error("draft row must receive a durable id")
	}
	if draft.Version != 1 {
		t.Errorf("created draft version = %d, want 1", draft.Version)
	}
	if persisted.Version != 2 {
		t.Errorf("updated row version = %d, want server-bumped 2", persisted.Version)
	}
}

func TestSaveAll_DeletesZeroedCombiSlots(t *testing.T) {
	g := newGateway()
	ctx := context.Background()
	saver := NewSaver(g)

	mogas := g.Seed(&domain.MonthlyEntry{
		ContractID: "c-1", Month: 7, Year: 2026,
		ProductName: "MOGAS 95", Quantity: kt("30"),
		IsCombi: true, CombiGroupID: "grp-1",
	})
	gasoil := g.Seed(&domain.MonthlyEntry{
		ContractID: "c-1", Month: 7, Year: 2026,
		ProductName: "GASOIL", Quantity: kt("10"),
		IsCombi: true, CombiGroupID: "grp-1",
	})

	// The GASOIL slot has been edited down to zero.
	group := &domain.MonthlyEntry{
		ContractID: "c-1", Month: 7, Year: 2026,
		IsCombi: true, CombiGroupID: "grp-1",
		Quantity: kt("30"),
		Slots: []domain.CombiSlot{
			{Product: "MOGAS 95", Quantity: kt("30"), PlanID: mogas.ID, Version: 1},
			{Product: "GASOIL", Quantity: decimal.Zero, PlanID: gasoil.ID, Version: 1},
		},
	}
	store := domain.NewMonthlyEntryStore([]*domain.MonthlyEntry{group})

	if _, err := saver.SaveAll(ctx, store, balancedPlan(), termContract()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	if g.Stored(gasoil.ID) != nil {
		t.Error("zeroed combi slot must be deleted from persistence")
	}
	if g.Stored(mogas.ID) == nil {
		t.Error("nonzero combi slot must survive")
	}
	if group.Slots[1].PlanID != "" {
		t.Error("deleted slot must lose its plan id in the buffer")
	}
}

// Both products targeted in Q1, so a two-slot combi cargo balances the year.
func combiPlan() *allocation.Plan {
	return &allocation.Plan{
		ID:           "qp-1",
		ContractID:   "c-1",
		ContractYear: 1,
		Allocations: []allocation.ProductAllocation{
			{Product: "MOGAS 95", Quarters: [4]allocation.QuarterTarget{{Target: kt("30")}}},
			{Product: "GASOIL", Quarters: [4]allocation.QuarterTarget{{Target: kt("10")}}},
		},
	}
}

func TestSaveAll_CreatesNewCombiGroupMembers(t *testing.T) {
	g := newGateway()
	ctx := context.Background()
	saver := NewSaver(g)

	// A brand-new combi row: no member has been persisted yet.
	group := &domain.MonthlyEntry{
		QuarterlyPlanID: "qp-1",
		ContractID:      "c-1", Month: 7, Year: 2026,
		IsCombi: true, CombiGroupID: "grp-1",
		Quantity: kt("40"),
		Slots: []domain.CombiSlot{
			{Product: "MOGAS 95", Quantity: kt("30")},
			{Product: "GASOIL", Quantity: kt("10")},
		},
	}
	store := domain.NewMonthlyEntryStore([]*domain.MonthlyEntry{group})

	report, err := saver.SaveAll(ctx, store, combiPlan(), termContract())
	if err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want one create per member", len(report.Outcomes))
	}

	for i, slot := range group.Slots {
		if slot.PlanID == "" {
			t.Fatalf("slot %d did not adopt a plan id", i)
		}
		stored := g.Stored(slot.PlanID)
		if stored == nil {
			t.Fatalf("member %s was not persisted", slot.Product)
		}
		if !stored.IsCombi || stored.CombiGroupID != "grp-1" {
			t.Errorf("member %s stored as IsCombi=%v group=%q, want combi member of grp-1",
				slot.Product, stored.IsCombi, stored.CombiGroupID)
		}
		if !stored.Quantity.Equal(slot.Quantity) {
			t.Errorf("member %s stored quantity = %s, want %s", slot.Product, stored.Quantity, slot.Quantity)
		}
	}

	// A reload folds the two member records back into one editing row.
	reloaded, err := NewLoader(g).Load(ctx, termContract(), "qp-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("reloaded rows = %d, want the members merged into one group", reloaded.Len())
	}
	if !reloaded.All()[0].Quantity.Equal(kt("40")) {
		t.Errorf("reloaded group quantity = %s, want 40", reloaded.All()[0].Quantity)
	}
}

func TestSaveAll_EnableCombiSurvivesReload(t *testing.T) {
	g := newGateway()
	ctx := context.Background()
	saver := NewSaver(g)

	seeded := g.Seed(&domain.MonthlyEntry{
		QuarterlyPlanID: "qp-1",
		ContractID:      "c-1", Month: 7, Year: 2026,
		ProductName: "MOGAS 95", Quantity: kt("30"),
	})

	mgr := domain.NewCombiGroupManager(&utils.SequenceProvider{Prefix: "g"})
	mgr.EnableCombi(seeded, termContract().ProductNames())
	store := domain.NewMonthlyEntryStore([]*domain.MonthlyEntry{seeded})

	if _, err := saver.SaveAll(ctx, store, balancedPlan(), termContract()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	stored := g.Stored(seeded.ID)
	if !stored.IsCombi {
		t.Error("stored record must be flagged as a combi member")
	}
	if stored.CombiGroupID != seeded.CombiGroupID {
		t.Errorf("stored group id = %q, want %q", stored.CombiGroupID, seeded.CombiGroupID)
	}

	reloaded, err := NewLoader(g).Load(ctx, termContract(), "qp-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("reloaded rows = %d, want 1", reloaded.Len())
	}
	row := reloaded.All()[0]
	if !row.IsCombi || row.CombiGroupID != seeded.CombiGroupID {
		t.Errorf("reloaded row IsCombi=%v group=%q, combi membership must survive the round trip",
			row.IsCombi, row.CombiGroupID)
	}
}

func TestSaveAll_PartialFailureReportedPerRecord(t *testing.T) {
	g := newGateway()
	ctx := context.Background()
	saver := NewSaver(g)

	first := g.Seed(&domain.MonthlyEntry{
		ContractID: "c-1", Month: 7, Year: 2026,
		ProductName: "MOGAS 95", Quantity: kt("20"),
	})
	second := g.Seed(&domain.MonthlyEntry{
		ContractID: "c-1", Month: 8, Year: 2026,
		ProductName: "MOGAS 95", Quantity: kt("10"),
	})
	store := domain.NewMonthlyEntryStore([]*domain.MonthlyEntry{first, second})

	g.FailNext = errors.New("connection reset")
	g.FailPlanID = second.ID

	report, err := saver.SaveAll(ctx, store, balancedPlan(), termContract())

	var partial *domain.PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected *domain.PartialFailureError, got %v", err)
	}
	if len(report.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want one per record", len(report.Outcomes))
	}
	if len(partial.Failed()) != 1 {
		t.Errorf("failed outcomes = %d, want 1", len(partial.Failed()))
	}
	// An infrastructure error is reported as transient, not as a
	// validation or conflict failure.
	var transient *domain.TransientError
	if !errors.As(partial.Failed()[0].Err, &transient) {
		t.Errorf("failed outcome error = %v, want *domain.TransientError", partial.Failed()[0].Err)
	}
	// The surviving record was still written.
	if g.Stored(first.ID).Version != 2 {
		t.Error("records before the failure must still be persisted")
	}
}

func TestDeleteEntry_CascadeNeedsConfirmation(t *testing.T) {
	g := newGateway()
	ctx := context.Background()

	seeded := g.Seed(&domain.MonthlyEntry{
		ContractID: "c-1", Month: 7, Year: 2026,
		ProductName: "MOGAS 95", Quantity: kt("30"),
	})
	seeded.HasCargos = true
	seeded.CargoIDs = []string{"cg-1"}
	store := domain.NewMonthlyEntryStore([]*domain.MonthlyEntry{seeded})

	saver := NewSaver(g)

	// Without confirmation the delete is blocked.
	err := saver.DeleteEntry(ctx, store, seeded)
	var locked *domain.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected *domain.LockedError, got %v", err)
	}
	if g.Stored(seeded.ID) == nil {
		t.Fatal("unconfirmed cascade must not delete the plan")
	}

	// With confirmation the cargos go first, then the plan.
	saver.ConfirmCascade = func(planID string, cargoIDs []string) bool { return true }
	if err := saver.DeleteEntry(ctx, store, seeded); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if g.Stored(seeded.ID) != nil {
		t.Error("confirmed cascade must delete the plan record")
	}
	if store.Len() != 0 {
		t.Error("deleted entry must leave the buffer")
	}
}

func TestDeleteEntry_CompletedCargosBlock(t *testing.T) {
	g := newGateway()
	seeded := g.Seed(&domain.MonthlyEntry{
		ContractID: "c-1", Month: 7, Year: 2026,
		ProductName: "MOGAS 95", Quantity: kt("30"),
	})
	seeded.HasCompletedCargos = true
	store := domain.NewMonthlyEntryStore([]*domain.MonthlyEntry{seeded})

	saver := NewSaver(g)
	saver.ConfirmCascade = func(string, []string) bool { return true }

	err := saver.DeleteEntry(context.Background(), store, seeded)
	var locked *domain.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected *domain.LockedError, got %v", err)
	}
}
