package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nholding/lifting-book/internal/audit"
	"github.com/nholding/lifting-book/internal/plan/domain"
	"github.com/nholding/lifting-book/internal/utils"
	"github.com/nholding/lifting-book/internal/voyage"
)

// UpdateCall records one Update invocation against the in-memory gateway,
// so tests can assert how edits were batched.
type UpdateCall struct {
	PlanID  string
	Fields  map[string]any
	Version int64
}

// MemoryGateway is a Gateway over process memory. It enforces the same
// versioning contract as the Postgres implementation. Besides being the test
// double for the service-level tests it backs local demo runs without an RDS
// endpoint.
type MemoryGateway struct {
	mu      sync.Mutex
	ids     utils.IDProvider
	entries map[string]*domain.MonthlyEntry
	cargos  map[string][]Status // keyed by plan id, single element

	UpdateCalls []UpdateCall
	MoveCalls   int

	// FailNext makes the next mutating call fail with the given error.
	// Consumed once. Used to exercise partial-failure paths.
	FailNext error
	// FailPlanID limits FailNext to one plan id (empty = any).
	FailPlanID string
}

func NewMemoryGateway(ids utils.IDProvider) *MemoryGateway {
	return &MemoryGateway{
		ids:     ids,
		entries: make(map[string]*domain.MonthlyEntry),
		cargos:  make(map[string][]Status),
	}
}

// Seed inserts an entry directly, bypassing the versioning contract.
// The entry gets an id (if missing) and version 1.
func (g *MemoryGateway) Seed(e *domain.MonthlyEntry) *domain.MonthlyEntry {
	g.mu.Lock()
	defer g.mu.Unlock()

	stored := cloneEntry(e)
	if stored.ID == "" {
		stored.ID = g.ids.NewID()
	}
	if stored.Version == 0 {
		stored.Version = 1
	}
	g.entries[stored.ID] = stored
	return cloneEntry(stored)
}

// SeedStatus attaches cargo linkage to a plan id.
func (g *MemoryGateway) SeedStatus(st Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cargos[st.PlanID] = []Status{st}
}

// Stored returns a copy of the persisted record, or nil.
func (g *MemoryGateway) Stored(planID string) *domain.MonthlyEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[planID]
	if !ok {
		return nil
	}
	return cloneEntry(e)
}

func (g *MemoryGateway) failNextFor(planID string) error {
	if g.FailNext == nil {
		return nil
	}
	if g.FailPlanID != "" && g.FailPlanID != planID {
		return nil
	}
	err := g.FailNext
	g.FailNext = nil
	return err
}

func (g *MemoryGateway) ListByQuarterlyPlan(_ context.Context, quarterlyPlanID string) ([]*domain.MonthlyEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []*domain.MonthlyEntry
	for _, e := range g.entries {
		if e.QuarterlyPlanID == quarterlyPlanID {
			out = append(out, cloneEntry(e))
		}
	}
	sortEntries(out)
	return out, nil
}

func (g *MemoryGateway) ListByContract(_ context.Context, contractID string) ([]*domain.MonthlyEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []*domain.MonthlyEntry
	for _, e := range g.entries {
		if e.ContractID == contractID {
			out = append(out, cloneEntry(e))
		}
	}
	sortEntries(out)
	return out, nil
}

func (g *MemoryGateway) GetStatusBulk(_ context.Context, planIDs []string) ([]Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []Status
	for _, id := range planIDs {
		if sts, ok := g.cargos[id]; ok {
			out = append(out, sts...)
			continue
		}
		if _, ok := g.entries[id]; ok {
			out = append(out, Status{PlanID: id})
		}
	}
	return out, nil
}

func (g *MemoryGateway) Create(_ context.Context, draft *domain.MonthlyEntry) (*domain.MonthlyEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failNextFor(""); err != nil {
		return nil, err
	}

	stored := cloneEntry(draft)
	stored.ID = g.ids.NewID()
	stored.Version = 1
	if stored.AuditInfo.CreatedAt.IsZero() {
		stored.AuditInfo = audit.New(stored.AuditInfo.CreatedBy)
	}
	g.entries[stored.ID] = stored
	return cloneEntry(stored), nil
}

func (g *MemoryGateway) Update(_ context.Context, planID string, fields map[string]any, version int64) (*domain.MonthlyEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failNextFor(planID); err != nil {
		return nil, err
	}

	recorded := make(map[string]any, len(fields))
	for k, v := range fields {
		recorded[k] = v
	}
	g.UpdateCalls = append(g.UpdateCalls, UpdateCall{PlanID: planID, Fields: recorded, Version: version})

	stored, ok := g.entries[planID]
	if !ok {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("plan %s does not exist", planID)}
	}
	if stored.Version != version {
		return nil, &domain.ConflictError{
			PlanID:          planID,
			SuppliedVersion: version,
			CurrentVersion:  stored.Version,
		}
	}

	for name, value := range fields {
		if !UpdatableFields[name] {
			return nil, &domain.ValidationError{Reason: fmt.Sprintf("field %q is not updatable", name)}
		}
		if err := applyField(stored, name, value); err != nil {
			return nil, err
		}
	}

	stored.Version++
	stored.AuditInfo.Touch("")
	return cloneEntry(stored), nil
}

func (g *MemoryGateway) Delete(_ context.Context, planID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failNextFor(planID); err != nil {
		return err
	}

	for _, st := range g.cargos[planID] {
		if st.HasCompletedCargos || st.IsLocked {
			return &domain.LockedError{PlanID: planID, Reason: "plan has completed cargos or is locked"}
		}
	}

	delete(g.entries, planID)
	return nil
}

func (g *MemoryGateway) Move(_ context.Context, planID string, in MoveInput) (*domain.MonthlyEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.MoveCalls++

	if err := g.failNextFor(planID); err != nil {
		return nil, err
	}

	stored, ok := g.entries[planID]
	if !ok {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("plan %s does not exist", planID)}
	}
	for _, st := range g.cargos[planID] {
		if st.HasCompletedCargos {
			return nil, &domain.LockedError{PlanID: planID, Reason: "plan has completed cargos"}
		}
	}

	stored.Month = in.TargetMonth
	stored.Year = in.TargetYear
	if in.ClearWindows {
		stored.ClearWindows()
	}
	stored.Version++
	stored.AuditInfo.Touch("")
	return cloneEntry(stored), nil
}

func (g *MemoryGateway) AddAuthorityTopup(_ context.Context, planID string, in TopupInput) (*domain.MonthlyEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.failNextFor(planID); err != nil {
		return nil, err
	}

	stored, ok := g.entries[planID]
	if !ok {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("plan %s does not exist", planID)}
	}

	stored.AuthorityTopupQuantity = stored.AuthorityTopupQuantity.Add(in.Quantity)
	stored.AuthorityTopupReference = in.AuthorityReference
	stored.Version++
	stored.AuditInfo.Touch("")
	return cloneEntry(stored), nil
}

func (g *MemoryGateway) DeleteCargo(_ context.Context, cargoID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for planID, sts := range g.cargos {
		for i := range sts {
			var kept []string
			for _, id := range sts[i].CargoIDs {
				if id != cargoID {
					kept = append(kept, id)
				}
			}
			sts[i].CargoIDs = kept
			sts[i].TotalCargos = len(kept)
			sts[i].HasCargos = len(kept) > 0
		}
		g.cargos[planID] = sts
	}
	return nil
}

func applyField(e *domain.MonthlyEntry, name string, value any) error {
	str := func() string {
		s, _ := value.(string)
		return s
	}

	switch name {
	case "product_name":
		e.ProductName = str()
	case "is_combi":
		b, ok := value.(bool)
		if !ok {
			return &domain.ValidationError{Reason: "is_combi must be a boolean"}
		}
		e.IsCombi = b
	case "combi_group_id":
		e.CombiGroupID = str()
	case "quantity":
		q, ok := value.(decimal.Decimal)
		if !ok {
			return &domain.ValidationError{Reason: "quantity must be a decimal"}
		}
		e.Quantity = q
	case "authority_topup_quantity":
		q, ok := value.(decimal.Decimal)
		if !ok {
			return &domain.ValidationError{Reason: "authority_topup_quantity must be a decimal"}
		}
		e.AuthorityTopupQuantity = q
	case "authority_topup_reference":
		e.AuthorityTopupReference = str()
	case "laycan_5_days", "laycan_2_days", "remark":
		s, _ := e.Schedule.(*domain.FobSchedule)
		if s == nil {
			if c, ok := e.Schedule.(*domain.CifSchedule); ok && name == "remark" {
				c.Remark = str()
				return nil
			}
			s = &domain.FobSchedule{}
			e.Schedule = s
		}
		switch name {
		case "laycan_5_days":
			s.Laycan5Days = str()
		case "laycan_2_days":
			s.Laycan2Days = str()
		case "remark":
			s.Remark = str()
		}
	case "loading_month", "loading_window", "cif_route", "delivery_month", "delivery_window":
		s, _ := e.Schedule.(*domain.CifSchedule)
		if s == nil {
			s = &domain.CifSchedule{}
			e.Schedule = s
		}
		switch name {
		case "loading_month":
			s.LoadingMonth = str()
		case "loading_window":
			s.LoadingWindow = str()
		case "cif_route":
			s.Route = voyage.Route(str())
		case "delivery_month":
			s.DeliveryMonth = str()
		case "delivery_window":
			s.DeliveryWindow = str()
		}
	default:
		return &domain.ValidationError{Reason: fmt.Sprintf("field %q is not updatable", name)}
	}
	return nil
}

func cloneEntry(e *domain.MonthlyEntry) *domain.MonthlyEntry {
	c := *e
	if e.Slots != nil {
		c.Slots = append([]domain.CombiSlot(nil), e.Slots...)
	}
	if e.CargoIDs != nil {
		c.CargoIDs = append([]string(nil), e.CargoIDs...)
	}
	switch s := e.Schedule.(type) {
	case *domain.FobSchedule:
		cp := *s
		c.Schedule = &cp
	case *domain.CifSchedule:
		cp := *s
		c.Schedule = &cp
	}
	return &c
}

func sortEntries(entries []*domain.MonthlyEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.ProductName < b.ProductName
	})
}

var _ Gateway = (*MemoryGateway)(nil)
