package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nholding/lifting-book/internal/contract"
	"github.com/nholding/lifting-book/internal/logger"
	"github.com/nholding/lifting-book/internal/plan/domain"
	"github.com/nholding/lifting-book/internal/plan/repository"
)

// Loader builds the in-memory editing buffer for one contract's lifting
// plan: it pulls the persisted records, folds combi siblings into logical
// group rows, and annotates cargo linkage so deletes and moves can be gated
// locally before the server refuses them.
type Loader struct {
	gateway repository.Gateway
	log     *logrus.Logger
}

func NewLoader(gateway repository.Gateway) *Loader {
	return &Loader{
		gateway: gateway,
		log:     logger.Get(),
	}
}

// Load returns the editing buffer for a contract. TERM and SEMI_TERM
// contracts load by quarterly plan; SPOT and RANGE, which have no quarterly
// allocation, load everything under the contract.
func (l *Loader) Load(ctx context.Context, c *contract.Contract, quarterlyPlanID string) (*domain.MonthlyEntryStore, error) {
	var (
		entries []*domain.MonthlyEntry
		err     error
	)
	if c.RequiresQuarterlyConservation() {
		entries, err = l.gateway.ListByQuarterlyPlan(ctx, quarterlyPlanID)
	} else {
		entries, err = l.gateway.ListByContract(ctx, c.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("load plan entries for contract %s: %w", c.ID, err)
	}

	merged := domain.MergeCombiGroups(entries, c.ProductNames())
	store := domain.NewMonthlyEntryStore(merged)

	if err := l.annotateStatus(ctx, store); err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"module":   "plan",
		"contract": c.ID,
		"rows":     store.Len(),
	}).Info("lifting plan loaded")
	return store, nil
}

// annotateStatus marks locked rows and cargo linkage from the bulk status
// call. Combi groups OR their members' flags together.
func (l *Loader) annotateStatus(ctx context.Context, store *domain.MonthlyEntryStore) error {
	ids := store.PersistedIDs()
	if len(ids) == 0 {
		return nil
	}

	statuses, err := l.gateway.GetStatusBulk(ctx, ids)
	if err != nil {
		return fmt.Errorf("load cargo status: %w", err)
	}

	for _, st := range statuses {
		e := store.FindByID(st.PlanID)
		if e == nil {
			continue
		}
		e.IsLocked = e.IsLocked || st.IsLocked
		e.HasCargos = e.HasCargos || st.HasCargos
		e.HasCompletedCargos = e.HasCompletedCargos || st.HasCompletedCargos
		e.CargoIDs = append(e.CargoIDs, st.CargoIDs...)
	}
	return nil
}
