package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nholding/lifting-book/internal/plan/domain"
)

// Status is the cargo-linkage summary for one monthly plan, served in bulk
// so the editor can gate deletes and moves before the server refuses them.
type Status struct {
	PlanID             string   `json:"plan_id"`
	IsLocked           bool     `json:"is_locked"`
	HasCargos          bool     `json:"has_cargos"`
	HasCompletedCargos bool     `json:"has_completed_cargos"`
	TotalCargos        int      `json:"total_cargos"`
	CargoIDs           []string `json:"cargo_ids"`
}

// MoveAction distinguishes pushing a cargo later from pulling it earlier.
type MoveAction string

const (
	MoveDefer   MoveAction = "DEFER"
	MoveAdvance MoveAction = "ADVANCE"
)

// MoveInput relocates one plan record to a different month. ClearWindows is
// set by the scheduler for cross-quarter moves, where the negotiated
// laycan/delivery windows become void.
type MoveInput struct {
	Action       MoveAction
	TargetMonth  int
	TargetYear   int
	Reason       string
	ClearWindows bool
}

// TopupInput is an authority-approved increase beyond the contracted
// quarterly quantity.
type TopupInput struct {
	Quantity           decimal.Decimal
	AuthorityReference string
	Reason             string
	AuthorizationDate  *time.Time
}

// Gateway is the engine's port to durable storage. All operations are
// asynchronous remote calls from the engine's point of view; the engine
// awaits each individually and never retries on its own.
//
// Update is version-guarded: a mismatch yields *domain.ConflictError and the
// stored record is left untouched.
type Gateway interface {
	ListByQuarterlyPlan(ctx context.Context, quarterlyPlanID string) ([]*domain.MonthlyEntry, error)
	ListByContract(ctx context.Context, contractID string) ([]*domain.MonthlyEntry, error)

	GetStatusBulk(ctx context.Context, planIDs []string) ([]Status, error)

	Create(ctx context.Context, draft *domain.MonthlyEntry) (*domain.MonthlyEntry, error)
	Update(ctx context.Context, planID string, fields map[string]any, version int64) (*domain.MonthlyEntry, error)
	Delete(ctx context.Context, planID string) error

	Move(ctx context.Context, planID string, in MoveInput) (*domain.MonthlyEntry, error)
	AddAuthorityTopup(ctx context.Context, planID string, in TopupInput) (*domain.MonthlyEntry, error)

	// DeleteCargo removes a downstream cargo record; used only when the
	// caller has explicitly confirmed a cascading plan deletion.
	DeleteCargo(ctx context.Context, cargoID string) error
}

// Updatable field names accepted by Gateway.Update. Anything else is
// rejected so a typo cannot silently become a dropped edit.
var UpdatableFields = map[string]bool{
	"product_name":              true,
	"quantity":                  true,
	"is_combi":                  true,
	"combi_group_id":            true,
	"laycan_5_days":             true,
	"laycan_2_days":             true,
	"loading_month":             true,
	"loading_window":            true,
	"cif_route":                 true,
	"delivery_month":            true,
	"delivery_window":           true,
	"remark":                    true,
	"authority_topup_quantity":  true,
	"authority_topup_reference": true,
}
