package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/nholding/lifting-book/internal/audit"
	"github.com/nholding/lifting-book/internal/plan/domain"
	"github.com/nholding/lifting-book/internal/platform/awsclient"
	"github.com/nholding/lifting-book/internal/utils"
	"github.com/nholding/lifting-book/internal/voyage"
)

// RdsPlanRepository is the Postgres implementation of Gateway, backed by the
// platform RDS client (IAM authentication).
//
// Versioning contract: every accepted write increments the row's version;
// Update additionally requires the caller's version to match, returning
// *domain.ConflictError otherwise without touching the row.
type RdsPlanRepository struct {
	db  *sql.DB
	ids utils.IDProvider
}

func NewRdsPlanRepository(cfg *awsclient.Config, ids utils.IDProvider) (*RdsPlanRepository, error) {
	rdsClient, err := cfg.NewRDSClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed creating the AWS RDS client: %w", err)
	}

	return &RdsPlanRepository{db: rdsClient.Client, ids: ids}, nil
}

// NewRdsPlanRepositoryWithDB wires an existing connection (startup shares one
// pool between repositories).
func NewRdsPlanRepositoryWithDB(db *sql.DB, ids utils.IDProvider) *RdsPlanRepository {
	return &RdsPlanRepository{db: db, ids: ids}
}

const planColumns = `
	id, quarterly_plan_id, contract_id, month, year, product_name, quantity,
	is_combi, combi_group_id,
	laycan_5_days, laycan_2_days,
	loading_month, loading_window, cif_route, delivery_month, delivery_window,
	remark,
	authority_topup_quantity, authority_topup_reference,
	version,
	audit_created_by, audit_created_at, audit_updated_by, audit_updated_at
`

func (r *RdsPlanRepository) ListByQuarterlyPlan(ctx context.Context, quarterlyPlanID string) ([]*domain.MonthlyEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM monthly_plans WHERE quarterly_plan_id=$1 ORDER BY year, month, product_name`,
		quarterlyPlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly plans for quarterly plan %s: %w", quarterlyPlanID, err)
	}
	defer rows.Close()

	return scanAll(rows)
}

func (r *RdsPlanRepository) ListByContract(ctx context.Context, contractID string) ([]*domain.MonthlyEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM monthly_plans WHERE contract_id=$1 ORDER BY year, month, product_name`,
		contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly plans for contract %s: %w", contractID, err)
	}
	defer rows.Close()

	return scanAll(rows)
}

func (r *RdsPlanRepository) GetStatusBulk(ctx context.Context, planIDs []string) ([]Status, error) {
	if len(planIDs) == 0 {
		return nil, nil
	}

	lockedRows, err := r.db.QueryContext(ctx,
		`SELECT id, is_locked FROM monthly_plans WHERE id = ANY($1)`,
		pq.Array(planIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query plan locks: %w", err)
	}
	defer lockedRows.Close()

	statuses := make(map[string]*Status)
	for lockedRows.Next() {
		var id string
		var locked bool
		if err := lockedRows.Scan(&id, &locked); err != nil {
			return nil, fmt.Errorf("failed to scan plan lock row: %w", err)
		}
		statuses[id] = &Status{PlanID: id, IsLocked: locked}
	}
	if err := lockedRows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading plan lock rows: %w", err)
	}

	cargoRows, err := r.db.QueryContext(ctx, `
		SELECT plan_id,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'COMPLETED'),
		       ARRAY_AGG(cargo_id)
		FROM plan_cargos
		WHERE plan_id = ANY($1)
		GROUP BY plan_id`,
		pq.Array(planIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query cargo linkage: %w", err)
	}
	defer cargoRows.Close()

	for cargoRows.Next() {
		var planID string
		var total, completed int
		var cargoIDs pq.StringArray
		if err := cargoRows.Scan(&planID, &total, &completed, &cargoIDs); err != nil {
			return nil, fmt.Errorf("failed to scan cargo linkage row: %w", err)
		}

		st, ok := statuses[planID]
		if !ok {
			st = &Status{PlanID: planID}
			statuses[planID] = st
		}
		st.HasCargos = total > 0
		st.HasCompletedCargos = completed > 0
		st.TotalCargos = total
		st.CargoIDs = []string(cargoIDs)
	}
	if err := cargoRows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading cargo linkage rows: %w", err)
	}

	out := make([]Status, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlanID < out[j].PlanID })
	return out, nil
}

func (r *RdsPlanRepository) Create(ctx context.Context, draft *domain.MonthlyEntry) (*domain.MonthlyEntry, error) {
	created := *draft
	created.ID = r.ids.NewID()
	created.Version = 1
	if created.AuditInfo.CreatedAt.IsZero() {
		created.AuditInfo = audit.New(created.AuditInfo.CreatedBy)
	}

	f := flatten(&created)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO monthly_plans (`+strings.TrimSpace(planColumns)+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		created.ID, created.QuarterlyPlanID, created.ContractID,
		created.Month, created.Year, created.ProductName, created.Quantity,
		created.IsCombi, nullable(created.CombiGroupID),
		f.laycan5, f.laycan2,
		f.loadingMonth, f.loadingWindow, f.cifRoute, f.deliveryMonth, f.deliveryWindow,
		f.remark,
		created.AuthorityTopupQuantity, nullable(created.AuthorityTopupReference),
		created.Version,
		created.AuditInfo.CreatedBy, created.AuditInfo.CreatedAt,
		nullable(created.AuditInfo.UpdatedBy), nullTime(created.AuditInfo.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert monthly plan: %w", err)
	}

	return &created, nil
}

func (r *RdsPlanRepository) Update(ctx context.Context, planID string, fields map[string]any, version int64) (*domain.MonthlyEntry, error) {
	if len(fields) == 0 {
		return r.findByID(ctx, planID)
	}

	setParts := make([]string, 0, len(fields)+2)
	args := make([]any, 0, len(fields)+3)

	// Deterministic order keeps the statement cacheable per field set.
	names := make([]string, 0, len(fields))
	for name := range fields {
		if !UpdatableFields[name] {
			return nil, &domain.ValidationError{Reason: fmt.Sprintf("field %q is not updatable", name)}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		args = append(args, fields[name])
		setParts = append(setParts, fmt.Sprintf("%s = $%d", name, len(args)))
	}

	args = append(args, time.Now().UTC())
	setParts = append(setParts, fmt.Sprintf("audit_updated_at = $%d", len(args)))
	setParts = append(setParts, "version = version + 1")

	args = append(args, planID)
	idArg := len(args)
	args = append(args, version)
	versionArg := len(args)

	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE monthly_plans SET %s
		WHERE id = $%d AND version = $%d
		RETURNING %s`,
		strings.Join(setParts, ", "), idArg, versionArg, planColumns),
		args...)

	entry, err := scanOne(row)
	if err == sql.ErrNoRows {
		// Either the plan is gone or the version is stale; find out which.
		current, ferr := r.findByID(ctx, planID)
		if ferr != nil {
			return nil, ferr
		}
		return nil, &domain.ConflictError{
			PlanID:          planID,
			SuppliedVersion: version,
			CurrentVersion:  current.Version,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update monthly plan %s: %w", planID, err)
	}

	return entry, nil
}

func (r *RdsPlanRepository) Delete(ctx context.Context, planID string) error {
	var completed int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plan_cargos WHERE plan_id=$1 AND status='COMPLETED'`,
		planID).Scan(&completed)
	if err != nil {
		return fmt.Errorf("failed to check cargo linkage for plan %s: %w", planID, err)
	}
	if completed > 0 {
		return &domain.LockedError{PlanID: planID, Reason: fmt.Sprintf("%d completed cargos", completed)}
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM monthly_plans WHERE id=$1 AND NOT is_locked`, planID)
	if err != nil {
		return fmt.Errorf("failed to delete monthly plan %s: %w", planID, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		var locked bool
		err := r.db.QueryRowContext(ctx, `SELECT is_locked FROM monthly_plans WHERE id=$1`, planID).Scan(&locked)
		if err == sql.ErrNoRows {
			return nil // already gone
		}
		if err != nil {
			return fmt.Errorf("failed to re-check monthly plan %s: %w", planID, err)
		}
		return &domain.LockedError{PlanID: planID, Reason: "plan is locked"}
	}

	return nil
}

func (r *RdsPlanRepository) Move(ctx context.Context, planID string, in MoveInput) (*domain.MonthlyEntry, error) {
	var completed int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM plan_cargos WHERE plan_id=$1 AND status='COMPLETED'`,
		planID).Scan(&completed)
	if err != nil {
		return nil, fmt.Errorf("failed to check cargo linkage for plan %s: %w", planID, err)
	}
	if completed > 0 {
		return nil, &domain.LockedError{PlanID: planID, Reason: "plan has completed cargos"}
	}

	set := `month = $2, year = $3, version = version + 1, audit_updated_at = $4`
	if in.ClearWindows {
		set += `, laycan_5_days = NULL, laycan_2_days = NULL, loading_window = NULL, delivery_window = NULL`
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE monthly_plans SET `+set+`
		WHERE id = $1
		RETURNING `+planColumns,
		planID, in.TargetMonth, in.TargetYear, time.Now().UTC())

	entry, err := scanOne(row)
	if err == sql.ErrNoRows {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("plan %s does not exist", planID)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to move monthly plan %s: %w", planID, err)
	}

	return entry, nil
}

func (r *RdsPlanRepository) AddAuthorityTopup(ctx context.Context, planID string, in TopupInput) (*domain.MonthlyEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin top-up transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
		UPDATE monthly_plans
		SET authority_topup_quantity = authority_topup_quantity + $2,
		    authority_topup_reference = $3,
		    version = version + 1,
		    audit_updated_at = $4
		WHERE id = $1
		RETURNING `+planColumns,
		planID, in.Quantity, in.AuthorityReference, time.Now().UTC())

	entry, err := scanOne(row)
	if err == sql.ErrNoRows {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("plan %s does not exist", planID)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply top-up to plan %s: %w", planID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO authority_topups (id, plan_id, quantity, authority_reference, reason, authorization_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.ids.NewID(), planID, in.Quantity, in.AuthorityReference,
		nullable(in.Reason), in.AuthorizationDate, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to record top-up history for plan %s: %w", planID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit top-up for plan %s: %w", planID, err)
	}

	return entry, nil
}

func (r *RdsPlanRepository) DeleteCargo(ctx context.Context, cargoID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM plan_cargos WHERE cargo_id=$1`, cargoID); err != nil {
		return fmt.Errorf("failed to delete cargo %s: %w", cargoID, err)
	}
	return nil
}

func (r *RdsPlanRepository) findByID(ctx context.Context, planID string) (*domain.MonthlyEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM monthly_plans WHERE id=$1`, planID)

	entry, err := scanOne(row)
	if err == sql.ErrNoRows {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("plan %s does not exist", planID)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load monthly plan %s: %w", planID, err)
	}
	return entry, nil
}

// flat is the nullable column view of an entry's schedule variant.
type flat struct {
	laycan5, laycan2                                           sql.NullString
	loadingMonth, loadingWindow, deliveryMonth, deliveryWindow sql.NullString
	cifRoute                                                   sql.NullString
	remark                                                     sql.NullString
}

func flatten(e *domain.MonthlyEntry) flat {
	var f flat
	switch s := e.Schedule.(type) {
	case *domain.FobSchedule:
		f.laycan5 = nullable(s.Laycan5Days)
		f.laycan2 = nullable(s.Laycan2Days)
		f.remark = nullable(s.Remark)
	case *domain.CifSchedule:
		f.loadingMonth = nullable(s.LoadingMonth)
		f.loadingWindow = nullable(s.LoadingWindow)
		f.cifRoute = nullable(string(s.Route))
		f.deliveryMonth = nullable(s.DeliveryMonth)
		f.deliveryWindow = nullable(s.DeliveryWindow)
		f.remark = nullable(s.Remark)
	}
	return f
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.MonthlyEntry, error) {
	var (
		e           domain.MonthlyEntry
		qpID        sql.NullString
		groupID     sql.NullString
		topupRef    sql.NullString
		qty         decimal.Decimal
		topupQty    decimal.Decimal
		f           flat
		updatedBy   sql.NullString
		updatedAt   sql.NullTime
	)

	err := row.Scan(
		&e.ID, &qpID, &e.ContractID, &e.Month, &e.Year, &e.ProductName, &qty,
		&e.IsCombi, &groupID,
		&f.laycan5, &f.laycan2,
		&f.loadingMonth, &f.loadingWindow, &f.cifRoute, &f.deliveryMonth, &f.deliveryWindow,
		&f.remark,
		&topupQty, &topupRef,
		&e.Version,
		&e.AuditInfo.CreatedBy, &e.AuditInfo.CreatedAt, &updatedBy, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.QuarterlyPlanID = qpID.String
	e.CombiGroupID = groupID.String
	e.Quantity = qty
	e.AuthorityTopupQuantity = topupQty
	e.AuthorityTopupReference = topupRef.String
	e.AuditInfo.UpdatedBy = updatedBy.String
	if updatedAt.Valid {
		e.AuditInfo.UpdatedAt = updatedAt.Time
	}

	// Rebuild the schedule variant from whichever column family is present.
	if f.cifRoute.Valid || f.loadingMonth.Valid || f.deliveryMonth.Valid ||
		f.loadingWindow.Valid || f.deliveryWindow.Valid {
		e.Schedule = &domain.CifSchedule{
			LoadingMonth:   f.loadingMonth.String,
			LoadingWindow:  f.loadingWindow.String,
			Route:          voyage.Route(f.cifRoute.String),
			DeliveryMonth:  f.deliveryMonth.String,
			DeliveryWindow: f.deliveryWindow.String,
			Remark:         f.remark.String,
		}
	} else if f.laycan5.Valid || f.laycan2.Valid || f.remark.Valid {
		e.Schedule = &domain.FobSchedule{
			Laycan5Days: f.laycan5.String,
			Laycan2Days: f.laycan2.String,
			Remark:      f.remark.String,
		}
	}

	return &e, nil
}

func scanOne(row *sql.Row) (*domain.MonthlyEntry, error) {
	return scanEntry(row)
}

func scanAll(rows *sql.Rows) ([]*domain.MonthlyEntry, error) {
	var entries []*domain.MonthlyEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monthly plan row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading monthly plan rows: %w", err)
	}
	return entries, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
