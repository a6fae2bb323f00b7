package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nholding/lifting-book/internal/contract"
	"github.com/nholding/lifting-book/internal/fiscal"
	"github.com/nholding/lifting-book/internal/plan/domain"
)

// Warning is a data-quality finding that does not block a save but must be
// surfaced, never swallowed.
type Warning struct {
	PlanID string
	Reason string
}

// Result is the outcome of a successful validation pass.
type Result struct {
	Warnings []Warning
}

// Validate enforces the quantity-conservation invariant before a batch save.
//
// Rules, in order:
//
//  1. CIF entries with positive quantity must carry a delivery month
//     (hard error). A delivery month that is present but unparseable
//     excludes the entry from the sums and produces a Warning instead,
//     so bad data is visible rather than silently ignored.
//  2. TERM/SEMI_TERM: for every product and fiscal quarter of the active
//     contract year, the routed sum must equal target + top-up exactly.
//     FOB entries route on their loading month, CIF entries on the parsed
//     delivery month. The first mismatch aborts with a structured error;
//     the caller must not send any write.
//  3. RANGE: per product, min ≤ Σ ≤ max + optional across the whole
//     contract period.
//  4. SPOT: no quantity checks.
//
// Combi groups contribute their per-product slot quantities, and their
// internal invariants (no duplicate product, at least one positive member)
// are checked here too.
func Validate(entries []*domain.MonthlyEntry, plan *Plan, c *contract.Contract) (*Result, error) {
	res := &Result{}

	// Per-product, per-quarter-position routed sums of the active contract year.
	sums := make(map[string]*[4]decimal.Decimal)
	for _, name := range c.ProductNames() {
		sums[name] = &[4]decimal.Decimal{decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero}
	}
	totals := make(map[string]decimal.Decimal)

	yearMonths := make(map[domain.MonthKey]bool, 12)
	for _, my := range fiscal.ContractYearMonths(c.FiscalStartMonth, c.StartPeriod.Year(), plan.ContractYear) {
		yearMonths[domain.MonthKey{Month: my.Month, Year: my.Year}] = true
	}

	for _, e := range entries {
		if e == nil {
			continue
		}

		if err := domain.ValidateGroup(e); err != nil {
			return nil, err
		}

		if cif, ok := e.Cif(); ok && e.HasPositiveQuantity() && cif.DeliveryMonth == "" {
			return nil, &domain.ValidationError{
				Reason: fmt.Sprintf("CIF entry %s/%d requires a delivery month", monthName(e.Month), e.Year),
			}
		}

		// A quantity-less draft contributes nothing to the sums, so an
		// unroutable delivery month on it is not worth a warning.
		if !e.HasPositiveQuantity() {
			continue
		}

		routed, err := e.DeliveryKey()
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{
				PlanID: e.ID,
				Reason: fmt.Sprintf("excluded from quarterly sums: %v", err),
			})
			continue
		}

		for product := range sums {
			qty := e.SlotQuantity(product)
			if qty.IsZero() {
				continue
			}

			totals[product] = totalOf(totals, product).Add(qty)

			if yearMonths[routed] {
				pos := fiscal.QuarterPosition(c.FiscalStartMonth, routed.Month)
				sums[product][pos] = sums[product][pos].Add(qty)
			}
		}
	}

	if c.RequiresQuarterlyConservation() {
		order := fiscal.QuarterOrder(c.FiscalStartMonth)

		for _, product := range c.ProductNames() {
			for pos := 0; pos < 4; pos++ {
				entered := sums[product][pos]
				required := plan.QuarterlyTarget(product, pos)

				if !entered.Equal(required) {
					return nil, &domain.ValidationError{
						Reason:   "quarterly allocation mismatch",
						Product:  product,
						Quarter:  order[pos],
						Entered:  entered,
						Required: required,
					}
				}
			}
		}
	}

	if c.Category == contract.CategoryRange {
		for _, p := range c.Products {
			if p.MinQuantity == nil || p.MaxQuantity == nil {
				continue // contract.Validate rejects these before a plan is opened
			}
			total := totalOf(totals, p.Name)
			max := p.MaxQuantity.Add(p.OptionalQuantity)

			if total.LessThan(*p.MinQuantity) || total.GreaterThan(max) {
				return nil, &domain.ValidationError{
					Reason: fmt.Sprintf("product %s total %s outside range %s..%s",
						p.Name, total, *p.MinQuantity, max),
				}
			}
		}
	}

	return res, nil
}

func totalOf(totals map[string]decimal.Decimal, product string) decimal.Decimal {
	if v, ok := totals[product]; ok {
		return v
	}
	return decimal.Zero
}

var monthNames = [...]string{"", "January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December"}

func monthName(m int) string {
	if m < 1 || m > 12 {
		return fmt.Sprintf("month %d", m)
	}
	return monthNames[m]
}
