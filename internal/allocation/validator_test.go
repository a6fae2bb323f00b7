package allocation

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nholding/lifting-book/internal/contract"
	"github.com/nholding/lifting-book/internal/plan/domain"
)

func kt(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func ktp(v string) *decimal.Decimal {
	d := kt(v)
	return &d
}

// termContract: FOB TERM, fiscal year starting July 2026, one product.
func termContract() *contract.Contract {
	return &contract.Contract{
		ID:               "c-1",
		Type:             contract.TypeFOB,
		Category:         contract.CategoryTerm,
		StartPeriod:      time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		EndPeriod:        time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC),
		FiscalStartMonth: 7,
		Products: []contract.Product{
			{Name: "MOGAS 95", TotalQuantity: kt("120")},
		},
	}
}

func termPlan() *Plan {
	return &Plan{
		ID:           "qp-1",
		ContractID:   "c-1",
		ContractYear: 1,
		Allocations: []ProductAllocation{
			{
				Product: "MOGAS 95",
				Quarters: [4]QuarterTarget{
					{Target: kt("30")},
					{Target: kt("30")},
					{Target: kt("30"), TopUp: kt("5")},
					{Target: kt("30")},
				},
			},
		},
	}
}

// balancedEntries fills each fiscal quarter of the July-start year exactly.
func balancedEntries() []*domain.MonthlyEntry {
	return []*domain.MonthlyEntry{
		{ID: "p-1", Month: 7, Year: 2026, ProductName: "MOGAS 95", Quantity: kt("30")},
		{ID: "p-2", Month: 11, Year: 2026, ProductName: "MOGAS 95", Quantity: kt("30")},
		{ID: "p-3", Month: 2, Year: 2027, ProductName: "MOGAS 95", Quantity: kt("35")}, // Q3 target 30 + top-up 5
		{ID: "p-4", Month: 5, Year: 2027, ProductName: "MOGAS 95", Quantity: kt("30")},
	}
}

func TestValidate_Conservation(t *testing.T) {
	res, err := Validate(balancedEntries(), termPlan(), termContract())
	if err != nil {
		t.Fatalf("balanced plan must validate: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestValidate_QuarterMismatch(t *testing.T) {
	entries := balancedEntries()
	entries[1].Quantity = kt("25") // Q2 short by 5

	_, err := Validate(entries, termPlan(), termContract())
	if err == nil {
		t.Fatal("unbalanced quarter must fail validation")
	}

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *domain.ValidationError, got %T", err)
	}
	if verr.Product != "MOGAS 95" {
		t.Errorf("product = %q", verr.Product)
	}
	if verr.Quarter != "Q4" {
		// November sits in the 2nd fiscal quarter of a July year, label Q4.
		t.Errorf("quarter = %q, want Q4", verr.Quarter)
	}
	if !verr.Entered.Equal(kt("25")) || !verr.Required.Equal(kt("30")) {
		t.Errorf("entered/required = %s/%s, want 25/30", verr.Entered, verr.Required)
	}
}

func TestValidate_TopUpRaisesTarget(t *testing.T) {
	entries := balancedEntries()
	entries[2].Quantity = kt("30") // ignores the approved 5 KT top-up

	if _, err := Validate(entries, termPlan(), termContract()); err == nil {
		t.Fatal("quarter must balance against target plus top-up")
	}
}

func TestValidate_CifRouting(t *testing.T) {
	c := termContract()
	c.Type = contract.TypeCIF

	// Loading in September, delivering October: routes into the second
	// fiscal quarter, so Q1 (Jul-Sep) comes up short.
	entries := balancedEntries()
	entries[0].Schedule = &domain.CifSchedule{DeliveryMonth: "October 2026"}

	_, err := Validate(entries, termPlan(), c)

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a quarter mismatch, got %v", err)
	}
	if verr.Quarter != "Q3" {
		t.Errorf("mismatch should be the first fiscal quarter (label Q3), got %q", verr.Quarter)
	}
}

func TestValidate_MissingCifDeliveryMonth(t *testing.T) {
	c := termContract()
	c.Type = contract.TypeCIF

	entries := balancedEntries()
	for _, e := range entries {
		e.Schedule = &domain.CifSchedule{DeliveryMonth: time.Date(e.Year, time.Month(e.Month), 1, 0, 0, 0, 0, time.UTC).Format(domain.DeliveryMonthLayout)}
	}
	entries[3].Schedule = &domain.CifSchedule{} // qty > 0, no delivery month

	if _, err := Validate(entries, termPlan(), c); err == nil {
		t.Fatal("CIF entry with positive quantity and no delivery month must fail")
	}
}

func TestValidate_UnparseableDeliveryMonthWarns(t *testing.T) {
	c := termContract()
	c.Type = contract.TypeCIF

	entries := balancedEntries()
	for _, e := range entries {
		e.Schedule = &domain.CifSchedule{DeliveryMonth: time.Date(e.Year, time.Month(e.Month), 1, 0, 0, 0, 0, time.UTC).Format(domain.DeliveryMonthLayout)}
	}
	entries[0].Schedule = &domain.CifSchedule{DeliveryMonth: "sometime soon"}

	_, err := Validate(entries, termPlan(), c)
	if err == nil {
		t.Fatal("excluding the entry empties its quarter, mismatch expected")
	}

	// The same pass on a SPOT contract has no sums to break: the bad month
	// must surface as a warning, not vanish.
	c.Category = contract.CategorySpot
	res, err := Validate(entries, &Plan{ContractID: "c-1", ContractYear: 1}, c)
	if err != nil {
		t.Fatalf("SPOT skips conservation: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected exactly one data-quality warning, got %v", res.Warnings)
	}
}

func TestValidate_EmptyCifDraftStaysSilent(t *testing.T) {
	c := termContract()
	c.Type = contract.TypeCIF

	entries := balancedEntries()
	for _, e := range entries {
		e.Schedule = &domain.CifSchedule{DeliveryMonth: time.Date(e.Year, time.Month(e.Month), 1, 0, 0, 0, 0, time.UTC).Format(domain.DeliveryMonthLayout)}
	}
	// A row the user just opened: no quantity yet, no delivery month yet.
	entries = append(entries, &domain.MonthlyEntry{
		Month: 9, Year: 2026, ProductName: "MOGAS 95",
		Schedule: &domain.CifSchedule{},
	})

	res, err := Validate(entries, termPlan(), c)
	if err != nil {
		t.Fatalf("an empty draft contributes nothing and must not fail: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("empty draft must not warn, got %v", res.Warnings)
	}
}

func TestValidate_SpotSkipsConservation(t *testing.T) {
	c := termContract()
	c.Category = contract.CategorySpot

	entries := []*domain.MonthlyEntry{
		{ID: "p-1", Month: 8, Year: 2026, ProductName: "MOGAS 95", Quantity: kt("17")},
	}

	if _, err := Validate(entries, &Plan{ContractID: "c-1", ContractYear: 1}, c); err != nil {
		t.Fatalf("SPOT contracts have no quarterly invariant: %v", err)
	}
}

func TestValidate_RangeBounds(t *testing.T) {
	c := termContract()
	c.Category = contract.CategoryRange
	c.Products[0].MinQuantity = ktp("50")
	c.Products[0].MaxQuantity = ktp("100")
	c.Products[0].OptionalQuantity = kt("10")

	plan := &Plan{ContractID: "c-1", ContractYear: 1}

	entries := []*domain.MonthlyEntry{
		{ID: "p-1", Month: 8, Year: 2026, ProductName: "MOGAS 95", Quantity: kt("60")},
	}
	if _, err := Validate(entries, plan, c); err != nil {
		t.Fatalf("60 within 50..110: %v", err)
	}

	entries[0].Quantity = kt("40")
	if _, err := Validate(entries, plan, c); err == nil {
		t.Error("40 below min 50 must fail")
	}

	entries[0].Quantity = kt("115")
	if _, err := Validate(entries, plan, c); err == nil {
		t.Error("115 above max+optional 110 must fail")
	}

	entries[0].Quantity = kt("110")
	if _, err := Validate(entries, plan, c); err != nil {
		t.Errorf("110 equals max+optional, must pass: %v", err)
	}
}

func TestValidate_CombiSlotsCountPerProduct(t *testing.T) {
	c := termContract()
	c.Products = append(c.Products, contract.Product{Name: "GASOIL", TotalQuantity: kt("40")})

	plan := termPlan()
	plan.Allocations = append(plan.Allocations, ProductAllocation{
		Product:  "GASOIL",
		Quarters: [4]QuarterTarget{{Target: kt("10")}, {}, {}, {}},
	})

	entries := balancedEntries()
	// Replace Q1's single cargo with a combi lifting both grades.
	entries[0] = &domain.MonthlyEntry{
		Month: 7, Year: 2026,
		IsCombi:      true,
		CombiGroupID: "g-1",
		Slots: []domain.CombiSlot{
			{Product: "MOGAS 95", Quantity: kt("30"), PlanID: "p-1"},
			{Product: "GASOIL", Quantity: kt("10"), PlanID: "p-5"},
		},
	}

	if _, err := Validate(entries, plan, c); err != nil {
		t.Fatalf("combi slots must reconcile per product: %v", err)
	}
}
