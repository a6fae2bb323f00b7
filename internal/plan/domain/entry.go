package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nholding/lifting-book/internal/audit"
	"github.com/nholding/lifting-book/internal/voyage"
)

// DeliveryMonthLayout is the wire format of a CIF delivery month,
// e.g. "January 2027".
const DeliveryMonthLayout = "January 2006"

// MonthKey addresses one scheduling month of the book.
type MonthKey struct {
	Month int // 1-12
	Year  int
}

func (k MonthKey) String() string {
	return strings.ToUpper(time.Date(k.Year, time.Month(k.Month), 1, 0, 0, 0, 0, time.UTC).Format("2006-Jan"))
}

// Schedule is the contract-type-specific scheduling payload of an entry.
// Exactly one concrete type applies per contract: *FobSchedule for FOB,
// *CifSchedule for CIF. The tagged variant replaces the loose per-field
// presence checks the old editor carried around.
type Schedule interface {
	isSchedule()
}

// FobSchedule carries loading-port laycan dates.
type FobSchedule struct {
	Laycan5Days string `json:"laycan_5_days"`
	Laycan2Days string `json:"laycan_2_days"`
	Remark      string `json:"remark"`
}

func (*FobSchedule) isSchedule() {}

// CifSchedule carries loading AND delivery windows.
type CifSchedule struct {
	LoadingMonth   string       `json:"loading_month"`
	LoadingWindow  string       `json:"loading_window"`
	Route          voyage.Route `json:"cif_route"`
	DeliveryMonth  string       `json:"delivery_month"` // "January 2006" format
	DeliveryWindow string       `json:"delivery_window"`
	Remark         string       `json:"remark"`
}

func (*CifSchedule) isSchedule() {}

// ParseDeliveryMonth parses a CIF delivery month string.
func ParseDeliveryMonth(s string) (MonthKey, error) {
	t, err := time.Parse(DeliveryMonthLayout, strings.TrimSpace(s))
	if err != nil {
		return MonthKey{}, fmt.Errorf("cannot parse delivery month %q: %w", s, err)
	}
	return MonthKey{Month: int(t.Month()), Year: t.Year()}, nil
}

// CombiSlot is one product's share of a combi group. For persisted members
// PlanID/Version identify the underlying monthly plan record; both stay zero
// for slots that exist only in the editing buffer.
type CombiSlot struct {
	Product  string          `json:"product"`
	Quantity decimal.Decimal `json:"quantity"`
	PlanID   string          `json:"plan_id,omitempty"`
	Version  int64           `json:"version,omitempty"`
}

// MonthlyEntry is one cargo entry of the monthly lifting plan. A row is
// created client-side with no ID; it becomes durable (ID assigned,
// Version = 1) on the first successful create.
//
// An entry is either single-product (ProductName set, Slots nil) or a combi
// group (IsCombi, one slot per contract product, group quantity = Σ slots).
// Combi groups are a purely logical view: persistence stores one record per
// product with a shared CombiGroupID.
type MonthlyEntry struct {
	ID string `json:"id,omitempty"` // empty = not yet persisted

	QuarterlyPlanID string `json:"quarterly_plan_id,omitempty"`
	ContractID      string `json:"contract_id"`

	Month int `json:"month"`
	Year  int `json:"year"`

	ProductName string          `json:"product_name"` // empty when combi
	Quantity    decimal.Decimal `json:"quantity"`     // KT

	IsCombi      bool        `json:"is_combi"`
	CombiGroupID string      `json:"combi_group_id,omitempty"`
	Slots        []CombiSlot `json:"slots,omitempty"`

	Schedule Schedule `json:"schedule,omitempty"`

	AuthorityTopupQuantity  decimal.Decimal `json:"authority_topup_quantity"`
	AuthorityTopupReference string          `json:"authority_topup_reference,omitempty"`

	// Optimistic-lock token. Starts at 1, server-incremented on each
	// accepted update. Never mutated locally except from a server response.
	Version int64 `json:"version"`

	// Cargo linkage, populated from the bulk status call. Read-only hints
	// for gating deletes and moves locally before the server refuses them.
	IsLocked           bool     `json:"is_locked,omitempty"`
	HasCargos          bool     `json:"has_cargos,omitempty"`
	HasCompletedCargos bool     `json:"has_completed_cargos,omitempty"`
	CargoIDs           []string `json:"cargo_ids,omitempty"`

	AuditInfo audit.Info `json:"audit"`
}

// Key returns the entry's scheduling month.
func (e *MonthlyEntry) Key() MonthKey {
	return MonthKey{Month: e.Month, Year: e.Year}
}

// Persisted reports whether the entry has a durable identity.
func (e *MonthlyEntry) Persisted() bool {
	return e.ID != ""
}

// Fob returns the FOB schedule, if this entry carries one.
func (e *MonthlyEntry) Fob() (*FobSchedule, bool) {
	s, ok := e.Schedule.(*FobSchedule)
	return s, ok
}

// Cif returns the CIF schedule, if this entry carries one.
func (e *MonthlyEntry) Cif() (*CifSchedule, bool) {
	s, ok := e.Schedule.(*CifSchedule)
	return s, ok
}

// DeliveryKey resolves the month the entry is routed to for reconciliation:
// CIF entries route on their parsed delivery month, FOB entries on the
// loading month.
func (e *MonthlyEntry) DeliveryKey() (MonthKey, error) {
	cif, ok := e.Cif()
	if !ok {
		return e.Key(), nil
	}
	return ParseDeliveryMonth(cif.DeliveryMonth)
}

// ClearWindows wipes the negotiated laycan/window fields. Used after a
// cross-quarter move: the windows must be renegotiated, losing them is
// deliberate.
func (e *MonthlyEntry) ClearWindows() {
	switch s := e.Schedule.(type) {
	case *FobSchedule:
		s.Laycan5Days = ""
		s.Laycan2Days = ""
	case *CifSchedule:
		s.LoadingWindow = ""
		s.DeliveryWindow = ""
	}
}

// SlotQuantity returns the quantity held for a product, whether the entry is
// single-product or a combi group.
func (e *MonthlyEntry) SlotQuantity(product string) decimal.Decimal {
	if !e.IsCombi {
		if e.ProductName == product {
			return e.Quantity
		}
		return decimal.Zero
	}
	for _, s := range e.Slots {
		if s.Product == product {
			return s.Quantity
		}
	}
	return decimal.Zero
}

// HasPositiveQuantity reports whether the entry carries any liftable volume.
func (e *MonthlyEntry) HasPositiveQuantity() bool {
	if !e.IsCombi {
		return e.Quantity.IsPositive()
	}
	for _, s := range e.Slots {
		if s.Quantity.IsPositive() {
			return true
		}
	}
	return false
}
