package contract

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nholding/lifting-book/internal/audit"
	"github.com/nholding/lifting-book/internal/utils"
)

// Type is the delivery term of the contract. FOB contracts schedule
// loading-port laycans only; CIF contracts schedule loading AND delivery
// windows.
type Type string

const (
	TypeFOB Type = "FOB"
	TypeCIF Type = "CIF"
)

// Category determines how strictly liftings must reconcile against the
// quarterly allocation:
//
//	TERM / SEMI_TERM: every fiscal quarter must balance exactly against the
//	                  allocated quantity per product.
//	SPOT:             single-cargo deals, no quarterly conservation.
//	RANGE:            min/max flexibility across the whole contract period.
type Category string

const (
	CategoryTerm     Category = "TERM"
	CategorySemiTerm Category = "SEMI_TERM"
	CategorySpot     Category = "SPOT"
	CategoryRange    Category = "RANGE"
)

// Product is one grade under a contract, with its contracted quantities in KT.
// Min/Max are only meaningful for RANGE contracts and stay nil otherwise.
type Product struct {
	Name             string           `json:"name"`
	TotalQuantity    decimal.Decimal  `json:"total_quantity"`
	OptionalQuantity decimal.Decimal  `json:"optional_quantity"`
	MinQuantity      *decimal.Decimal `json:"min_quantity,omitempty"`
	MaxQuantity      *decimal.Decimal `json:"max_quantity,omitempty"`
}

// Contract is the engine's read model of a trade contract. It is owned by the
// contract-administration screens; the engine never mutates it, it only reads
// terms to route and reconcile liftings.
type Contract struct {
	ID          string `json:"id"`
	BusinessKey string `json:"business_key"`
	KeyVersion  string `json:"key_version"`

	ContractNo   string `json:"contract_no"`
	Counterparty string `json:"counterparty"`

	Type     Type     `json:"contract_type"`
	Category Category `json:"contract_category"`

	StartPeriod      time.Time `json:"start_period"`
	EndPeriod        time.Time `json:"end_period"`
	FiscalStartMonth int       `json:"fiscal_start_month"` // 1-12

	Products []Product `json:"products"`

	AuditInfo audit.Info `json:"audit"`
}

// GenerateKeys assigns the stable id and the deduplication business key.
func (c *Contract) GenerateKeys(ids utils.IDProvider) {
	c.KeyVersion = "L1" // version 1 of key logic
	c.ID = ids.NewID()

	c.BusinessKey = utils.GenerateBusinessKey(c.KeyVersion, map[string]string{
		"contract_no":  c.ContractNo,
		"counterparty": c.Counterparty,
	})
}

// Validate checks the contract terms the engine depends on. Business
// correctness of the terms themselves (quantities, grade names) is the
// contract administration's problem, not ours.
func (c *Contract) Validate() error {
	if c.Type != TypeFOB && c.Type != TypeCIF {
		return fmt.Errorf("invalid contract type %q, must be FOB or CIF", c.Type)
	}

	switch c.Category {
	case CategoryTerm, CategorySemiTerm, CategorySpot, CategoryRange:
	default:
		return fmt.Errorf("invalid contract category %q", c.Category)
	}

	if c.FiscalStartMonth < 1 || c.FiscalStartMonth > 12 {
		return fmt.Errorf("fiscal start month %d out of range 1-12", c.FiscalStartMonth)
	}

	if !c.StartPeriod.Before(c.EndPeriod) {
		return fmt.Errorf("contract start period must be before end period")
	}

	if len(c.Products) == 0 {
		return fmt.Errorf("contract has no products")
	}

	seen := make(map[string]bool, len(c.Products))
	for _, p := range c.Products {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("contract product with empty name")
		}
		if seen[name] {
			return fmt.Errorf("duplicate product %q on contract", name)
		}
		seen[name] = true

		if c.Category == CategoryRange && (p.MinQuantity == nil || p.MaxQuantity == nil) {
			return fmt.Errorf("RANGE contract product %q needs min and max quantities", name)
		}
	}

	return nil
}

// RequiresQuarterlyConservation reports whether the quarterly-sum invariant
// applies to this contract.
func (c *Contract) RequiresQuarterlyConservation() bool {
	return c.Category == CategoryTerm || c.Category == CategorySemiTerm
}

// Product looks a product up by name.
func (c *Contract) Product(name string) (*Product, bool) {
	for i := range c.Products {
		if c.Products[i].Name == name {
			return &c.Products[i], true
		}
	}
	return nil, false
}

// ProductNames returns product names in contract order.
func (c *Contract) ProductNames() []string {
	names := make([]string, len(c.Products))
	for i, p := range c.Products {
		names[i] = p.Name
	}
	return names
}

// InPeriod reports whether a date is covered by the contract period.
func (c *Contract) InPeriod(date time.Time) bool {
	return utils.DateInRange(date, c.StartPeriod, c.EndPeriod)
}
