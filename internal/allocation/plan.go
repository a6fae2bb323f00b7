package allocation

import (
	"github.com/shopspring/decimal"
)

// QuarterTarget is the contractual quantity for one fiscal quarter plus any
// authority-approved top-up. Both are KT.
type QuarterTarget struct {
	Target decimal.Decimal `json:"target"`
	TopUp  decimal.Decimal `json:"top_up"`
}

// ProductAllocation is one product's four quarterly targets, indexed by
// fiscal quarter position (0 = first fiscal quarter of the contract year).
type ProductAllocation struct {
	Product  string           `json:"product"`
	Quarters [4]QuarterTarget `json:"quarters"`
}

// Plan is the quarterly allocation for one contract year. It is maintained
// by the allocation screens and read-only here; the only mutation path is
// the authority top-up, which goes through the persistence gateway.
type Plan struct {
	ID           string              `json:"id"`
	ContractID   string              `json:"contract_id"`
	ContractYear int                 `json:"contract_year"` // 1-based
	Allocations  []ProductAllocation `json:"allocations"`
}

func (p *Plan) allocation(product string) *ProductAllocation {
	for i := range p.Allocations {
		if p.Allocations[i].Product == product {
			return &p.Allocations[i]
		}
	}
	return nil
}

// QuarterlyTarget returns target + top-up for a product at a 0-indexed
// fiscal quarter position. Unknown products and out-of-range positions
// yield zero.
func (p *Plan) QuarterlyTarget(product string, position int) decimal.Decimal {
	if position < 0 || position > 3 {
		return decimal.Zero
	}
	a := p.allocation(product)
	if a == nil {
		return decimal.Zero
	}
	q := a.Quarters[position]
	return q.Target.Add(q.TopUp)
}
