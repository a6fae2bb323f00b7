package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nholding/lifting-book/internal/utils"
)

// CombiGroupManager creates, dissolves and aggregates combi cargo groups:
// one vessel call carrying more than one product, modeled as linked
// per-product plan records sharing a group id.
//
// All group ids come from the injected IDProvider so tests run
// deterministically.
type CombiGroupManager struct {
	ids utils.IDProvider
}

func NewCombiGroupManager(ids utils.IDProvider) *CombiGroupManager {
	return &CombiGroupManager{ids: ids}
}

// EnableCombi turns a single-product entry into a combi group: a fresh group
// id, one zero-quantity slot per contract product, and the single-product
// fields cleared. The previous product keeps its quantity in its slot.
func (m *CombiGroupManager) EnableCombi(e *MonthlyEntry, products []string) {
	if e.IsCombi {
		return
	}

	prevProduct := e.ProductName
	prevQty := e.Quantity

	e.IsCombi = true
	e.CombiGroupID = m.ids.NewGroupID()
	e.Slots = make([]CombiSlot, 0, len(products))

	for _, p := range products {
		slot := CombiSlot{Product: p, Quantity: decimal.Zero}
		if p == prevProduct {
			slot.Quantity = prevQty
			slot.PlanID = e.ID
			slot.Version = e.Version
		}
		e.Slots = append(e.Slots, slot)
	}

	e.ProductName = ""
	m.Recompute(e)
}

// DisableCombi collapses a combi group back to a single-product entry on the
// first contract product, with zero quantity. The group id is discarded. The
// displaced slots that reference persisted member records are returned so the
// save path can delete those records; dropping them here would orphan them in
// storage.
func (m *CombiGroupManager) DisableCombi(e *MonthlyEntry, firstProduct string) []CombiSlot {
	if !e.IsCombi {
		return nil
	}

	var displaced []CombiSlot
	for _, s := range e.Slots {
		if s.PlanID != "" {
			displaced = append(displaced, s)
		}
	}

	e.IsCombi = false
	e.CombiGroupID = ""
	e.Slots = nil
	e.ProductName = firstProduct
	e.Quantity = decimal.Zero
	return displaced
}

// SetProductQuantity updates one product slot and recomputes the group
// quantity. The product must be a slot of the group.
func (m *CombiGroupManager) SetProductQuantity(e *MonthlyEntry, product string, qty decimal.Decimal) error {
	if !e.IsCombi {
		return fmt.Errorf("entry is not a combi group")
	}

	for i := range e.Slots {
		if e.Slots[i].Product == product {
			e.Slots[i].Quantity = qty
			m.Recompute(e)
			return nil
		}
	}

	return fmt.Errorf("product %q is not part of combi group %s", product, e.CombiGroupID)
}

// Recompute restores the group-quantity invariant: quantity = Σ slots.
func (m *CombiGroupManager) Recompute(e *MonthlyEntry) {
	if !e.IsCombi {
		return
	}
	sum := decimal.Zero
	for _, s := range e.Slots {
		sum = sum.Add(s.Quantity)
	}
	e.Quantity = sum
}

// MergeCombiGroups folds persisted records into logical editing rows:
// records sharing a non-empty combi group id become one group entry whose
// shared scheduling fields come from the first member and whose authority
// top-up is the sum of the members' top-ups. Products the contract carries
// but the group does not are added as empty slots so the editor can fill
// them in. Single-product records pass through untouched.
func MergeCombiGroups(entries []*MonthlyEntry, products []string) []*MonthlyEntry {
	var merged []*MonthlyEntry
	groups := make(map[string]*MonthlyEntry)

	for _, e := range entries {
		if e == nil {
			continue
		}

		if e.CombiGroupID == "" {
			merged = append(merged, e)
			continue
		}

		group, ok := groups[e.CombiGroupID]
		if !ok {
			group = &MonthlyEntry{
				QuarterlyPlanID: e.QuarterlyPlanID,
				ContractID:      e.ContractID,
				Month:           e.Month,
				Year:            e.Year,
				IsCombi:         true,
				CombiGroupID:    e.CombiGroupID,
				// Shared vessel-call fields come from the first member.
				Schedule:                e.Schedule,
				AuthorityTopupReference: e.AuthorityTopupReference,
				AuditInfo:               e.AuditInfo,
			}
			groups[e.CombiGroupID] = group
			merged = append(merged, group)
		}

		group.Slots = append(group.Slots, CombiSlot{
			Product:  e.ProductName,
			Quantity: e.Quantity,
			PlanID:   e.ID,
			Version:  e.Version,
		})
		group.Quantity = group.Quantity.Add(e.Quantity)
		group.AuthorityTopupQuantity = group.AuthorityTopupQuantity.Add(e.AuthorityTopupQuantity)

		group.HasCargos = group.HasCargos || e.HasCargos
		group.HasCompletedCargos = group.HasCompletedCargos || e.HasCompletedCargos
		group.IsLocked = group.IsLocked || e.IsLocked
	}

	// Pad groups with empty slots for missing contract products.
	for _, e := range merged {
		if !e.IsCombi {
			continue
		}
		held := make(map[string]bool, len(e.Slots))
		for _, s := range e.Slots {
			held[s.Product] = true
		}
		for _, p := range products {
			if !held[p] {
				e.Slots = append(e.Slots, CombiSlot{Product: p, Quantity: decimal.Zero})
			}
		}
	}

	return merged
}

// ExplodeGroup flattens a combi group into the per-product records that are
// persisted: one record per product with nonzero quantity, all sharing the
// group id and the group's scheduling fields. Slots reduced to zero that
// still reference a persisted plan id are returned separately as deletions.
func ExplodeGroup(e *MonthlyEntry) (records []*MonthlyEntry, deletions []CombiSlot) {
	if !e.IsCombi {
		return []*MonthlyEntry{e}, nil
	}

	for _, slot := range e.Slots {
		if !slot.Quantity.IsPositive() {
			if slot.PlanID != "" {
				deletions = append(deletions, slot)
			}
			continue
		}

		records = append(records, &MonthlyEntry{
			ID:              slot.PlanID,
			QuarterlyPlanID: e.QuarterlyPlanID,
			ContractID:      e.ContractID,
			Month:           e.Month,
			Year:            e.Year,
			ProductName:     slot.Product,
			Quantity:        slot.Quantity,
			IsCombi:         true,
			CombiGroupID:    e.CombiGroupID,
			Schedule:        e.Schedule,
			Version:         slot.Version,
			AuditInfo:       e.AuditInfo,
		})
	}

	return records, deletions
}

// ValidateGroup enforces the combi invariants: at least one member with
// positive quantity and no product twice in the same group.
func ValidateGroup(e *MonthlyEntry) error {
	if !e.IsCombi {
		return nil
	}

	seen := make(map[string]bool, len(e.Slots))
	for _, s := range e.Slots {
		if seen[s.Product] {
			return &ValidationError{Reason: fmt.Sprintf("product %s appears twice in combi group %s", s.Product, e.CombiGroupID)}
		}
		seen[s.Product] = true
	}

	if !e.HasPositiveQuantity() {
		return &ValidationError{Reason: fmt.Sprintf("combi group %s has no product with positive quantity", e.CombiGroupID)}
	}

	return nil
}
