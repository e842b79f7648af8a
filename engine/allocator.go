/*
allocator.go - FIFO allocation of a requested quantity across batches

PURPOSE:
  Plans which batches a sale line draws from. Batches are consumed oldest
  received first; equal received dates fall back to id order so the plan
  is deterministic.

PURITY:
  AllocateFIFO never mutates its input and never touches storage. The
  orchestrator reads the batch snapshot and applies the plan inside the
  same unit of work.

COST OF GOODS:
  UnitCOGS = round2(batch cost per kg x weight of one unit)
  TotalCOGS = round2(UnitCOGS x quantity taken)
  When the sheet has no recorded weight the batch's total cost spread over
  its original quantity is used as the unit cost.

EXAMPLE:
  B1 (2024-01-10, 50 left), B2 (2024-01-15, 100 left), request 60
  -> [B1: 50, B2: 10]
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Allocation is one (batch, quantity taken) pair of a plan.
type Allocation struct {
	BatchID   int64
	Quantity  decimal.Decimal
	WeightKg  decimal.Decimal
	UnitCOGS  decimal.Decimal
	TotalCOGS decimal.Decimal
}

// Allocations is an ordered FIFO plan.
type Allocations []Allocation

func (as Allocations) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, a := range as {
		total = total.Add(a.Quantity)
	}
	return total
}

func (as Allocations) TotalCOGS() decimal.Decimal {
	total := decimal.Zero
	for _, a := range as {
		total = total.Add(a.TotalCOGS)
	}
	return Round2(total)
}

// SortFIFO orders a copy of batches by received date, then id.
func SortFIFO(batches []Batch) Batches {
	sorted := make(Batches, len(batches))
	copy(sorted, batches)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i].ReceivedDate, sorted[j].ReceivedDate
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// AllocateFIFO plans qty units of sheet against batches.
// customWeightKg, when set, is the total weight of the whole request (a
// non-standard cut) and is pro-rated over the allocations.
func AllocateFIFO(sheet SheetType, batches []Batch, qty decimal.Decimal, customWeightKg *decimal.Decimal) (Allocations, error) {
	if !qty.IsPositive() {
		return nil, Invalid("quantity", "must be greater than zero")
	}
	if customWeightKg != nil && customWeightKg.IsNegative() {
		return nil, Invalid("custom_weight", "must not be negative")
	}

	ordered := SortFIFO(batches)
	available := ordered.TotalRemaining()
	if available.LessThan(qty) {
		return nil, &InsufficientStockError{
			SheetTypeID: sheet.ID,
			Requested:   qty,
			Available:   available,
		}
	}

	unitWeight := sheet.UnitWeightKg()
	if customWeightKg != nil {
		unitWeight = customWeightKg.Div(qty)
	}

	var plan Allocations
	remaining := qty
	weightLeft := decimal.Zero
	if customWeightKg != nil {
		weightLeft = *customWeightKg
	}

	for _, b := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if b.IsExhausted() {
			continue
		}

		take := decimal.Min(remaining, b.QuantityRemaining)
		remaining = remaining.Sub(take)

		weight := RoundWeight(unitWeight.Mul(take))
		if customWeightKg != nil {
			if remaining.IsZero() {
				// last slice absorbs rounding so the weights add up to the override
				weight = weightLeft
			}
			weightLeft = weightLeft.Sub(weight)
		}

		unitCOGS := UnitCost(b, unitWeight)
		plan = append(plan, Allocation{
			BatchID:   b.ID,
			Quantity:  take,
			WeightKg:  weight,
			UnitCOGS:  unitCOGS,
			TotalCOGS: Round2(unitCOGS.Mul(take)),
		})
	}

	return plan, nil
}

// UnitCost is the cost of one unit drawn from b, given the weight of one
// unit of its sheet type.
func UnitCost(b Batch, unitWeight decimal.Decimal) decimal.Decimal {
	if unitWeight.IsPositive() && b.CostPerKg.IsPositive() {
		return Round2(b.CostPerKg.Mul(unitWeight))
	}
	if b.QuantityOriginal.IsPositive() {
		return Round2(b.TotalCost.Div(b.QuantityOriginal))
	}
	return decimal.Zero
}
