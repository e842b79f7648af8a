package engine_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sheet-ledger/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sheet20kg is 1000 x 2000 mm at 10 kg/m2.
func sheet20kg() engine.SheetType {
	return engine.SheetType{
		ID:           1,
		Code:         "SS-304-1.5",
		WidthMM:      dec("1000"),
		LengthMM:     dec("2000"),
		ThicknessMM:  dec("1.5"),
		WeightPerSqm: dec("10"),
	}
}

func batch(id int64, received time.Time, remaining string) engine.Batch {
	return engine.Batch{
		ID:                id,
		SheetTypeID:       1,
		QuantityOriginal:  dec(remaining),
		QuantityRemaining: dec(remaining),
		CostPerKg:         dec("5"),
		ReceivedDate:      received,
	}
}

// =============================================================================
// FIFO ORDER
// =============================================================================

func TestAllocateFIFO_ScenarioA(t *testing.T) {
	// GIVEN: B1 (2024-01-10, 50) and B2 (2024-01-15, 100)
	// WHEN: Requesting 60
	// THEN: [B1: 50, B2: 10]

	batches := []engine.Batch{
		batch(2, day(2024, 1, 15), "100"),
		batch(1, day(2024, 1, 10), "50"),
	}

	plan, err := engine.AllocateFIFO(sheet20kg(), batches, dec("60"), nil)
	require.NoError(t, err)
	require.Len(t, plan, 2)

	assert.Equal(t, int64(1), plan[0].BatchID)
	assert.True(t, dec("50").Equal(plan[0].Quantity))
	assert.Equal(t, int64(2), plan[1].BatchID)
	assert.True(t, dec("10").Equal(plan[1].Quantity))

	// input untouched
	assert.True(t, dec("100").Equal(batches[0].QuantityRemaining))
	assert.True(t, dec("50").Equal(batches[1].QuantityRemaining))
}

func TestAllocateFIFO_SameDateFallsBackToID(t *testing.T) {
	batches := []engine.Batch{
		batch(9, day(2024, 3, 1), "5"),
		batch(4, day(2024, 3, 1), "5"),
		batch(7, day(2024, 3, 1), "5"),
	}

	plan, err := engine.AllocateFIFO(sheet20kg(), batches, dec("12"), nil)
	require.NoError(t, err)

	ids := make([]int64, len(plan))
	for i, a := range plan {
		ids[i] = a.BatchID
	}
	assert.Equal(t, []int64{4, 7, 9}, ids)
	assert.True(t, dec("2").Equal(plan[2].Quantity))
}

func TestAllocateFIFO_SkipsExhausted(t *testing.T) {
	batches := []engine.Batch{
		batch(1, day(2024, 1, 1), "0"),
		batch(2, day(2024, 1, 2), "3"),
	}
	batches[0].QuantityOriginal = dec("10")

	plan, err := engine.AllocateFIFO(sheet20kg(), batches, dec("2"), nil)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, int64(2), plan[0].BatchID)
}

// =============================================================================
// EXACTNESS
// =============================================================================

func TestAllocateFIFO_ExactnessProperty(t *testing.T) {
	// For random batch sets and any Q <= available, allocations sum to Q
	// and never exceed a batch's remaining quantity.

	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		n := rng.Intn(6) + 1
		batches := make([]engine.Batch, n)
		available := decimal.Zero
		for i := range batches {
			qty := decimal.New(int64(rng.Intn(500)), -1) // 0.0 .. 49.9
			batches[i] = batch(int64(i+1), day(2024, 1, rng.Intn(28)+1), qty.String())
			available = available.Add(qty)
		}
		if !available.IsPositive() {
			continue
		}

		q := available.Mul(decimal.NewFromFloat(rng.Float64())).Round(1)
		if !q.IsPositive() {
			q = available
		}

		t.Run(fmt.Sprintf("run%d", run), func(t *testing.T) {
			plan, err := engine.AllocateFIFO(sheet20kg(), batches, q, nil)
			require.NoError(t, err)
			assert.True(t, q.Equal(plan.TotalQuantity()), "sum %s != %s", plan.TotalQuantity(), q)

			remaining := make(map[int64]decimal.Decimal)
			for _, b := range batches {
				remaining[b.ID] = b.QuantityRemaining
			}
			for _, a := range plan {
				assert.True(t, a.Quantity.IsPositive())
				assert.True(t, a.Quantity.LessThanOrEqual(remaining[a.BatchID]))
			}
		})
	}
}

func TestAllocateFIFO_InsufficientStock(t *testing.T) {
	batches := []engine.Batch{
		batch(1, day(2024, 1, 1), "3"),
		batch(2, day(2024, 1, 2), "4"),
	}

	_, err := engine.AllocateFIFO(sheet20kg(), batches, dec("7.5"), nil)
	require.ErrorIs(t, err, engine.ErrInsufficientStock)

	var ise *engine.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(1), ise.SheetTypeID)
	assert.True(t, dec("7.5").Equal(ise.Requested))
	assert.True(t, dec("7").Equal(ise.Available))
}

func TestAllocateFIFO_RejectsNonPositiveQuantity(t *testing.T) {
	batches := []engine.Batch{batch(1, day(2024, 1, 1), "3")}

	for _, q := range []string{"0", "-1"} {
		_, err := engine.AllocateFIFO(sheet20kg(), batches, dec(q), nil)
		assert.ErrorIs(t, err, engine.ErrValidation, q)
	}
}

// =============================================================================
// WEIGHT AND COGS
// =============================================================================

func TestAllocateFIFO_COGSFromCostPerKg(t *testing.T) {
	plan, err := engine.AllocateFIFO(sheet20kg(), []engine.Batch{batch(1, day(2024, 1, 1), "10")}, dec("3"), nil)
	require.NoError(t, err)

	a := plan[0]
	assert.True(t, dec("60").Equal(a.WeightKg))
	assert.True(t, dec("100").Equal(a.UnitCOGS))
	assert.True(t, dec("300").Equal(a.TotalCOGS))
}

func TestAllocateFIFO_COGSWithoutWeightUsesTotalCost(t *testing.T) {
	sheet := sheet20kg()
	sheet.WeightPerSqm = decimal.Zero
	b := batch(1, day(2024, 1, 1), "3")
	b.CostPerKg = decimal.Zero
	b.TotalCost = dec("100")

	plan, err := engine.AllocateFIFO(sheet, []engine.Batch{b}, dec("2"), nil)
	require.NoError(t, err)

	assert.True(t, decimal.Zero.Equal(plan[0].WeightKg))
	assert.Equal(t, "33.33", plan[0].UnitCOGS.StringFixed(2))
	assert.Equal(t, "66.66", plan[0].TotalCOGS.StringFixed(2))
}

func TestAllocateFIFO_CustomWeightSumsExactly(t *testing.T) {
	// GIVEN: A custom cut of 10 kg total over 3 units from three batches
	// THEN: Weights add up to exactly 10 kg

	batches := []engine.Batch{
		batch(1, day(2024, 1, 1), "1"),
		batch(2, day(2024, 1, 2), "1"),
		batch(3, day(2024, 1, 3), "1"),
	}
	custom := dec("10")

	plan, err := engine.AllocateFIFO(sheet20kg(), batches, dec("3"), &custom)
	require.NoError(t, err)
	require.Len(t, plan, 3)

	assert.Equal(t, "3.333", plan[0].WeightKg.StringFixed(3))
	assert.Equal(t, "3.333", plan[1].WeightKg.StringFixed(3))
	assert.Equal(t, "3.334", plan[2].WeightKg.StringFixed(3))

	total := decimal.Zero
	for _, a := range plan {
		total = total.Add(a.WeightKg)
	}
	assert.True(t, custom.Equal(total))

	// 3.333.. kg x 5 per kg
	assert.Equal(t, "16.67", plan[0].UnitCOGS.StringFixed(2))
}

func TestSortFIFO_DoesNotMutateInput(t *testing.T) {
	in := []engine.Batch{
		batch(2, day(2024, 2, 1), "1"),
		batch(1, day(2024, 1, 1), "1"),
	}
	sorted := engine.SortFIFO(in)

	assert.Equal(t, int64(1), sorted[0].ID)
	assert.Equal(t, int64(2), in[0].ID)
}

func TestBatchApply_Bounds(t *testing.T) {
	b := batch(1, day(2024, 1, 1), "10")

	less, err := b.Apply(dec("-4"))
	require.NoError(t, err)
	assert.True(t, dec("6").Equal(less.QuantityRemaining))

	_, err = less.Apply(dec("-7"))
	assert.ErrorIs(t, err, engine.ErrInsufficientStock)

	_, err = less.Apply(dec("5"))
	assert.ErrorIs(t, err, engine.ErrConstraintViolation)
}
