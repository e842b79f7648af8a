package trading_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sheet-ledger/engine"
	"github.com/warp/sheet-ledger/trading"
)

// =============================================================================
// DELETE SALE
// =============================================================================

func TestDeleteSale_RoundTripRestoresEverything(t *testing.T) {
	// GIVEN: A paid sale spanning two batches plus a service line
	// WHEN: Deleting it right after
	// THEN: Batch quantities, customer balance and movements are as before

	f := newFixture(t)
	sheet := f.sheet("SS-1")
	b1 := f.batch(sheet.ID, "5", day(time.January, 10))
	b2 := f.batch(sheet.ID, "5", day(time.January, 11))
	cutting, err := f.svc.CreateServiceType(f.ctx, "Cutting", dec("10"))
	require.NoError(t, err)
	customerID := f.customer("Acme")

	_, err = f.svc.AdjustBalance(f.ctx, trading.AdjustmentRequest{
		Account: engine.CustomerAccount(customerID),
		Amount:  dec("40"),
		Date:    day(time.May, 1),
		Reason:  "opening balance",
	})
	require.NoError(t, err)

	req := saleOf("INV-1", &customerID,
		material(sheet.ID, "7", "100"),
		trading.LineItem{Kind: engine.ItemService, ServiceTypeID: cutting.ID, UnitPrice: dec("25")})
	req.AmountPaid = dec("300")
	receipt, err := f.svc.ProcessSale(f.ctx, req)
	require.NoError(t, err)
	require.True(t, decimal.Zero.Equal(f.remaining(b1.ID)))
	require.True(t, dec("3").Equal(f.remaining(b2.ID)))
	require.True(t, dec("465").Equal(f.balance(customerID)))

	deleted, err := f.svc.DeleteSale(f.ctx, receipt.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted.EntriesRemoved)
	assert.True(t, dec("5").Equal(deleted.RestoredBatches[b1.ID]))
	assert.True(t, dec("2").Equal(deleted.RestoredBatches[b2.ID]))

	assert.True(t, dec("5").Equal(f.remaining(b1.ID)))
	assert.True(t, dec("5").Equal(f.remaining(b2.ID)))
	assert.True(t, dec("40").Equal(f.balance(customerID)))

	_, err = f.svc.GetSale(f.ctx, receipt.Sale.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	movements, err := f.svc.Movements(f.ctx, b1.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, engine.DirectionIn, movements[0].Direction)

	entries, err := f.svc.Entries(f.ctx, engine.CustomerAccount(customerID))
	require.NoError(t, err)
	assert.NoError(t, engine.VerifyPrefixSums(entries))
}

func TestDeleteSale_RestoresAdditively(t *testing.T) {
	// GIVEN: Two sales drawing from the same batch
	// WHEN: Deleting the first one
	// THEN: Only its quantity comes back; the second sale's draw stays

	f := newFixture(t)
	sheet := f.sheet("SS-1")
	b := f.batch(sheet.ID, "10", day(time.January, 10))

	first, err := f.svc.ProcessSale(f.ctx, saleOf("INV-1", nil, material(sheet.ID, "3", "100")))
	require.NoError(t, err)
	_, err = f.svc.ProcessSale(f.ctx, saleOf("INV-2", nil, material(sheet.ID, "4", "100")))
	require.NoError(t, err)

	_, err = f.svc.DeleteSale(f.ctx, first.Sale.ID)
	require.NoError(t, err)

	assert.True(t, dec("6").Equal(f.remaining(b.ID)))
}

func TestDeleteSale_LaterEntriesOnAccount_Rejected(t *testing.T) {
	// GIVEN: A customer with sale 1 followed by sale 2
	// WHEN: Deleting sale 1
	// THEN: ConstraintError, and nothing changes

	f := newFixture(t)
	sheet := f.sheet("SS-1")
	b := f.batch(sheet.ID, "10", day(time.January, 10))
	customerID := f.customer("Acme")

	first, err := f.svc.ProcessSale(f.ctx, saleOf("INV-1", &customerID, material(sheet.ID, "2", "100")))
	require.NoError(t, err)
	_, err = f.svc.ProcessSale(f.ctx, saleOf("INV-2", &customerID, material(sheet.ID, "1", "100")))
	require.NoError(t, err)

	_, err = f.svc.DeleteSale(f.ctx, first.Sale.ID)
	require.ErrorIs(t, err, engine.ErrConstraintViolation)

	var ce *engine.ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "ledger.later_entries", ce.Constraint)
	assert.Contains(t, ce.Detail, "post an adjustment of -200.00")

	assert.True(t, dec("7").Equal(f.remaining(b.ID)))
	assert.True(t, dec("300").Equal(f.balance(customerID)))
	_, err = f.svc.GetSale(f.ctx, first.Sale.ID)
	assert.NoError(t, err)
}

func TestDeleteSale_IncludesLaterPaymentsAgainstTheSale(t *testing.T) {
	// GIVEN: A sale followed by a payment recorded against it
	// WHEN: Deleting the sale
	// THEN: The payment and its entry go with it

	f := newFixture(t)
	sheet := f.sheet("SS-1")
	f.batch(sheet.ID, "10", day(time.January, 10))
	customerID := f.customer("Acme")

	sale, err := f.svc.ProcessSale(f.ctx, saleOf("INV-1", &customerID, material(sheet.ID, "2", "100")))
	require.NoError(t, err)

	paid, err := f.svc.RecordCustomerPayment(f.ctx, trading.CustomerPaymentRequest{
		CustomerID: customerID,
		SaleID:     &sale.Sale.ID,
		Amount:     dec("200"),
		Date:       day(time.May, 25),
	})
	require.NoError(t, err)
	assert.Equal(t, engine.PaymentPaid, paid.Sale.PaymentStatus)

	deleted, err := f.svc.DeleteSale(f.ctx, sale.Sale.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted.EntriesRemoved)
	assert.True(t, decimal.Zero.Equal(f.balance(customerID)))
}

func TestDeleteSale_Missing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.DeleteSale(f.ctx, 12)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = f.svc.DeleteSale(f.ctx, 0)
	assert.ErrorIs(t, err, engine.ErrValidation)
}

// =============================================================================
// PRUNE
// =============================================================================

func TestPruneEmptyBatches_Idempotent(t *testing.T) {
	// GIVEN: One written-off batch, one batch exhausted by a sale
	// WHEN: Pruning twice
	// THEN: Only the unreferenced one goes, and the second run removes nothing

	f := newFixture(t)
	sheet := f.sheet("SS-1")
	writtenOff := f.batch(sheet.ID, "3", day(time.January, 9))
	sold := f.batch(sheet.ID, "4", day(time.January, 10))

	err := f.store.WithTx(f.ctx, func(tx engine.Tx) error {
		return tx.SetBatchRemaining(f.ctx, writtenOff.ID, decimal.Zero)
	})
	require.NoError(t, err)
	_, err = f.svc.ProcessSale(f.ctx, saleOf("INV-1", nil, material(sheet.ID, "4", "100")))
	require.NoError(t, err)

	first, err := f.svc.PruneEmptyBatches(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Removed)

	second, err := f.svc.PruneEmptyBatches(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Removed)

	batches, err := f.svc.ListBatches(f.ctx, sheet.ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, sold.ID, batches[0].ID)
}
