package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sheet-ledger/engine"
	"github.com/warp/sheet-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedSheet(t *testing.T, store *sqlite.Store, code string) int64 {
	var id int64
	err := store.WithTx(context.Background(), func(tx engine.Tx) error {
		var err error
		id, err = tx.InsertSheetType(context.Background(), engine.SheetType{
			Code:         code,
			MetalType:    "stainless",
			Grade:        "304",
			WidthMM:      dec("1000"),
			LengthMM:     dec("2000"),
			ThicknessMM:  dec("1.5"),
			WeightPerSqm: dec("10"),
		})
		return err
	})
	require.NoError(t, err)
	return id
}

func seedBatch(t *testing.T, store *sqlite.Store, sheetID int64, qty string, received time.Time) int64 {
	var id int64
	err := store.WithTx(context.Background(), func(tx engine.Tx) error {
		var err error
		id, err = tx.InsertBatch(context.Background(), engine.Batch{
			SheetTypeID:       sheetID,
			BatchNumber:       "B-" + received.Format("0102"),
			QuantityOriginal:  dec(qty),
			QuantityRemaining: dec(qty),
			CostPerKg:         dec("5"),
			ReceivedDate:      received,
		})
		return err
	})
	require.NoError(t, err)
	return id
}

// =============================================================================
// MIGRATIONS
// =============================================================================

func TestNew_MigrationsApplyOnceOnReopen(t *testing.T) {
	// GIVEN: A database file that has been opened and migrated
	// WHEN: Opening it a second time
	// THEN: No migration runs again and data survives

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sheets.db")

	first, err := sqlite.New(ctx, path)
	require.NoError(t, err)
	version, err := first.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	seedSheet(t, first, "SS-304-1.5")
	require.NoError(t, first.Flush(ctx))
	require.NoError(t, first.Close())

	second, err := sqlite.New(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	again, err := second.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, version, again)

	err = second.View(ctx, func(tx engine.Tx) error {
		sheets, err := tx.ListSheetTypes(ctx)
		require.NoError(t, err)
		assert.Len(t, sheets, 1)
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

func TestWithTx_ErrorRollsBackEverything(t *testing.T) {
	// GIVEN: A unit of work that writes a batch and a ledger entry
	// WHEN: fn returns an error after the writes
	// THEN: Neither write is visible afterwards

	store := newTestStore(t)
	ctx := context.Background()
	sheetID := seedSheet(t, store, "SS-1")
	batchID := seedBatch(t, store, sheetID, "10", day(2024, 1, 1))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx engine.Tx) error {
		if err := tx.SetBatchRemaining(ctx, batchID, dec("4")); err != nil {
			return err
		}
		if _, err := tx.InsertEntry(ctx, engine.LedgerEntry{
			Account:      engine.CustomerAccount(1),
			Type:         engine.EntrySale,
			Amount:       dec("10"),
			BalanceAfter: dec("10"),
			EntryDate:    day(2024, 1, 2),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = store.View(ctx, func(tx engine.Tx) error {
		b, err := tx.GetBatch(ctx, batchID)
		require.NoError(t, err)
		assert.True(t, dec("10").Equal(b.QuantityRemaining), "remaining should be untouched")

		last, err := tx.LastEntry(ctx, engine.CustomerAccount(1))
		require.NoError(t, err)
		assert.Nil(t, last)
		return nil
	})
	require.NoError(t, err)
}

func TestWithTx_PanicRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sheetID := seedSheet(t, store, "SS-1")
	batchID := seedBatch(t, store, sheetID, "10", day(2024, 1, 1))

	assert.Panics(t, func() {
		_ = store.WithTx(ctx, func(tx engine.Tx) error {
			_ = tx.SetBatchRemaining(ctx, batchID, dec("0"))
			panic("mid-operation")
		})
	})

	err := store.View(ctx, func(tx engine.Tx) error {
		b, err := tx.GetBatch(ctx, batchID)
		require.NoError(t, err)
		assert.True(t, dec("10").Equal(b.QuantityRemaining))
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// CONSTRAINT CLASSIFICATION
// =============================================================================

func TestInsert_DuplicateCode_IsUniqueConstraint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSheet(t, store, "SS-1")

	err := store.WithTx(ctx, func(tx engine.Tx) error {
		_, err := tx.InsertSheetType(ctx, engine.SheetType{
			Code: "SS-1", MetalType: "stainless",
			WidthMM: dec("1"), LengthMM: dec("1"), ThicknessMM: dec("1"),
		})
		return err
	})

	var ce *engine.ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, engine.ConstraintUnique, ce.Kind)
	assert.Equal(t, "sheet_types.code", ce.Constraint)
	assert.ErrorIs(t, err, engine.ErrConstraintViolation)
}

func TestInsert_MissingSheet_IsForeignKeyConstraint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx engine.Tx) error {
		_, err := tx.InsertBatch(ctx, engine.Batch{
			SheetTypeID:       999,
			QuantityOriginal:  dec("1"),
			QuantityRemaining: dec("1"),
			ReceivedDate:      day(2024, 1, 1),
		})
		return err
	})

	var ce *engine.ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, engine.ConstraintForeignKey, ce.Kind)
	assert.Equal(t, "batches.sheet_type_id", ce.Constraint)
}

func TestGet_MissingRow_IsNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.View(ctx, func(tx engine.Tx) error {
		_, err := tx.GetSale(ctx, 42)
		return err
	})

	var nf *engine.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "sale", nf.Entity)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

// =============================================================================
// BATCHES
// =============================================================================

func TestListBatches_FIFOOrder(t *testing.T) {
	// GIVEN: Batches inserted out of date order, two on the same day
	// THEN: ListBatches returns them by received date, then id

	store := newTestStore(t)
	ctx := context.Background()
	sheetID := seedSheet(t, store, "SS-1")

	late := seedBatch(t, store, sheetID, "5", day(2024, 3, 1))
	early := seedBatch(t, store, sheetID, "5", day(2024, 1, 1))
	sameDay := seedBatch(t, store, sheetID, "5", day(2024, 1, 1))

	err := store.View(ctx, func(tx engine.Tx) error {
		batches, err := tx.ListBatches(ctx, sheetID)
		require.NoError(t, err)
		require.Len(t, batches, 3)
		assert.Equal(t, []int64{early, sameDay, late},
			[]int64{batches[0].ID, batches[1].ID, batches[2].ID})
		return nil
	})
	require.NoError(t, err)
}

func TestPruneEmptyBatches_KeepsReferencedAndStocked(t *testing.T) {
	// GIVEN: one exhausted unreferenced batch, one exhausted batch a sale
	//        item points at, and one batch with stock
	// WHEN: pruning twice
	// THEN: only the first is removed, and the second prune is a no-op

	store := newTestStore(t)
	ctx := context.Background()
	sheetID := seedSheet(t, store, "SS-1")

	empty := seedBatch(t, store, sheetID, "5", day(2024, 1, 1))
	referenced := seedBatch(t, store, sheetID, "5", day(2024, 1, 2))
	stocked := seedBatch(t, store, sheetID, "5", day(2024, 1, 3))

	err := store.WithTx(ctx, func(tx engine.Tx) error {
		require.NoError(t, tx.SetBatchRemaining(ctx, empty, decimal.Zero))
		require.NoError(t, tx.SetBatchRemaining(ctx, referenced, decimal.Zero))

		saleID, err := tx.InsertSale(ctx, engine.Sale{
			InvoiceNumber: "INV-1", SaleDate: day(2024, 2, 1), CurrencyCode: "USD",
			FxRate: dec("1"), PaymentStatus: engine.PaymentUnpaid,
		})
		require.NoError(t, err)
		_, err = tx.InsertSaleItem(ctx, engine.SaleItem{
			SaleID: saleID, Kind: engine.ItemMaterial,
			SheetTypeID: &sheetID, BatchID: &referenced,
			Quantity: dec("5"), UnitPrice: dec("1"), TotalPrice: dec("5"),
		})
		return err
	})
	require.NoError(t, err)

	var removed, again int64
	err = store.WithTx(ctx, func(tx engine.Tx) error {
		var err error
		removed, err = tx.PruneEmptyBatches(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	err = store.WithTx(ctx, func(tx engine.Tx) error {
		var err error
		again, err = tx.PruneEmptyBatches(ctx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), again)

	err = store.View(ctx, func(tx engine.Tx) error {
		batches, err := tx.ListBatches(ctx, sheetID)
		require.NoError(t, err)
		require.Len(t, batches, 2)
		assert.Equal(t, referenced, batches[0].ID)
		assert.Equal(t, stocked, batches[1].ID)
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestLedgerEntries_ReferenceLookupAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	account := engine.CustomerAccount(7)

	err := store.WithTx(ctx, func(tx engine.Tx) error {
		for i, amount := range []string{"100", "-40", "25"} {
			if _, err := engine.PostEntry(ctx, tx, engine.EntryInput{
				Account:       account,
				Type:          engine.EntrySale,
				Amount:        dec(amount),
				ReferenceType: engine.RefSale,
				ReferenceID:   int64(i + 1),
				Date:          day(2024, 1, 1),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx engine.Tx) error {
		found, err := tx.EntriesByReference(ctx, account, engine.RefSale, []int64{3})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.True(t, dec("85").Equal(found[0].BalanceAfter))

		n, err := tx.DeleteEntries(ctx, []int64{found[0].ID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)

	err = store.View(ctx, func(tx engine.Tx) error {
		entries, err := tx.ListEntries(ctx, account)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.NoError(t, engine.VerifyPrefixSums(entries))
		return nil
	})
	require.NoError(t, err)
}

// =============================================================================
// CURRENCIES AND EXPENSES
// =============================================================================

func TestSaveCurrencies_SingleBase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.BaseCurrency(ctx)
	assert.ErrorIs(t, err, sqlite.ErrNoBaseCurrency)

	require.NoError(t, store.SaveCurrencies(ctx, []engine.Currency{
		{Code: "USD", Symbol: "$", IsBase: true},
		{Code: "EUR", Symbol: "€", ExchangeRate: dec("0.92")},
	}))
	require.NoError(t, store.SaveCurrencies(ctx, []engine.Currency{
		{Code: "AFN", Symbol: "؋", IsBase: true},
		{Code: "USD", Symbol: "$", ExchangeRate: dec("0.014")},
	}))

	base, err := store.BaseCurrency(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AFN", base.Code)

	rates, err := store.ExchangeRates(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(rates["AFN"]))
	assert.True(t, dec("0.014").Equal(rates["USD"]))
	assert.True(t, dec("0.92").Equal(rates["EUR"]))
}

func TestMarkExpenseApproved_OnlyOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	var id int64
	err := store.WithTx(ctx, func(tx engine.Tx) error {
		var err error
		id, err = tx.InsertExpense(ctx, engine.Expense{
			Category: "rent", Amount: dec("300"), ExpenseDate: day(2024, 4, 30),
		})
		if err != nil {
			return err
		}
		return tx.MarkExpenseApproved(ctx, id, at)
	})
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx engine.Tx) error {
		return tx.MarkExpenseApproved(ctx, id, at)
	})
	assert.ErrorIs(t, err, engine.ErrNotFound)

	err = store.View(ctx, func(tx engine.Tx) error {
		e, err := tx.GetExpense(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, engine.ExpenseApproved, e.Status)
		require.NotNil(t, e.ApprovedAt)
		assert.True(t, at.Equal(*e.ApprovedAt))
		return nil
	})
	require.NoError(t, err)
}
