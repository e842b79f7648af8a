package trading

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

// DeletionReceipt reports what DeleteSale reversed.
type DeletionReceipt struct {
	Sale            engine.Sale
	RestoredBatches map[int64]decimal.Decimal // batch id -> quantity put back
	EntriesRemoved  int64
	Warnings        []string
}

// DeleteSale reverses a committed sale in one unit of work.
//
// Batch quantities are restored additively, so stock received or sold in
// the meantime is preserved. Ledger entries tied to the sale and to its
// payments are removed; this is only allowed while they are still the
// newest entries on the customer's account, otherwise the remaining
// balance_after chain would no longer be a prefix sum and the caller has
// to post an adjustment instead.
func (s *Service) DeleteSale(ctx context.Context, saleID int64) (*DeletionReceipt, error) {
	if ve := engine.RequiredID("sale_id", saleID); ve != nil {
		return nil, ve
	}

	receipt := &DeletionReceipt{RestoredBatches: make(map[int64]decimal.Decimal)}
	warnings, err := s.run(ctx, "delete_sale", func(tx engine.Tx) error {
		sale, err := tx.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		receipt.Sale = sale

		items, err := tx.ListSaleItems(ctx, saleID)
		if err != nil {
			return err
		}
		payments, err := tx.ListSalePayments(ctx, saleID)
		if err != nil {
			return err
		}

		// ledger first: the guard must reject before anything is touched
		if sale.CustomerID != nil {
			removed, err := removeSaleEntries(ctx, tx, *sale.CustomerID, sale, payments)
			if err != nil {
				return err
			}
			receipt.EntriesRemoved = removed
		}

		for _, item := range items {
			if item.Kind != engine.ItemMaterial || item.BatchID == nil {
				continue
			}
			batch, err := tx.GetBatch(ctx, *item.BatchID)
			if err != nil {
				return err
			}
			batch, err = batch.Apply(item.Quantity)
			if err != nil {
				return err
			}
			if err := tx.SetBatchRemaining(ctx, batch.ID, batch.QuantityRemaining); err != nil {
				return err
			}
			receipt.RestoredBatches[batch.ID] = receipt.RestoredBatches[batch.ID].Add(item.Quantity)
		}

		if _, err := tx.DeleteSalePayments(ctx, saleID); err != nil {
			return err
		}
		if _, err := tx.DeleteSaleItems(ctx, saleID); err != nil {
			return err
		}
		if _, err := tx.DeleteMovements(ctx, engine.RefSale, saleID); err != nil {
			return err
		}
		return tx.DeleteSale(ctx, saleID)
	})
	if err != nil {
		return nil, err
	}

	receipt.Warnings = warnings
	s.logger.Info("sale deleted",
		"sale_id", saleID,
		"invoice", receipt.Sale.InvoiceNumber,
		"batches_restored", len(receipt.RestoredBatches),
		"entries_removed", receipt.EntriesRemoved)
	return receipt, nil
}

// removeSaleEntries deletes the customer entries referencing the sale or
// its payments, provided no other entry was appended after the first one.
func removeSaleEntries(ctx context.Context, tx engine.Tx, customerID int64, sale engine.Sale, payments []engine.Payment) (int64, error) {
	account := engine.CustomerAccount(customerID)

	own, err := tx.EntriesByReference(ctx, account, engine.RefSale, []int64{sale.ID})
	if err != nil {
		return 0, err
	}
	if len(payments) > 0 {
		paymentIDs := make([]int64, len(payments))
		for i, p := range payments {
			paymentIDs[i] = p.ID
		}
		paid, err := tx.EntriesByReference(ctx, account, engine.RefPayment, paymentIDs)
		if err != nil {
			return 0, err
		}
		own = append(own, paid...)
	}
	if len(own) == 0 {
		return 0, nil
	}

	ids := make(map[int64]bool, len(own))
	first := own[0].ID
	for _, e := range own {
		ids[e.ID] = true
		if e.ID < first {
			first = e.ID
		}
	}

	history, err := tx.ListEntries(ctx, account)
	if err != nil {
		return 0, err
	}
	for _, e := range history {
		if e.ID > first && !ids[e.ID] {
			return 0, &engine.ConstraintError{
				Kind:       engine.ConstraintCheck,
				Constraint: "ledger.later_entries",
				Detail: fmt.Sprintf("entry %d on %s was posted after sale %d; post an adjustment of %s instead",
					e.ID, account, sale.ID, offsetOf(own).StringFixed(2)),
			}
		}
	}

	toDelete := make([]int64, 0, len(own))
	for _, e := range own {
		toDelete = append(toDelete, e.ID)
	}
	return tx.DeleteEntries(ctx, toDelete)
}

// offsetOf is the adjustment that cancels entries on the account.
func offsetOf(entries []engine.LedgerEntry) decimal.Decimal {
	net := decimal.Zero
	for _, e := range entries {
		net = net.Add(e.Amount)
	}
	return engine.Round2(net.Neg())
}

// PruneResult reports a housekeeping run.
type PruneResult struct {
	Removed  int64
	Warnings []string
}

// PruneEmptyBatches hard-deletes exhausted batches that no sale item
// references. Running it twice removes nothing the second time.
//
// Lots drained by a sale stay referenced by its items, and deleting that
// sale puts the quantity back, so the service itself never produces a
// prunable lot. What gets reclaimed is stock zeroed directly in the
// database, such as write-offs or imported lots recorded at zero.
func (s *Service) PruneEmptyBatches(ctx context.Context) (*PruneResult, error) {
	result := &PruneResult{}
	warnings, err := s.run(ctx, "prune_batches", func(tx engine.Tx) error {
		n, err := tx.PruneEmptyBatches(ctx)
		result.Removed = n
		return err
	})
	if err != nil {
		return nil, err
	}
	result.Warnings = warnings
	s.metrics.RecordPruned(result.Removed)
	s.logger.Info("empty batches pruned", "removed", result.Removed)
	return result, nil
}
