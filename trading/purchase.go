package trading

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

// PurchaseRequest receives a lot of one sheet type. Give either the cost
// per kg or the total cost; the other is derived from the sheet weight.
type PurchaseRequest struct {
	SheetTypeID  int64
	SupplierID   *int64
	BatchNumber  string // generated when empty
	Quantity     decimal.Decimal
	CostPerKg    decimal.Decimal
	TotalCost    decimal.Decimal
	ReceivedDate time.Time
	AmountPaid   decimal.Decimal // paid to the supplier on receipt
	Notes        string
}

type PurchaseReceipt struct {
	Batch    engine.Batch
	Entries  []engine.LedgerEntry
	Warnings []string
}

// ReceiveBatch inserts the batch, its IN movement and the supplier ledger
// entries as one unit of work.
func (s *Service) ReceiveBatch(ctx context.Context, req PurchaseRequest) (*PurchaseReceipt, error) {
	if ve := engine.First(
		engine.RequiredID("sheet_type_id", req.SheetTypeID),
		engine.Positive("quantity", req.Quantity),
		engine.NonNegative("cost_per_kg", req.CostPerKg),
		engine.NonNegative("total_cost", req.TotalCost),
		engine.NonNegative("amount_paid", req.AmountPaid),
		engine.DateNotInFuture("received_date", req.ReceivedDate, s.now()),
	); ve != nil {
		return nil, ve
	}
	if req.AmountPaid.IsPositive() && req.SupplierID == nil {
		return nil, engine.Invalid("amount_paid", "a supplier is required to record a payment")
	}

	receipt := &PurchaseReceipt{}
	warnings, err := s.run(ctx, "receive_batch", func(tx engine.Tx) error {
		sheet, err := tx.GetSheetType(ctx, req.SheetTypeID)
		if err != nil {
			return mustExist("sheet_type_id", err)
		}
		if req.SupplierID != nil {
			if _, err := tx.GetSupplier(ctx, *req.SupplierID); err != nil {
				return mustExist("supplier_id", err)
			}
		}

		costPerKg, totalCost, err := deriveCost(sheet, req.Quantity, req.CostPerKg, req.TotalCost)
		if err != nil {
			return err
		}

		batch := engine.Batch{
			SheetTypeID:       sheet.ID,
			SupplierID:        req.SupplierID,
			BatchNumber:       req.BatchNumber,
			QuantityOriginal:  req.Quantity,
			QuantityRemaining: req.Quantity,
			CostPerKg:         costPerKg,
			TotalCost:         totalCost,
			ReceivedDate:      engine.DateOnly(req.ReceivedDate),
			Notes:             req.Notes,
		}
		if batch.BatchNumber == "" {
			batch.BatchNumber = newBatchNumber(sheet.Code)
		}
		batch.ID, err = tx.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		receipt.Batch = batch

		if _, err := tx.InsertMovement(ctx, engine.InventoryMovement{
			SheetTypeID:   sheet.ID,
			BatchID:       batch.ID,
			Direction:     engine.DirectionIn,
			Quantity:      batch.QuantityOriginal,
			ReferenceType: engine.RefPurchase,
			ReferenceID:   batch.ID,
			Notes:         batch.BatchNumber,
		}); err != nil {
			return err
		}

		if req.SupplierID == nil || !totalCost.IsPositive() {
			return nil
		}
		account := engine.SupplierAccount(*req.SupplierID)

		entry, err := engine.PostEntry(ctx, tx, engine.EntryInput{
			Account:       account,
			Type:          engine.EntryPurchase,
			Amount:        totalCost,
			ReferenceType: engine.RefPurchase,
			ReferenceID:   batch.ID,
			Date:          batch.ReceivedDate,
			Notes:         "batch " + batch.BatchNumber,
		})
		if err != nil {
			return err
		}
		receipt.Entries = append(receipt.Entries, entry)

		if req.AmountPaid.IsPositive() {
			entry, err := engine.PostEntry(ctx, tx, engine.EntryInput{
				Account:       account,
				Type:          engine.EntrySupplierPayment,
				Amount:        engine.Round2(req.AmountPaid).Neg(),
				ReferenceType: engine.RefSupplierPayment,
				ReferenceID:   batch.ID,
				Date:          batch.ReceivedDate,
				Notes:         "paid on receipt of " + batch.BatchNumber,
			})
			if err != nil {
				return err
			}
			receipt.Entries = append(receipt.Entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	receipt.Warnings = warnings
	s.metrics.RecordBatchReceived()
	s.recordEntries(receipt.Entries)
	s.logger.Info("batch received",
		"batch_id", receipt.Batch.ID,
		"batch_number", receipt.Batch.BatchNumber,
		"sheet_type_id", receipt.Batch.SheetTypeID,
		"quantity", receipt.Batch.QuantityOriginal.String(),
		"total_cost", receipt.Batch.TotalCost.StringFixed(2))
	return receipt, nil
}

// deriveCost fills in whichever of cost per kg and total cost is missing.
// Without a known sheet weight only the total cost can be used.
func deriveCost(sheet engine.SheetType, qty, costPerKg, totalCost decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	weight := sheet.UnitWeightKg().Mul(qty)

	switch {
	case costPerKg.IsPositive() && totalCost.IsPositive():
		return costPerKg, engine.Round2(totalCost), nil
	case costPerKg.IsPositive():
		if !weight.IsPositive() {
			return decimal.Zero, decimal.Zero,
				engine.Invalid("total_cost", "is required while sheet type %s has no weight per square metre", sheet.Code)
		}
		return costPerKg, engine.Round2(costPerKg.Mul(weight)), nil
	case totalCost.IsPositive():
		if !weight.IsPositive() {
			return decimal.Zero, engine.Round2(totalCost), nil
		}
		return totalCost.DivRound(weight, 4), engine.Round2(totalCost), nil
	default:
		return decimal.Zero, decimal.Zero, engine.Invalid("cost", "cost per kg or total cost is required")
	}
}

// newBatchNumber builds "SS-304-1.5-3F2A9C1D" style lot numbers.
func newBatchNumber(sheetCode string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	if sheetCode == "" {
		return "B-" + suffix
	}
	return sheetCode + "-" + suffix
}
