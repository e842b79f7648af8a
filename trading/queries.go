package trading

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

// SaleDetail is a sale with its items and payments.
type SaleDetail struct {
	Sale     engine.Sale
	Items    []engine.SaleItem
	Payments []engine.Payment
}

func (s *Service) GetSale(ctx context.Context, saleID int64) (*SaleDetail, error) {
	detail := &SaleDetail{}
	err := s.view(ctx, "get sale", func(tx engine.Tx) error {
		var err error
		if detail.Sale, err = tx.GetSale(ctx, saleID); err != nil {
			return err
		}
		if detail.Items, err = tx.ListSaleItems(ctx, saleID); err != nil {
			return err
		}
		detail.Payments, err = tx.ListSalePayments(ctx, saleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListBatches returns the lots of one sheet type in FIFO order, or every
// lot when sheetTypeID is zero.
func (s *Service) ListBatches(ctx context.Context, sheetTypeID int64) (engine.Batches, error) {
	var batches engine.Batches
	err := s.view(ctx, "list batches", func(tx engine.Tx) error {
		var err error
		if sheetTypeID == 0 {
			batches, err = tx.ListAllBatches(ctx)
		} else {
			batches, err = tx.ListBatches(ctx, sheetTypeID)
		}
		return err
	})
	return batches, err
}

func (s *Service) Movements(ctx context.Context, batchID int64) ([]engine.InventoryMovement, error) {
	var movements []engine.InventoryMovement
	err := s.view(ctx, "list movements", func(tx engine.Tx) error {
		var err error
		movements, err = tx.ListMovements(ctx, batchID)
		return err
	})
	return movements, err
}

func (s *Service) Balance(ctx context.Context, account engine.Account) (decimal.Decimal, error) {
	balance, err := s.Ledger().Balance(ctx, account)
	return balance, engine.Classify("read balance", err)
}

func (s *Service) Entries(ctx context.Context, account engine.Account) ([]engine.LedgerEntry, error) {
	entries, err := s.Ledger().Entries(ctx, account)
	return entries, engine.Classify("read ledger", err)
}
