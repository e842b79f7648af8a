/*
store.go - Persistence interfaces

PURPOSE:
  Defines the boundary between the engine and the database. A Store hands
  out Tx values inside a scoped unit of work: WithTx commits when fn
  returns nil and rolls back on any error or panic. View runs fn against
  committed state only.

RULES FOR IMPLEMENTATIONS:
  - WithTx serializes writers. No two units of work may interleave their
    read-modify-write of a batch's remaining quantity or an account's
    latest ledger entry.
  - Everything fn does must go through the Tx it was given.
  - Ledger entries and movements have insert and reference-scoped delete
    only; there is no update path for them.

IMPLEMENTATIONS:
  - store/sqlite: SQLite, one writer, WAL
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the unit of work factory passed into every orchestrator.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of storage operations available inside a unit of work.
type Tx interface {
	CatalogTx
	BatchTx
	SaleTx
	LedgerTx
	ExpenseTx
}

type CatalogTx interface {
	InsertSheetType(ctx context.Context, s SheetType) (int64, error)
	GetSheetType(ctx context.Context, id int64) (SheetType, error)
	ListSheetTypes(ctx context.Context) ([]SheetType, error)
	SetSheetWeight(ctx context.Context, id int64, weightPerSqm decimal.Decimal) error
	DeleteSheetType(ctx context.Context, id int64) error

	InsertServiceType(ctx context.Context, s ServiceType) (int64, error)
	GetServiceType(ctx context.Context, id int64) (ServiceType, error)

	InsertCustomer(ctx context.Context, c Customer) (int64, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	InsertSupplier(ctx context.Context, s Supplier) (int64, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
}

type BatchTx interface {
	InsertBatch(ctx context.Context, b Batch) (int64, error)
	GetBatch(ctx context.Context, id int64) (Batch, error)
	// ListBatches returns every batch of a sheet type ordered by received
	// date, then id.
	ListBatches(ctx context.Context, sheetTypeID int64) (Batches, error)
	ListAllBatches(ctx context.Context) (Batches, error)
	SetBatchRemaining(ctx context.Context, id int64, remaining decimal.Decimal) error
	// PruneEmptyBatches deletes exhausted batches no sale item references.
	PruneEmptyBatches(ctx context.Context) (int64, error)

	InsertMovement(ctx context.Context, m InventoryMovement) (int64, error)
	ListMovements(ctx context.Context, batchID int64) ([]InventoryMovement, error)
	DeleteMovements(ctx context.Context, referenceType string, referenceID int64) (int64, error)
}

type SaleTx interface {
	InsertSale(ctx context.Context, s Sale) (int64, error)
	GetSale(ctx context.Context, id int64) (Sale, error)
	SetSalePayment(ctx context.Context, id int64, amountPaid decimal.Decimal, status PaymentStatus) error
	DeleteSale(ctx context.Context, id int64) error

	InsertSaleItem(ctx context.Context, item SaleItem) (int64, error)
	ListSaleItems(ctx context.Context, saleID int64) ([]SaleItem, error)
	DeleteSaleItems(ctx context.Context, saleID int64) (int64, error)

	InsertPayment(ctx context.Context, p Payment) (int64, error)
	ListSalePayments(ctx context.Context, saleID int64) ([]Payment, error)
	DeleteSalePayments(ctx context.Context, saleID int64) (int64, error)
}

type LedgerTx interface {
	// LastEntry returns the highest-id entry for the account, or nil.
	LastEntry(ctx context.Context, account Account) (*LedgerEntry, error)
	InsertEntry(ctx context.Context, e LedgerEntry) (int64, error)
	ListEntries(ctx context.Context, account Account) ([]LedgerEntry, error)
	// EntriesByReference returns entries for the account tied to any of
	// the given reference ids of referenceType.
	EntriesByReference(ctx context.Context, account Account, referenceType string, referenceIDs []int64) ([]LedgerEntry, error)
	DeleteEntries(ctx context.Context, ids []int64) (int64, error)
}

type ExpenseTx interface {
	InsertExpense(ctx context.Context, e Expense) (int64, error)
	GetExpense(ctx context.Context, id int64) (Expense, error)
	MarkExpenseApproved(ctx context.Context, id int64, at time.Time) error
}
