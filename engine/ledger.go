/*
ledger.go - Append-only account ledger

PURPOSE:
  Customers and suppliers each have a running balance that is never stored
  in a separate column. Every entry carries balance_after, computed when
  it is written as the previous entry's balance_after plus its amount.
  The current balance is the balance_after of the highest-id entry.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never updated or reordered.
  2. PREFIX SUMS: ordered by id, balance_after of entry k equals the sum of
     amounts 1..k.
  3. SAME UNIT OF WORK: the read of the last entry and the insert happen in
     the caller's transaction, next to the write that caused them.

SIGN CONVENTION:
  Positive amounts increase what the account owes the business (customer
  sale) or what the business owes the account (supplier purchase).
  Payments are negative.

CORRECTIONS:
  Mistakes are fixed with a new offsetting adjustment entry.
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type AccountKind string

const (
	AccountCustomer AccountKind = "customer"
	AccountSupplier AccountKind = "supplier"
)

type Account struct {
	Kind AccountKind
	ID   int64
}

func CustomerAccount(id int64) Account { return Account{Kind: AccountCustomer, ID: id} }
func SupplierAccount(id int64) Account { return Account{Kind: AccountSupplier, ID: id} }

func (a Account) String() string { return fmt.Sprintf("%s:%d", a.Kind, a.ID) }

type EntryType string

const (
	EntrySale            EntryType = "sale"
	EntryPayment         EntryType = "payment"
	EntryPurchase        EntryType = "purchase"
	EntrySupplierPayment EntryType = "supplier_payment"
	EntryExpense         EntryType = "expense"
	EntryAdjustment      EntryType = "adjustment"
)

// LedgerEntry is immutable once written.
type LedgerEntry struct {
	ID            int64
	Account       Account
	Type          EntryType
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceType string
	ReferenceID   int64
	EntryDate     time.Time
	Notes         string
	CreatedAt     time.Time
}

// EntryInput is what a caller supplies; the balance is computed.
type EntryInput struct {
	Account       Account
	Type          EntryType
	Amount        decimal.Decimal
	ReferenceType string
	ReferenceID   int64
	Date          time.Time
	Notes         string
}

// =============================================================================
// APPEND PROTOCOL
// =============================================================================

// BalanceIn returns the account balance as seen by tx.
func BalanceIn(ctx context.Context, tx LedgerTx, account Account) (decimal.Decimal, error) {
	last, err := tx.LastEntry(ctx, account)
	if err != nil {
		return decimal.Zero, err
	}
	if last == nil {
		return decimal.Zero, nil
	}
	return last.BalanceAfter, nil
}

// PostEntry reads the current balance, adds the amount and appends the
// entry, all through tx. Callers must already hold a unit of work. The
// amount is rounded to cents before it is stored or added, and an amount
// that rounds to zero is rejected.
func PostEntry(ctx context.Context, tx LedgerTx, in EntryInput) (LedgerEntry, error) {
	if in.Account.ID <= 0 {
		return LedgerEntry{}, Invalid("account", "account id is required")
	}
	amount := Round2(in.Amount)
	if amount.IsZero() {
		return LedgerEntry{}, Invalid("amount", "ledger amount must be non-zero")
	}

	current, err := BalanceIn(ctx, tx, in.Account)
	if err != nil {
		return LedgerEntry{}, err
	}

	entry := LedgerEntry{
		Account:       in.Account,
		Type:          in.Type,
		Amount:        amount,
		BalanceAfter:  Round2(current.Add(amount)),
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		EntryDate:     in.Date,
		Notes:         in.Notes,
	}
	id, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return LedgerEntry{}, err
	}
	entry.ID = id
	return entry, nil
}

// VerifyPrefixSums checks that id-ordered entries reconstruct their own
// balance_after sequence from a zero opening balance.
func VerifyPrefixSums(entries []LedgerEntry) error {
	running := decimal.Zero
	var prevID int64
	for _, e := range entries {
		if e.ID <= prevID {
			return fmt.Errorf("entry %d out of order after %d", e.ID, prevID)
		}
		running = Round2(running.Add(e.Amount))
		if !running.Equal(e.BalanceAfter) {
			return fmt.Errorf("entry %d: balance_after %s, expected %s", e.ID, e.BalanceAfter, running)
		}
		prevID = e.ID
	}
	return nil
}

// =============================================================================
// LEDGER - Standalone access through a Store
// =============================================================================

type Ledger struct {
	Store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store}
}

// Balance returns the committed balance of the account.
func (l *Ledger) Balance(ctx context.Context, account Account) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.Store.View(ctx, func(tx Tx) error {
		var err error
		balance, err = BalanceIn(ctx, tx, account)
		return err
	})
	return balance, err
}

// Entries returns the account history ordered by id.
func (l *Ledger) Entries(ctx context.Context, account Account) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := l.Store.View(ctx, func(tx Tx) error {
		var err error
		entries, err = tx.ListEntries(ctx, account)
		return err
	})
	return entries, err
}

// Append posts one entry in its own unit of work.
func (l *Ledger) Append(ctx context.Context, in EntryInput) (LedgerEntry, error) {
	var entry LedgerEntry
	err := l.Store.WithTx(ctx, func(tx Tx) error {
		var err error
		entry, err = PostEntry(ctx, tx, in)
		return err
	})
	return entry, Classify("append ledger entry", err)
}
