package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/sheet-ledger/engine"
)

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

const entryColumns = `id, account_kind, account_id, entry_type, amount, balance_after,
	reference_type, reference_id, entry_date, notes, created_at`

// LastEntry relies on AUTOINCREMENT ids growing in insert order.
func (t *txStore) LastEntry(ctx context.Context, account engine.Account) (*engine.LedgerEntry, error) {
	entries, err := t.queryEntries(ctx,
		"SELECT "+entryColumns+` FROM ledger_entries
		WHERE account_kind = ? AND account_id = ?
		ORDER BY id DESC LIMIT 1`,
		string(account.Kind), account.ID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (t *txStore) InsertEntry(ctx context.Context, e engine.LedgerEntry) (int64, error) {
	return t.insert(ctx, "ledger_entries", `
		INSERT INTO ledger_entries (account_kind, account_id, entry_type, amount, balance_after,
			reference_type, reference_id, entry_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Account.Kind), e.Account.ID, string(e.Type),
		e.Amount.String(), e.BalanceAfter.String(),
		e.ReferenceType, e.ReferenceID, formatDate(e.EntryDate), e.Notes, now(),
	)
}

func (t *txStore) ListEntries(ctx context.Context, account engine.Account) ([]engine.LedgerEntry, error) {
	return t.queryEntries(ctx,
		"SELECT "+entryColumns+` FROM ledger_entries
		WHERE account_kind = ? AND account_id = ?
		ORDER BY id ASC`,
		string(account.Kind), account.ID)
}

func (t *txStore) EntriesByReference(ctx context.Context, account engine.Account, referenceType string, referenceIDs []int64) ([]engine.LedgerEntry, error) {
	if len(referenceIDs) == 0 {
		return nil, nil
	}

	args := []any{string(account.Kind), account.ID, referenceType}
	for _, id := range referenceIDs {
		args = append(args, id)
	}
	query := "SELECT " + entryColumns + ` FROM ledger_entries
		WHERE account_kind = ? AND account_id = ? AND reference_type = ?
		  AND reference_id IN (` + placeholders(len(referenceIDs)) + `)
		ORDER BY id ASC`
	return t.queryEntries(ctx, query, args...)
}

func (t *txStore) DeleteEntries(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return t.exec(ctx, "ledger_entries",
		"DELETE FROM ledger_entries WHERE id IN ("+placeholders(len(ids))+")", args...)
}

func (t *txStore) queryEntries(ctx context.Context, query string, args ...any) ([]engine.LedgerEntry, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []engine.LedgerEntry
	for rows.Next() {
		var (
			e                    engine.LedgerEntry
			kind, entryType      string
			amount, balance      string
			entryDate, createdAt string
		)
		if err := rows.Scan(&e.ID, &kind, &e.Account.ID, &entryType, &amount, &balance,
			&e.ReferenceType, &e.ReferenceID, &entryDate, &e.Notes, &createdAt); err != nil {
			return nil, err
		}

		var d decimals
		e.Account.Kind = engine.AccountKind(kind)
		e.Type = engine.EntryType(entryType)
		e.Amount = d.parse(amount)
		e.BalanceAfter = d.parse(balance)
		e.EntryDate = parseDate(entryDate)
		e.CreatedAt = parseTimestamp(createdAt)
		if d.err != nil {
			return nil, d.err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
