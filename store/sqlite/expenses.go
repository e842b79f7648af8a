package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/warp/sheet-ledger/engine"
)

// =============================================================================
// EXPENSES
// =============================================================================

func (t *txStore) InsertExpense(ctx context.Context, e engine.Expense) (int64, error) {
	status := e.Status
	if status == "" {
		status = engine.ExpensePending
	}
	return t.insert(ctx, "expenses.supplier_id", `
		INSERT INTO expenses (category, amount, expense_date, supplier_id, status, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Category, e.Amount.String(), formatDate(e.ExpenseDate), nullID(e.SupplierID),
		string(status), e.Description, now(),
	)
}

func (t *txStore) GetExpense(ctx context.Context, id int64) (engine.Expense, error) {
	var (
		e                    engine.Expense
		amount, date, status string
		supplierID           sql.NullInt64
		approvedAt           sql.NullString
		createdAt            string
	)
	err := t.q.QueryRowContext(ctx, `
		SELECT id, category, amount, expense_date, supplier_id, status, description, approved_at, created_at
		FROM expenses WHERE id = ?`, id,
	).Scan(&e.ID, &e.Category, &amount, &date, &supplierID, &status, &e.Description, &approvedAt, &createdAt)
	if err != nil {
		return e, notFound(err, "expense", id)
	}

	var d decimals
	e.Amount = d.parse(amount)
	e.ExpenseDate = parseDate(date)
	e.SupplierID = idPtr(supplierID)
	e.Status = engine.ExpenseStatus(status)
	if approvedAt.Valid {
		at := parseTimestamp(approvedAt.String)
		e.ApprovedAt = &at
	}
	e.CreatedAt = parseTimestamp(createdAt)
	return e, d.err
}

// MarkExpenseApproved only moves a pending expense.
func (t *txStore) MarkExpenseApproved(ctx context.Context, id int64, at time.Time) error {
	n, err := t.exec(ctx, "expenses.status",
		"UPDATE expenses SET status = ?, approved_at = ? WHERE id = ? AND status = ?",
		string(engine.ExpenseApproved), at.UTC().Format(timestampLayout), id, string(engine.ExpensePending))
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.NotFoundError{Entity: "pending expense", ID: id}
	}
	return nil
}
