package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

// =============================================================================
// BATCHES
// =============================================================================

const batchColumns = `id, sheet_type_id, supplier_id, batch_number, quantity_original,
	quantity_remaining, cost_per_kg, total_cost, received_date, notes, created_at`

func (t *txStore) InsertBatch(ctx context.Context, b engine.Batch) (int64, error) {
	return t.insert(ctx, "batches.sheet_type_id", `
		INSERT INTO batches (sheet_type_id, supplier_id, batch_number, quantity_original,
			quantity_remaining, cost_per_kg, total_cost, received_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.SheetTypeID, nullID(b.SupplierID), b.BatchNumber,
		b.QuantityOriginal.String(), b.QuantityRemaining.String(),
		b.CostPerKg.String(), b.TotalCost.String(),
		formatDate(b.ReceivedDate), b.Notes, now(),
	)
}

func (t *txStore) GetBatch(ctx context.Context, id int64) (engine.Batch, error) {
	row := t.q.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM batches WHERE id = ?", id)
	b, err := scanBatch(row)
	if err != nil {
		return b, notFound(err, "batch", id)
	}
	return b, nil
}

// ListBatches returns the FIFO-ordered lots of one sheet type. received_date
// is stored as YYYY-MM-DD so text order is date order.
func (t *txStore) ListBatches(ctx context.Context, sheetTypeID int64) (engine.Batches, error) {
	return t.queryBatches(ctx,
		"SELECT "+batchColumns+" FROM batches WHERE sheet_type_id = ? ORDER BY received_date ASC, id ASC",
		sheetTypeID)
}

func (t *txStore) ListAllBatches(ctx context.Context) (engine.Batches, error) {
	return t.queryBatches(ctx,
		"SELECT "+batchColumns+" FROM batches ORDER BY sheet_type_id ASC, received_date ASC, id ASC")
}

func (t *txStore) queryBatches(ctx context.Context, query string, args ...any) (engine.Batches, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var batches engine.Batches
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (t *txStore) SetBatchRemaining(ctx context.Context, id int64, remaining decimal.Decimal) error {
	n, err := t.exec(ctx, "batches.quantity_remaining",
		"UPDATE batches SET quantity_remaining = ? WHERE id = ?", remaining.String(), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.NotFoundError{Entity: "batch", ID: id}
	}
	return nil
}

func (t *txStore) PruneEmptyBatches(ctx context.Context) (int64, error) {
	return t.exec(ctx, "batches.referenced", `
		DELETE FROM batches
		WHERE CAST(quantity_remaining AS REAL) <= 0
		  AND NOT EXISTS (SELECT 1 FROM sale_items si WHERE si.batch_id = batches.id)`)
}

func scanBatch(row scanner) (engine.Batch, error) {
	var (
		b                       engine.Batch
		supplierID              sql.NullInt64
		original, remaining     string
		costPerKg, totalCost    string
		receivedDate, createdAt string
	)
	if err := row.Scan(&b.ID, &b.SheetTypeID, &supplierID, &b.BatchNumber,
		&original, &remaining, &costPerKg, &totalCost, &receivedDate, &b.Notes, &createdAt); err != nil {
		return b, err
	}

	var d decimals
	b.SupplierID = idPtr(supplierID)
	b.QuantityOriginal = d.parse(original)
	b.QuantityRemaining = d.parse(remaining)
	b.CostPerKg = d.parse(costPerKg)
	b.TotalCost = d.parse(totalCost)
	b.ReceivedDate = parseDate(receivedDate)
	b.CreatedAt = parseTimestamp(createdAt)
	return b, d.err
}

// =============================================================================
// INVENTORY MOVEMENTS
// =============================================================================

func (t *txStore) InsertMovement(ctx context.Context, m engine.InventoryMovement) (int64, error) {
	return t.insert(ctx, "inventory_movements", `
		INSERT INTO inventory_movements (sheet_type_id, batch_id, direction, quantity,
			reference_type, reference_id, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SheetTypeID, m.BatchID, string(m.Direction), m.Quantity.String(),
		m.ReferenceType, m.ReferenceID, m.Notes, now(),
	)
}

func (t *txStore) ListMovements(ctx context.Context, batchID int64) ([]engine.InventoryMovement, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, sheet_type_id, batch_id, direction, quantity, reference_type, reference_id, notes, created_at
		FROM inventory_movements
		WHERE batch_id = ?
		ORDER BY id ASC`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var movements []engine.InventoryMovement
	for rows.Next() {
		var (
			m                   engine.InventoryMovement
			direction, quantity string
			createdAt           string
		)
		if err := rows.Scan(&m.ID, &m.SheetTypeID, &m.BatchID, &direction, &quantity,
			&m.ReferenceType, &m.ReferenceID, &m.Notes, &createdAt); err != nil {
			return nil, err
		}
		var d decimals
		m.Direction = engine.Direction(direction)
		m.Quantity = d.parse(quantity)
		m.CreatedAt = parseTimestamp(createdAt)
		if d.err != nil {
			return nil, d.err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (t *txStore) DeleteMovements(ctx context.Context, referenceType string, referenceID int64) (int64, error) {
	return t.exec(ctx, "inventory_movements",
		"DELETE FROM inventory_movements WHERE reference_type = ? AND reference_id = ?",
		referenceType, referenceID)
}
