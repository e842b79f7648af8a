package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

// =============================================================================
// SHEET TYPES
// =============================================================================

const sheetColumns = `id, code, metal_type, grade, finish, width_mm, length_mm, thickness_mm,
	weight_per_sqm, is_remnant, parent_sheet_id, created_at`

func (t *txStore) InsertSheetType(ctx context.Context, s engine.SheetType) (int64, error) {
	return t.insert(ctx, "sheet_types.parent_sheet_id", `
		INSERT INTO sheet_types (code, metal_type, grade, finish, width_mm, length_mm, thickness_mm,
			weight_per_sqm, is_remnant, parent_sheet_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Code, s.MetalType, s.Grade, s.Finish,
		s.WidthMM.String(), s.LengthMM.String(), s.ThicknessMM.String(),
		s.WeightPerSqm.String(), boolInt(s.IsRemnant), nullID(s.ParentID), now(),
	)
}

func (t *txStore) GetSheetType(ctx context.Context, id int64) (engine.SheetType, error) {
	row := t.q.QueryRowContext(ctx, "SELECT "+sheetColumns+" FROM sheet_types WHERE id = ?", id)
	s, err := scanSheetType(row)
	if err != nil {
		return s, notFound(err, "sheet type", id)
	}
	return s, nil
}

func (t *txStore) ListSheetTypes(ctx context.Context) ([]engine.SheetType, error) {
	rows, err := t.q.QueryContext(ctx, "SELECT "+sheetColumns+" FROM sheet_types ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query sheet types: %w", err)
	}
	defer rows.Close()

	var sheets []engine.SheetType
	for rows.Next() {
		s, err := scanSheetType(rows)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, s)
	}
	return sheets, rows.Err()
}

func (t *txStore) SetSheetWeight(ctx context.Context, id int64, weightPerSqm decimal.Decimal) error {
	n, err := t.exec(ctx, "sheet_types.weight_per_sqm",
		"UPDATE sheet_types SET weight_per_sqm = ? WHERE id = ?", weightPerSqm.String(), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.NotFoundError{Entity: "sheet type", ID: id}
	}
	return nil
}

func (t *txStore) DeleteSheetType(ctx context.Context, id int64) error {
	n, err := t.exec(ctx, "sheet_types.referenced", "DELETE FROM sheet_types WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.NotFoundError{Entity: "sheet type", ID: id}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSheetType(row scanner) (engine.SheetType, error) {
	var (
		s                            engine.SheetType
		width, length, thick, weight string
		isRemnant                    int
		parentID                     sql.NullInt64
		createdAt                    string
	)
	if err := row.Scan(&s.ID, &s.Code, &s.MetalType, &s.Grade, &s.Finish,
		&width, &length, &thick, &weight, &isRemnant, &parentID, &createdAt); err != nil {
		return s, err
	}

	var d decimals
	s.WidthMM = d.parse(width)
	s.LengthMM = d.parse(length)
	s.ThicknessMM = d.parse(thick)
	s.WeightPerSqm = d.parse(weight)
	s.IsRemnant = isRemnant == 1
	s.ParentID = idPtr(parentID)
	s.CreatedAt = parseTimestamp(createdAt)
	return s, d.err
}

// =============================================================================
// SERVICE TYPES, CUSTOMERS, SUPPLIERS
// =============================================================================

func (t *txStore) InsertServiceType(ctx context.Context, s engine.ServiceType) (int64, error) {
	return t.insert(ctx, "service_types.name",
		"INSERT INTO service_types (name, default_cost, created_at) VALUES (?, ?, ?)",
		s.Name, s.DefaultCost.String(), now())
}

func (t *txStore) GetServiceType(ctx context.Context, id int64) (engine.ServiceType, error) {
	var (
		s               engine.ServiceType
		cost, createdAt string
	)
	err := t.q.QueryRowContext(ctx,
		"SELECT id, name, default_cost, created_at FROM service_types WHERE id = ?", id,
	).Scan(&s.ID, &s.Name, &cost, &createdAt)
	if err != nil {
		return s, notFound(err, "service type", id)
	}

	var d decimals
	s.DefaultCost = d.parse(cost)
	s.CreatedAt = parseTimestamp(createdAt)
	return s, d.err
}

func (t *txStore) InsertCustomer(ctx context.Context, c engine.Customer) (int64, error) {
	return t.insert(ctx, "customers.name",
		"INSERT INTO customers (name, phone, created_at) VALUES (?, ?, ?)",
		c.Name, c.Phone, now())
}

func (t *txStore) GetCustomer(ctx context.Context, id int64) (engine.Customer, error) {
	var (
		c         engine.Customer
		createdAt string
	)
	err := t.q.QueryRowContext(ctx,
		"SELECT id, name, phone, created_at FROM customers WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Phone, &createdAt)
	if err != nil {
		return c, notFound(err, "customer", id)
	}
	c.CreatedAt = parseTimestamp(createdAt)
	return c, nil
}

func (t *txStore) InsertSupplier(ctx context.Context, s engine.Supplier) (int64, error) {
	return t.insert(ctx, "suppliers.name",
		"INSERT INTO suppliers (name, phone, created_at) VALUES (?, ?, ?)",
		s.Name, s.Phone, now())
}

func (t *txStore) GetSupplier(ctx context.Context, id int64) (engine.Supplier, error) {
	var (
		s         engine.Supplier
		createdAt string
	)
	err := t.q.QueryRowContext(ctx,
		"SELECT id, name, phone, created_at FROM suppliers WHERE id = ?", id,
	).Scan(&s.ID, &s.Name, &s.Phone, &createdAt)
	if err != nil {
		return s, notFound(err, "supplier", id)
	}
	s.CreatedAt = parseTimestamp(createdAt)
	return s, nil
}
