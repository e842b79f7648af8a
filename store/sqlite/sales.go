package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

// =============================================================================
// SALES
// =============================================================================

func (t *txStore) InsertSale(ctx context.Context, s engine.Sale) (int64, error) {
	return t.insert(ctx, "sales.customer_id", `
		INSERT INTO sales (invoice_number, customer_id, sale_date, currency_code, fx_rate,
			subtotal, discount, tax, total, amount_paid, payment_status, payment_method, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.InvoiceNumber, nullID(s.CustomerID), formatDate(s.SaleDate), s.CurrencyCode, s.FxRate.String(),
		s.Subtotal.String(), s.Discount.String(), s.Tax.String(), s.Total.String(),
		s.AmountPaid.String(), string(s.PaymentStatus), s.PaymentMethod, s.Notes, now(),
	)
}

func (t *txStore) GetSale(ctx context.Context, id int64) (engine.Sale, error) {
	var (
		s                              engine.Sale
		customerID                     sql.NullInt64
		saleDate, fxRate               string
		subtotal, discount, tax, total string
		amountPaid, status, createdAt  string
	)
	err := t.q.QueryRowContext(ctx, `
		SELECT id, invoice_number, customer_id, sale_date, currency_code, fx_rate,
			subtotal, discount, tax, total, amount_paid, payment_status, payment_method, notes, created_at
		FROM sales WHERE id = ?`, id,
	).Scan(&s.ID, &s.InvoiceNumber, &customerID, &saleDate, &s.CurrencyCode, &fxRate,
		&subtotal, &discount, &tax, &total, &amountPaid, &status, &s.PaymentMethod, &s.Notes, &createdAt)
	if err != nil {
		return s, notFound(err, "sale", id)
	}

	var d decimals
	s.CustomerID = idPtr(customerID)
	s.SaleDate = parseDate(saleDate)
	s.FxRate = d.parse(fxRate)
	s.Subtotal = d.parse(subtotal)
	s.Discount = d.parse(discount)
	s.Tax = d.parse(tax)
	s.Total = d.parse(total)
	s.AmountPaid = d.parse(amountPaid)
	s.PaymentStatus = engine.PaymentStatus(status)
	s.CreatedAt = parseTimestamp(createdAt)
	return s, d.err
}

func (t *txStore) SetSalePayment(ctx context.Context, id int64, amountPaid decimal.Decimal, status engine.PaymentStatus) error {
	n, err := t.exec(ctx, "sales.payment_status",
		"UPDATE sales SET amount_paid = ?, payment_status = ? WHERE id = ?",
		amountPaid.String(), string(status), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.NotFoundError{Entity: "sale", ID: id}
	}
	return nil
}

func (t *txStore) DeleteSale(ctx context.Context, id int64) error {
	n, err := t.exec(ctx, "sales.referenced", "DELETE FROM sales WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.NotFoundError{Entity: "sale", ID: id}
	}
	return nil
}

// =============================================================================
// SALE ITEMS
// =============================================================================

func (t *txStore) InsertSaleItem(ctx context.Context, item engine.SaleItem) (int64, error) {
	return t.insert(ctx, "sale_items.sheet_type_id", `
		INSERT INTO sale_items (sale_id, item_type, sheet_type_id, batch_id, service_type_id,
			quantity, unit_price, total_price, weight_kg, unit_cogs, total_cogs, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.SaleID, string(item.Kind), nullID(item.SheetTypeID), nullID(item.BatchID), nullID(item.ServiceTypeID),
		item.Quantity.String(), item.UnitPrice.String(), item.TotalPrice.String(),
		item.WeightKg.String(), item.UnitCOGS.String(), item.TotalCOGS.String(), item.Description,
	)
}

func (t *txStore) ListSaleItems(ctx context.Context, saleID int64) ([]engine.SaleItem, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, sale_id, item_type, sheet_type_id, batch_id, service_type_id,
			quantity, unit_price, total_price, weight_kg, unit_cogs, total_cogs, description
		FROM sale_items WHERE sale_id = ? ORDER BY id ASC`, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sale items: %w", err)
	}
	defer rows.Close()

	var items []engine.SaleItem
	for rows.Next() {
		var (
			item                        engine.SaleItem
			kind                        string
			sheetID, batchID, serviceID sql.NullInt64
			qty, unitPrice, totalPrice  string
			weight, unitCOGS, totalCOGS string
		)
		if err := rows.Scan(&item.ID, &item.SaleID, &kind, &sheetID, &batchID, &serviceID,
			&qty, &unitPrice, &totalPrice, &weight, &unitCOGS, &totalCOGS, &item.Description); err != nil {
			return nil, err
		}

		var d decimals
		item.Kind = engine.ItemKind(kind)
		item.SheetTypeID = idPtr(sheetID)
		item.BatchID = idPtr(batchID)
		item.ServiceTypeID = idPtr(serviceID)
		item.Quantity = d.parse(qty)
		item.UnitPrice = d.parse(unitPrice)
		item.TotalPrice = d.parse(totalPrice)
		item.WeightKg = d.parse(weight)
		item.UnitCOGS = d.parse(unitCOGS)
		item.TotalCOGS = d.parse(totalCOGS)
		if d.err != nil {
			return nil, d.err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *txStore) DeleteSaleItems(ctx context.Context, saleID int64) (int64, error) {
	return t.exec(ctx, "sale_items", "DELETE FROM sale_items WHERE sale_id = ?", saleID)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (t *txStore) InsertPayment(ctx context.Context, p engine.Payment) (int64, error) {
	return t.insert(ctx, "payments.customer_id", `
		INSERT INTO payments (sale_id, customer_id, amount, method, payment_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullID(p.SaleID), nullID(p.CustomerID), p.Amount.String(), p.Method,
		formatDate(p.PaymentDate), p.Notes, now(),
	)
}

func (t *txStore) ListSalePayments(ctx context.Context, saleID int64) ([]engine.Payment, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, sale_id, customer_id, amount, method, payment_date, notes, created_at
		FROM payments WHERE sale_id = ? ORDER BY id ASC`, saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []engine.Payment
	for rows.Next() {
		var (
			p                       engine.Payment
			saleRef, customerID     sql.NullInt64
			amount, date, createdAt string
		)
		if err := rows.Scan(&p.ID, &saleRef, &customerID, &amount, &p.Method, &date, &p.Notes, &createdAt); err != nil {
			return nil, err
		}

		var d decimals
		p.SaleID = idPtr(saleRef)
		p.CustomerID = idPtr(customerID)
		p.Amount = d.parse(amount)
		p.PaymentDate = parseDate(date)
		p.CreatedAt = parseTimestamp(createdAt)
		if d.err != nil {
			return nil, d.err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (t *txStore) DeleteSalePayments(ctx context.Context, saleID int64) (int64, error) {
	return t.exec(ctx, "payments", "DELETE FROM payments WHERE sale_id = ?", saleID)
}
