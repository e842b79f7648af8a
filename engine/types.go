/*
Package engine provides the data consistency core for sheet-metal trading.

PURPOSE:
  This package holds the domain types, money rounding, the error taxonomy,
  the ledger append protocol and the FIFO allocator. It knows nothing about
  SQL or HTTP: persistence is reached through the Store/Tx interfaces in
  store.go, and the orchestrators in package trading compose these pieces
  into atomic operations.

KEY CONCEPTS IN THIS FILE (types.go):
  - SheetType: a material definition (metal, grade, finish, dimensions)
  - Batch: a purchased lot of a SheetType with remaining quantity and cost
  - Sale / SaleItem / Payment: an invoice, its lines and money received
  - LedgerEntry: an immutable account entry carrying a running balance
  - InventoryMovement: an additive audit row of stock in/out

DESIGN PRINCIPLES:
  1. Precision: money and quantities are decimal.Decimal, never float64
  2. Base currency: every persisted monetary field is base-currency, 2 places
  3. Immutability: ledger entries and movements are written once

SEE ALSO:
  - allocator.go: FIFO planning over a batch snapshot
  - ledger.go: read-last-balance, add, append
  - store.go: unit of work interfaces
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for business dates.
const DateLayout = "2006-01-02"

// =============================================================================
// CATALOG
// =============================================================================

// SheetType is a distinct material definition.
type SheetType struct {
	ID           int64
	Code         string
	MetalType    string
	Grade        string
	Finish       string
	WidthMM      decimal.Decimal
	LengthMM     decimal.Decimal
	ThicknessMM  decimal.Decimal
	WeightPerSqm decimal.Decimal // kg per square metre; zero when unknown
	IsRemnant    bool
	ParentID     *int64
	CreatedAt    time.Time
}

var mmPerMetreSquared = decimal.NewFromInt(1_000_000)

// AreaSqm returns the sheet area in square metres.
func (s SheetType) AreaSqm() decimal.Decimal {
	return s.WidthMM.Mul(s.LengthMM).Div(mmPerMetreSquared)
}

// UnitWeightKg returns the weight of one sheet, or zero when the
// weight-per-area has not been recorded yet.
func (s SheetType) UnitWeightKg() decimal.Decimal {
	if !s.WeightPerSqm.IsPositive() {
		return decimal.Zero
	}
	return s.AreaSqm().Mul(s.WeightPerSqm)
}

type Customer struct {
	ID        int64
	Name      string
	Phone     string
	CreatedAt time.Time
}

type Supplier struct {
	ID        int64
	Name      string
	Phone     string
	CreatedAt time.Time
}

// ServiceType is a billable non-material line (cutting, bending, delivery).
type ServiceType struct {
	ID          int64
	Name        string
	DefaultCost decimal.Decimal
	CreatedAt   time.Time
}

// =============================================================================
// BATCH - A purchased lot
// =============================================================================

type Batch struct {
	ID                int64
	SheetTypeID       int64
	SupplierID        *int64
	BatchNumber       string
	QuantityOriginal  decimal.Decimal
	QuantityRemaining decimal.Decimal
	CostPerKg         decimal.Decimal
	TotalCost         decimal.Decimal
	ReceivedDate      time.Time
	Notes             string
	CreatedAt         time.Time
}

// IsExhausted reports whether nothing is left to allocate.
func (b Batch) IsExhausted() bool {
	return !b.QuantityRemaining.IsPositive()
}

// Apply returns the batch with delta added to the remaining quantity.
// The result must stay within [0, QuantityOriginal].
func (b Batch) Apply(delta decimal.Decimal) (Batch, error) {
	next := b.QuantityRemaining.Add(delta)
	if next.IsNegative() {
		return b, &InsufficientStockError{
			SheetTypeID: b.SheetTypeID,
			Requested:   delta.Neg(),
			Available:   b.QuantityRemaining,
		}
	}
	if next.GreaterThan(b.QuantityOriginal) {
		return b, &ConstraintError{
			Kind:       ConstraintCheck,
			Constraint: "batches.quantity_remaining",
			Detail:     "remaining quantity would exceed original quantity",
		}
	}
	b.QuantityRemaining = next
	return b, nil
}

// Batches is a snapshot of lots for one sheet type.
type Batches []Batch

// TotalRemaining sums remaining quantity over non-exhausted batches.
func (bs Batches) TotalRemaining() decimal.Decimal {
	total := decimal.Zero
	for _, b := range bs {
		if !b.IsExhausted() {
			total = total.Add(b.QuantityRemaining)
		}
	}
	return total
}

// =============================================================================
// SALE
// =============================================================================

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// PaymentStatusFor derives the status from amount paid against total.
func PaymentStatusFor(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case !paid.IsPositive():
		return PaymentUnpaid
	case paid.LessThan(total):
		return PaymentPartial
	default:
		return PaymentPaid
	}
}

type Sale struct {
	ID            int64
	InvoiceNumber string
	CustomerID    *int64
	SaleDate      time.Time
	CurrencyCode  string
	FxRate        decimal.Decimal
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	AmountPaid    decimal.Decimal
	PaymentStatus PaymentStatus
	PaymentMethod string
	Notes         string
	CreatedAt     time.Time
}

// Outstanding is what the customer still owes on this invoice.
func (s Sale) Outstanding() decimal.Decimal {
	rest := s.Total.Sub(s.AmountPaid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

type ItemKind string

const (
	ItemMaterial ItemKind = "material"
	ItemService  ItemKind = "service"
)

// SaleItem is one persisted invoice row. A material request line drawn
// from several batches becomes several SaleItems.
type SaleItem struct {
	ID            int64
	SaleID        int64
	Kind          ItemKind
	SheetTypeID   *int64
	BatchID       *int64
	ServiceTypeID *int64
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	TotalPrice    decimal.Decimal
	WeightKg      decimal.Decimal
	UnitCOGS      decimal.Decimal
	TotalCOGS     decimal.Decimal
	Description   string
}

type Payment struct {
	ID          int64
	SaleID      *int64
	CustomerID  *int64
	Amount      decimal.Decimal
	Method      string
	PaymentDate time.Time
	Notes       string
	CreatedAt   time.Time
}

// =============================================================================
// INVENTORY MOVEMENT - Additive audit of stock in/out
// =============================================================================

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Reference types shared by movements and ledger entries.
const (
	RefSale            = "sale"
	RefPayment         = "payment"
	RefPurchase        = "purchase"
	RefSupplierPayment = "supplier_payment"
	RefExpense         = "expense"
	RefAdjustment      = "adjustment"
)

type InventoryMovement struct {
	ID            int64
	SheetTypeID   int64
	BatchID       int64
	Direction     Direction
	Quantity      decimal.Decimal
	ReferenceType string
	ReferenceID   int64
	Notes         string
	CreatedAt     time.Time
}

// =============================================================================
// EXPENSE
// =============================================================================

type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "pending"
	ExpenseApproved ExpenseStatus = "approved"
)

type Expense struct {
	ID          int64
	Category    string
	Amount      decimal.Decimal
	ExpenseDate time.Time
	SupplierID  *int64
	Status      ExpenseStatus
	Description string
	ApprovedAt  *time.Time
	CreatedAt   time.Time
}
