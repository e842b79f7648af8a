/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP surface, kept apart from the engine types so the
  wire contract can evolve on its own.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request structs carry `validate` tags checked by go-playground/validator
  before anything reaches the trading service: presence, formats and enum
  values. Business rules (positive amounts, stock, dates not in the
  future) stay in the service so every caller gets them.

MONEY:
  Decimals travel as JSON strings ("12.50"); numbers are accepted on input.
  Dates are "YYYY-MM-DD".

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
	"github.com/warp/sheet-ledger/report"
	"github.com/warp/sheet-ledger/trading"
)

const dateLayout = "2006-01-02"

// =============================================================================
// ENVELOPE
// =============================================================================

// Response is the envelope of every JSON reply.
type Response struct {
	Success  bool              `json:"success"`
	Data     any               `json:"data,omitempty"`
	Error    string            `json:"error,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// =============================================================================
// CATALOG
// =============================================================================

type CreateSheetTypeRequest struct {
	Code         string          `json:"code" validate:"required,max=64"`
	MetalType    string          `json:"metal_type" validate:"required"`
	Grade        string          `json:"grade"`
	Finish       string          `json:"finish"`
	WidthMM      decimal.Decimal `json:"width_mm"`
	LengthMM     decimal.Decimal `json:"length_mm"`
	ThicknessMM  decimal.Decimal `json:"thickness_mm"`
	WeightPerSqm decimal.Decimal `json:"weight_per_sqm"`
	IsRemnant    bool            `json:"is_remnant"`
	ParentID     *int64          `json:"parent_id" validate:"omitempty,gt=0"`
}

type BackfillWeightRequest struct {
	WeightPerSqm decimal.Decimal `json:"weight_per_sqm"`
}

type SheetTypeDTO struct {
	ID           int64           `json:"id"`
	Code         string          `json:"code"`
	MetalType    string          `json:"metal_type"`
	Grade        string          `json:"grade,omitempty"`
	Finish       string          `json:"finish,omitempty"`
	WidthMM      decimal.Decimal `json:"width_mm"`
	LengthMM     decimal.Decimal `json:"length_mm"`
	ThicknessMM  decimal.Decimal `json:"thickness_mm"`
	WeightPerSqm decimal.Decimal `json:"weight_per_sqm"`
	UnitWeightKg decimal.Decimal `json:"unit_weight_kg"`
	IsRemnant    bool            `json:"is_remnant"`
	ParentID     *int64          `json:"parent_id,omitempty"`
}

func toSheetTypeDTO(s engine.SheetType) SheetTypeDTO {
	return SheetTypeDTO{
		ID:           s.ID,
		Code:         s.Code,
		MetalType:    s.MetalType,
		Grade:        s.Grade,
		Finish:       s.Finish,
		WidthMM:      s.WidthMM,
		LengthMM:     s.LengthMM,
		ThicknessMM:  s.ThicknessMM,
		WeightPerSqm: s.WeightPerSqm,
		UnitWeightKg: engine.RoundWeight(s.UnitWeightKg()),
		IsRemnant:    s.IsRemnant,
		ParentID:     s.ParentID,
	}
}

type CreateServiceTypeRequest struct {
	Name        string          `json:"name" validate:"required"`
	DefaultCost decimal.Decimal `json:"default_cost"`
}

type ServiceTypeDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	DefaultCost decimal.Decimal `json:"default_cost"`
}

// CreatePartyRequest creates a customer or a supplier.
type CreatePartyRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type PartyDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// =============================================================================
// BATCHES
// =============================================================================

type ReceiveBatchRequest struct {
	SheetTypeID  int64           `json:"sheet_type_id" validate:"required,gt=0"`
	SupplierID   *int64          `json:"supplier_id" validate:"omitempty,gt=0"`
	BatchNumber  string          `json:"batch_number" validate:"omitempty,max=64"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostPerKg    decimal.Decimal `json:"cost_per_kg"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	ReceivedDate string          `json:"received_date" validate:"required,datetime=2006-01-02"`
	AmountPaid   decimal.Decimal `json:"amount_paid"`
	Notes        string          `json:"notes"`
}

type BatchDTO struct {
	ID                int64           `json:"id"`
	SheetTypeID       int64           `json:"sheet_type_id"`
	SupplierID        *int64          `json:"supplier_id,omitempty"`
	BatchNumber       string          `json:"batch_number"`
	QuantityOriginal  decimal.Decimal `json:"quantity_original"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	CostPerKg         decimal.Decimal `json:"cost_per_kg"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	ReceivedDate      string          `json:"received_date"`
	Notes             string          `json:"notes,omitempty"`
}

func toBatchDTO(b engine.Batch) BatchDTO {
	return BatchDTO{
		ID:                b.ID,
		SheetTypeID:       b.SheetTypeID,
		SupplierID:        b.SupplierID,
		BatchNumber:       b.BatchNumber,
		QuantityOriginal:  b.QuantityOriginal,
		QuantityRemaining: b.QuantityRemaining,
		CostPerKg:         b.CostPerKg,
		TotalCost:         b.TotalCost,
		ReceivedDate:      b.ReceivedDate.Format(dateLayout),
		Notes:             b.Notes,
	}
}

func toBatchDTOs(bs []engine.Batch) []BatchDTO {
	out := make([]BatchDTO, len(bs))
	for i, b := range bs {
		out[i] = toBatchDTO(b)
	}
	return out
}

type MovementDTO struct {
	ID            int64           `json:"id"`
	BatchID       int64           `json:"batch_id"`
	Direction     string          `json:"direction"`
	Quantity      decimal.Decimal `json:"quantity"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   int64           `json:"reference_id"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type PruneDTO struct {
	Removed int64 `json:"removed"`
}

// =============================================================================
// SALES
// =============================================================================

type SaleLineRequest struct {
	Kind           string           `json:"kind" validate:"required,oneof=material service"`
	SheetTypeID    int64            `json:"sheet_type_id" validate:"required_if=Kind material"`
	CustomWeightKg *decimal.Decimal `json:"custom_weight_kg"`
	ServiceTypeID  int64            `json:"service_type_id" validate:"required_if=Kind service"`
	ServiceCost    *decimal.Decimal `json:"service_cost"`
	Quantity       decimal.Decimal  `json:"quantity"`
	UnitPrice      decimal.Decimal  `json:"unit_price"`
	Description    string           `json:"description"`
}

type CreateSaleRequest struct {
	InvoiceNumber string            `json:"invoice_number" validate:"required,max=64"`
	CustomerID    *int64            `json:"customer_id" validate:"omitempty,gt=0"`
	SaleDate      string            `json:"sale_date" validate:"required,datetime=2006-01-02"`
	CurrencyCode  string            `json:"currency_code" validate:"omitempty,len=3,alpha"`
	Items         []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
	Discount      decimal.Decimal   `json:"discount"`
	AmountPaid    decimal.Decimal   `json:"amount_paid"`
	PaymentMethod string            `json:"payment_method" validate:"omitempty,max=32"`
	Notes         string            `json:"notes"`
}

func (r CreateSaleRequest) toTrading() trading.SaleRequest {
	req := trading.SaleRequest{
		InvoiceNumber: r.InvoiceNumber,
		CustomerID:    r.CustomerID,
		SaleDate:      mustDate(r.SaleDate),
		CurrencyCode:  r.CurrencyCode,
		Discount:      r.Discount,
		AmountPaid:    r.AmountPaid,
		PaymentMethod: r.PaymentMethod,
		Notes:         r.Notes,
		Items:         make([]trading.LineItem, len(r.Items)),
	}
	for i, l := range r.Items {
		req.Items[i] = trading.LineItem{
			Kind:           engine.ItemKind(l.Kind),
			SheetTypeID:    l.SheetTypeID,
			CustomWeightKg: l.CustomWeightKg,
			ServiceTypeID:  l.ServiceTypeID,
			ServiceCost:    l.ServiceCost,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			Description:    l.Description,
		}
	}
	return req
}

type SaleDTO struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	SaleDate      string          `json:"sale_date"`
	CurrencyCode  string          `json:"currency_code"`
	FxRate        decimal.Decimal `json:"fx_rate"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	PaymentStatus string          `json:"payment_status"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

func toSaleDTO(s engine.Sale) SaleDTO {
	return SaleDTO{
		ID:            s.ID,
		InvoiceNumber: s.InvoiceNumber,
		CustomerID:    s.CustomerID,
		SaleDate:      s.SaleDate.Format(dateLayout),
		CurrencyCode:  s.CurrencyCode,
		FxRate:        s.FxRate,
		Subtotal:      s.Subtotal,
		Discount:      s.Discount,
		Tax:           s.Tax,
		Total:         s.Total,
		AmountPaid:    s.AmountPaid,
		Outstanding:   s.Outstanding(),
		PaymentStatus: string(s.PaymentStatus),
		PaymentMethod: s.PaymentMethod,
		Notes:         s.Notes,
	}
}

type SaleItemDTO struct {
	ID            int64           `json:"id"`
	Kind          string          `json:"kind"`
	SheetTypeID   *int64          `json:"sheet_type_id,omitempty"`
	BatchID       *int64          `json:"batch_id,omitempty"`
	ServiceTypeID *int64          `json:"service_type_id,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	WeightKg      decimal.Decimal `json:"weight_kg"`
	UnitCOGS      decimal.Decimal `json:"unit_cogs"`
	TotalCOGS     decimal.Decimal `json:"total_cogs"`
	Description   string          `json:"description,omitempty"`
}

func toSaleItemDTOs(items []engine.SaleItem) []SaleItemDTO {
	out := make([]SaleItemDTO, len(items))
	for i, it := range items {
		out[i] = SaleItemDTO{
			ID:            it.ID,
			Kind:          string(it.Kind),
			SheetTypeID:   it.SheetTypeID,
			BatchID:       it.BatchID,
			ServiceTypeID: it.ServiceTypeID,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			TotalPrice:    it.TotalPrice,
			WeightKg:      it.WeightKg,
			UnitCOGS:      it.UnitCOGS,
			TotalCOGS:     it.TotalCOGS,
			Description:   it.Description,
		}
	}
	return out
}

type PaymentDTO struct {
	ID          int64           `json:"id"`
	SaleID      *int64          `json:"sale_id,omitempty"`
	CustomerID  *int64          `json:"customer_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method,omitempty"`
	PaymentDate string          `json:"payment_date"`
	Notes       string          `json:"notes,omitempty"`
}

func toPaymentDTO(p engine.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          p.ID,
		SaleID:      p.SaleID,
		CustomerID:  p.CustomerID,
		Amount:      p.Amount,
		Method:      p.Method,
		PaymentDate: p.PaymentDate.Format(dateLayout),
		Notes:       p.Notes,
	}
}

// SaleDetailDTO is returned by both create and get.
type SaleDetailDTO struct {
	Sale     SaleDTO          `json:"sale"`
	Items    []SaleItemDTO    `json:"items"`
	Payments []PaymentDTO     `json:"payments"`
	Entries  []LedgerEntryDTO `json:"ledger_entries,omitempty"`
}

type DeletedSaleDTO struct {
	Sale            SaleDTO                   `json:"sale"`
	RestoredBatches map[int64]decimal.Decimal `json:"restored_batches"`
	EntriesRemoved  int64                     `json:"entries_removed"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type CustomerPaymentRequest struct {
	SaleID *int64          `json:"sale_id" validate:"omitempty,gt=0"`
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"omitempty,max=32"`
	Date   string          `json:"date" validate:"required,datetime=2006-01-02"`
	Notes  string          `json:"notes"`
}

type SupplierPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date" validate:"required,datetime=2006-01-02"`
	Notes  string          `json:"notes"`
}

type AdjustmentRequest struct {
	AccountKind string          `json:"account_kind" validate:"required,oneof=customer supplier"`
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Reason      string          `json:"reason" validate:"required"`
}

type LedgerEntryDTO struct {
	ID            int64           `json:"id"`
	AccountKind   string          `json:"account_kind"`
	AccountID     int64           `json:"account_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   int64           `json:"reference_id,omitempty"`
	EntryDate     string          `json:"entry_date"`
	Notes         string          `json:"notes,omitempty"`
}

func toLedgerEntryDTO(e engine.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:            e.ID,
		AccountKind:   string(e.Account.Kind),
		AccountID:     e.Account.ID,
		Type:          string(e.Type),
		Amount:        e.Amount,
		BalanceAfter:  e.BalanceAfter,
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		EntryDate:     e.EntryDate.Format(dateLayout),
		Notes:         e.Notes,
	}
}

func toLedgerEntryDTOs(entries []engine.LedgerEntry) []LedgerEntryDTO {
	out := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toLedgerEntryDTO(e)
	}
	return out
}

type BalanceDTO struct {
	AccountKind string          `json:"account_kind"`
	AccountID   int64           `json:"account_id"`
	Balance     decimal.Decimal `json:"balance"`
}

type PaymentReceiptDTO struct {
	Payment PaymentDTO     `json:"payment"`
	Sale    *SaleDTO       `json:"sale,omitempty"`
	Entry   LedgerEntryDTO `json:"ledger_entry"`
}

// =============================================================================
// EXPENSES
// =============================================================================

type CreateExpenseRequest struct {
	Category    string          `json:"category" validate:"required,max=64"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate string          `json:"expense_date" validate:"required,datetime=2006-01-02"`
	SupplierID  *int64          `json:"supplier_id" validate:"omitempty,gt=0"`
	Description string          `json:"description"`
}

type ExpenseDTO struct {
	ID          int64           `json:"id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	ExpenseDate string          `json:"expense_date"`
	SupplierID  *int64          `json:"supplier_id,omitempty"`
	Status      string          `json:"status"`
	Description string          `json:"description,omitempty"`
	ApprovedAt  *time.Time      `json:"approved_at,omitempty"`
}

func toExpenseDTO(e engine.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:          e.ID,
		Category:    e.Category,
		Amount:      e.Amount,
		ExpenseDate: e.ExpenseDate.Format(dateLayout),
		SupplierID:  e.SupplierID,
		Status:      string(e.Status),
		Description: e.Description,
		ApprovedAt:  e.ApprovedAt,
	}
}

type ApprovedExpenseDTO struct {
	Expense ExpenseDTO      `json:"expense"`
	Entry   *LedgerEntryDTO `json:"ledger_entry,omitempty"`
}

// =============================================================================
// REPORTS
// =============================================================================

type ValuationRowDTO struct {
	SheetTypeID int64           `json:"sheet_type_id"`
	Code        string          `json:"code"`
	Batches     int             `json:"batches"`
	Remaining   decimal.Decimal `json:"remaining"`
	WeightKg    decimal.Decimal `json:"weight_kg"`
	ValueAtCost decimal.Decimal `json:"value_at_cost"`
}

type ValuationDTO struct {
	Rows       []ValuationRowDTO `json:"rows"`
	TotalValue decimal.Decimal   `json:"total_value"`
}

func toValuationDTO(v report.Valuation) ValuationDTO {
	out := ValuationDTO{Rows: make([]ValuationRowDTO, len(v.Rows)), TotalValue: v.TotalValue}
	for i, r := range v.Rows {
		out.Rows[i] = ValuationRowDTO{
			SheetTypeID: r.SheetType.ID,
			Code:        r.SheetType.Code,
			Batches:     r.Batches,
			Remaining:   r.Remaining,
			WeightKg:    r.WeightKg,
			ValueAtCost: r.ValueAtCost,
		}
	}
	return out
}

// mustDate parses a date that already passed the datetime validator.
func mustDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}
