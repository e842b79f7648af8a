/*
handlers.go - HTTP API handlers for the trading engine

PURPOSE:
  Exposes the trading service over REST. Handles request decoding and
  validation, JSON serialization, and delegates everything else to
  trading.Service.

ENDPOINTS:
  Catalog:
    GET    /api/sheet-types                 List sheet types
    POST   /api/sheet-types                 Create sheet type (or remnant)
    PATCH  /api/sheet-types/{id}/weight     Backfill weight per m2
    DELETE /api/sheet-types/{id}            Delete unreferenced sheet type
    POST   /api/services                    Create service type
    POST   /api/customers                   Create customer
    POST   /api/suppliers                   Create supplier

  Inventory:
    GET    /api/batches?sheet_type_id=      List batches (FIFO order)
    POST   /api/batches                     Receive a purchased batch
    POST   /api/batches/prune               Remove empty unreferenced batches
    GET    /api/batches/{id}/movements      Inventory movements of a batch

  Sales:
    POST   /api/sales                       Process a sale
    GET    /api/sales/{id}                  Sale with items and payments
    DELETE /api/sales/{id}                  Compensating delete

  Accounts:
    POST   /api/customers/{id}/payments     Customer payment
    POST   /api/suppliers/{id}/payments     Supplier payment
    POST   /api/adjustments                 Manual balance adjustment
    GET    /api/accounts/{kind}/{id}/balance
    GET    /api/accounts/{kind}/{id}/entries

  Expenses:
    POST   /api/expenses                    Record pending expense
    POST   /api/expenses/{id}/approve       Approve and post

  Reports:
    GET    /api/reports/inventory           Valuation as JSON
    GET    /api/reports/inventory.xlsx      Valuation workbook
    GET    /api/reports/statements/{kind}/{id}.xlsx

ERROR HANDLING:
  Errors are returned in the envelope with a sanitized message:
  - 400: malformed body, failed validation
  - 404: referenced row not found
  - 409: insufficient stock, constraint conflicts
  - 500: anything else (details go to the log only)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/warp/sheet-ledger/engine"
	"github.com/warp/sheet-ledger/trading"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *trading.Service
	Logger  *slog.Logger

	validate *validator.Validate
}

func NewHandler(service *trading.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Service:  service,
		Logger:   logger,
		validate: newValidator(),
	}
}

// newValidator reports fields by their json name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// CATALOG
// =============================================================================

// POST /api/sheet-types
func (h *Handler) CreateSheetType(w http.ResponseWriter, r *http.Request) {
	var req CreateSheetTypeRequest
	if !h.decode(w, r, &req) {
		return
	}

	sheet, err := h.Service.CreateSheetType(r.Context(), trading.SheetTypeRequest{
		Code:         req.Code,
		MetalType:    req.MetalType,
		Grade:        req.Grade,
		Finish:       req.Finish,
		WidthMM:      req.WidthMM,
		LengthMM:     req.LengthMM,
		ThicknessMM:  req.ThicknessMM,
		WeightPerSqm: req.WeightPerSqm,
		IsRemnant:    req.IsRemnant,
		ParentID:     req.ParentID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toSheetTypeDTO(sheet), nil)
}

// GET /api/sheet-types
func (h *Handler) ListSheetTypes(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.Service.ListSheetTypes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]SheetTypeDTO, len(sheets))
	for i, s := range sheets {
		dtos[i] = toSheetTypeDTO(s)
	}
	writeData(w, http.StatusOK, dtos, nil)
}

// PATCH /api/sheet-types/{id}/weight
func (h *Handler) BackfillSheetWeight(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req BackfillWeightRequest
	if !h.decode(w, r, &req) {
		return
	}

	sheet, err := h.Service.BackfillSheetWeight(r.Context(), id, req.WeightPerSqm)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toSheetTypeDTO(sheet), nil)
}

// DELETE /api/sheet-types/{id}
func (h *Handler) DeleteSheetType(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Service.DeleteSheetType(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int64{"deleted": id}, nil)
}

// POST /api/services
func (h *Handler) CreateServiceType(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceTypeRequest
	if !h.decode(w, r, &req) {
		return
	}
	svc, err := h.Service.CreateServiceType(r.Context(), req.Name, req.DefaultCost)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, ServiceTypeDTO{ID: svc.ID, Name: svc.Name, DefaultCost: svc.DefaultCost}, nil)
}

// POST /api/customers
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreatePartyRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.Service.CreateCustomer(r.Context(), req.Name, req.Phone)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, PartyDTO{ID: c.ID, Name: c.Name, Phone: c.Phone}, nil)
}

// POST /api/suppliers
func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req CreatePartyRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.Service.CreateSupplier(r.Context(), req.Name, req.Phone)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, PartyDTO{ID: s.ID, Name: s.Name, Phone: s.Phone}, nil)
}

// =============================================================================
// INVENTORY
// =============================================================================

// GET /api/batches?sheet_type_id=
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	var sheetTypeID int64
	if raw := r.URL.Query().Get("sheet_type_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeError(w, r, engine.Invalid("sheet_type_id", "must be a positive integer"))
			return
		}
		sheetTypeID = id
	}

	batches, err := h.Service.ListBatches(r.Context(), sheetTypeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toBatchDTOs(batches), nil)
}

// POST /api/batches
func (h *Handler) ReceiveBatch(w http.ResponseWriter, r *http.Request) {
	var req ReceiveBatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := h.Service.ReceiveBatch(r.Context(), trading.PurchaseRequest{
		SheetTypeID:  req.SheetTypeID,
		SupplierID:   req.SupplierID,
		BatchNumber:  req.BatchNumber,
		Quantity:     req.Quantity,
		CostPerKg:    req.CostPerKg,
		TotalCost:    req.TotalCost,
		ReceivedDate: mustDate(req.ReceivedDate),
		AmountPaid:   req.AmountPaid,
		Notes:        req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toBatchDTO(receipt.Batch), receipt.Warnings)
}

// POST /api/batches/prune
func (h *Handler) PruneBatches(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.PruneEmptyBatches(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, PruneDTO{Removed: result.Removed}, result.Warnings)
}

// GET /api/batches/{id}/movements
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	movements, err := h.Service.Movements(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = MovementDTO{
			ID:            m.ID,
			BatchID:       m.BatchID,
			Direction:     string(m.Direction),
			Quantity:      m.Quantity,
			ReferenceType: m.ReferenceType,
			ReferenceID:   m.ReferenceID,
			Notes:         m.Notes,
			CreatedAt:     m.CreatedAt,
		}
	}
	writeData(w, http.StatusOK, dtos, nil)
}

// =============================================================================
// SALES
// =============================================================================

// POST /api/sales
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := h.Service.ProcessSale(r.Context(), req.toTrading())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	detail := SaleDetailDTO{
		Sale:     toSaleDTO(receipt.Sale),
		Items:    toSaleItemDTOs(receipt.Items),
		Payments: []PaymentDTO{},
		Entries:  toLedgerEntryDTOs(receipt.Entries),
	}
	if receipt.Payment != nil {
		detail.Payments = append(detail.Payments, toPaymentDTO(*receipt.Payment))
	}
	writeData(w, http.StatusCreated, detail, receipt.Warnings)
}

// GET /api/sales/{id}
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	sale, err := h.Service.GetSale(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	detail := SaleDetailDTO{
		Sale:     toSaleDTO(sale.Sale),
		Items:    toSaleItemDTOs(sale.Items),
		Payments: make([]PaymentDTO, len(sale.Payments)),
	}
	for i, p := range sale.Payments {
		detail.Payments[i] = toPaymentDTO(p)
	}
	writeData(w, http.StatusOK, detail, nil)
}

// DELETE /api/sales/{id}
func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	receipt, err := h.Service.DeleteSale(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, DeletedSaleDTO{
		Sale:            toSaleDTO(receipt.Sale),
		RestoredBatches: receipt.RestoredBatches,
		EntriesRemoved:  receipt.EntriesRemoved,
	}, receipt.Warnings)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// POST /api/customers/{id}/payments
func (h *Handler) RecordCustomerPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req CustomerPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := h.Service.RecordCustomerPayment(r.Context(), trading.CustomerPaymentRequest{
		CustomerID: id,
		SaleID:     req.SaleID,
		Amount:     req.Amount,
		Method:     req.Method,
		Date:       mustDate(req.Date),
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dto := PaymentReceiptDTO{
		Payment: toPaymentDTO(receipt.Payment),
		Entry:   toLedgerEntryDTO(receipt.Entry),
	}
	if receipt.Sale != nil {
		sale := toSaleDTO(*receipt.Sale)
		dto.Sale = &sale
	}
	writeData(w, http.StatusCreated, dto, receipt.Warnings)
}

// POST /api/suppliers/{id}/payments
func (h *Handler) RecordSupplierPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req SupplierPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := h.Service.RecordSupplierPayment(r.Context(), trading.SupplierPaymentRequest{
		SupplierID: id,
		Amount:     req.Amount,
		Date:       mustDate(req.Date),
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toLedgerEntryDTO(receipt.Entry), receipt.Warnings)
}

// POST /api/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := h.Service.AdjustBalance(r.Context(), trading.AdjustmentRequest{
		Account: engine.Account{Kind: engine.AccountKind(req.AccountKind), ID: req.AccountID},
		Amount:  req.Amount,
		Date:    mustDate(req.Date),
		Reason:  req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toLedgerEntryDTO(receipt.Entry), receipt.Warnings)
}

// GET /api/accounts/{kind}/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := h.pathAccount(w, r)
	if !ok {
		return
	}
	balance, err := h.Service.Balance(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, BalanceDTO{
		AccountKind: string(account.Kind),
		AccountID:   account.ID,
		Balance:     balance,
	}, nil)
}

// GET /api/accounts/{kind}/{id}/entries
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	account, ok := h.pathAccount(w, r)
	if !ok {
		return
	}
	entries, err := h.Service.Entries(r.Context(), account)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toLedgerEntryDTOs(entries), nil)
}

// =============================================================================
// EXPENSES
// =============================================================================

// POST /api/expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}

	expense, err := h.Service.CreateExpense(r.Context(), trading.ExpenseRequest{
		Category:    req.Category,
		Amount:      req.Amount,
		ExpenseDate: mustDate(req.ExpenseDate),
		SupplierID:  req.SupplierID,
		Description: req.Description,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, toExpenseDTO(expense), nil)
}

// POST /api/expenses/{id}/approve
func (h *Handler) ApproveExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	receipt, err := h.Service.ApproveExpense(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dto := ApprovedExpenseDTO{Expense: toExpenseDTO(receipt.Expense)}
	if receipt.Entry != nil {
		entry := toLedgerEntryDTO(*receipt.Entry)
		dto.Entry = &entry
	}
	writeData(w, http.StatusOK, dto, receipt.Warnings)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads the JSON body into dst and validates it. It writes the
// error response itself and reports whether the handler should go on.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var ves validator.ValidationErrors
		if errors.As(err, &ves) {
			fields := make(map[string]string, len(ves))
			for _, fe := range ves {
				fields[fieldPath(fe)] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, Response{Error: "validation failed", Fields: fields})
			return false
		}
		h.writeError(w, r, err)
		return false
	}
	return true
}

// fieldPath drops the top-level struct name: "CreateSaleRequest.items[0].kind" -> "items[0].kind".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, engine.Invalid(param, "must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *Handler) pathAccount(w http.ResponseWriter, r *http.Request) (engine.Account, bool) {
	kind := engine.AccountKind(chi.URLParam(r, "kind"))
	if kind != engine.AccountCustomer && kind != engine.AccountSupplier {
		h.writeError(w, r, engine.Invalid("kind", "must be customer or supplier"))
		return engine.Account{}, false
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return engine.Account{}, false
	}
	return engine.Account{Kind: kind, ID: id}, true
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInsufficientStock), errors.Is(err, engine.ErrConstraintViolation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, Response{Error: engine.UserMessage(err)})
}

func writeData(w http.ResponseWriter, status int, data any, warnings []string) {
	writeJSON(w, status, Response{Success: true, Data: data, Warnings: warnings})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
