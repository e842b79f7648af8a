/*
handlers_test.go - HTTP surface tests

Tests for:
- Envelope and status mapping of the error taxonomy
- Request validation with field paths
- Sale lifecycle through the router
- /metrics and xlsx downloads
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/sheet-ledger/api"
	"github.com/warp/sheet-ledger/engine"
	"github.com/warp/sheet-ledger/metrics"
	"github.com/warp/sheet-ledger/store/sqlite"
	"github.com/warp/sheet-ledger/trading"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type envelope struct {
	Success  bool              `json:"success"`
	Data     json.RawMessage   `json:"data"`
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields"`
	Warnings []string          `json:"warnings"`
}

type testServer struct {
	t       *testing.T
	router  *chi.Mux
	store   *sqlite.Store
	service *trading.Service
}

func newTestServer(t *testing.T) *testServer {
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	currencies := engine.StaticCurrencies{
		Base: engine.Currency{Code: "USD", ExchangeRate: decimal.NewFromInt(1), IsBase: true},
	}
	service := trading.New(store, currencies,
		trading.WithFlusher(store),
		trading.WithLogger(logger),
		trading.WithMetrics(m),
		trading.WithClock(func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }),
	)
	router := api.NewRouter(api.NewHandler(service, logger), api.RouterOptions{Metrics: m})

	return &testServer{t: t, router: router, store: store, service: service}
}

func (s *testServer) do(method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

// create posts body and decodes the created object's id.
func (s *testServer) create(path string, body any) int64 {
	rec, env := s.do(http.MethodPost, path, body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		ID int64 `json:"id"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &out))
	return out.ID
}

func (s *testServer) seedStock(qty string) (sheetID, batchID int64) {
	sheetID = s.create("/api/sheet-types", map[string]any{
		"code":           "SS-304-1.5",
		"metal_type":     "stainless",
		"width_mm":       "1000",
		"length_mm":      "2000",
		"thickness_mm":   "1.5",
		"weight_per_sqm": "10",
	})
	batchID = s.create("/api/batches", map[string]any{
		"sheet_type_id": sheetID,
		"quantity":      qty,
		"cost_per_kg":   "5",
		"received_date": "2024-05-01",
	})
	return sheetID, batchID
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

// =============================================================================
// TESTS
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestSaleLifecycle(t *testing.T) {
	// GIVEN: 10 units in stock and a customer
	// WHEN: Selling 3, reading it back, then deleting it
	// THEN: Balance follows the sale and stock is restored on delete

	s := newTestServer(t)
	sheetID, batchID := s.seedStock("10")
	customerID := s.create("/api/customers", map[string]any{"name": "Acme"})

	rec, env := s.do(http.MethodPost, "/api/sales", map[string]any{
		"invoice_number": "INV-1",
		"customer_id":    customerID,
		"sale_date":      "2024-06-01",
		"items": []map[string]any{
			{"kind": "material", "sheet_type_id": sheetID, "quantity": "3", "unit_price": "150"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created api.SaleDetailDTO
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.True(t, decimal.RequireFromString("450").Equal(created.Sale.Total))
	assert.Equal(t, "unpaid", created.Sale.PaymentStatus)
	require.Len(t, created.Items, 1)
	assert.Equal(t, batchID, *created.Items[0].BatchID)
	assert.True(t, decimal.RequireFromString("300").Equal(created.Items[0].TotalCOGS))
	require.Len(t, created.Entries, 1)

	rec, env = s.do(http.MethodGet, "/api/accounts/customer/"+itoa(customerID)+"/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance api.BalanceDTO
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	assert.True(t, decimal.RequireFromString("450").Equal(balance.Balance))

	rec, _ = s.do(http.MethodGet, "/api/sales/"+itoa(created.Sale.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(http.MethodDelete, "/api/sales/"+itoa(created.Sale.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var deleted api.DeletedSaleDTO
	require.NoError(t, json.Unmarshal(env.Data, &deleted))
	assert.Equal(t, int64(1), deleted.EntriesRemoved)

	rec, env = s.do(http.MethodGet, "/api/batches?sheet_type_id="+itoa(sheetID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var batches []api.BatchDTO
	require.NoError(t, json.Unmarshal(env.Data, &batches))
	require.Len(t, batches, 1)
	assert.True(t, decimal.RequireFromString("10").Equal(batches[0].QuantityRemaining))

	rec, _ = s.do(http.MethodGet, "/api/sales/"+itoa(created.Sale.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSale_InsufficientStock(t *testing.T) {
	s := newTestServer(t)
	sheetID, _ := s.seedStock("2")

	rec, env := s.do(http.MethodPost, "/api/sales", map[string]any{
		"invoice_number": "INV-1",
		"sale_date":      "2024-06-01",
		"items": []map[string]any{
			{"kind": "material", "sheet_type_id": sheetID, "quantity": "5", "unit_price": "10"},
		},
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Insufficient stock: requested 5, available 2", env.Error)
}

func TestCreateSale_ValidationFields(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodPost, "/api/sales", map[string]any{
		"sale_date": "01/06/2024",
		"items": []map[string]any{
			{"kind": "scrap", "quantity": "1", "unit_price": "1"},
		},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation failed", env.Error)
	assert.Equal(t, "required", env.Fields["invoice_number"])
	assert.Equal(t, "datetime", env.Fields["sale_date"])
	assert.Equal(t, "oneof", env.Fields["items[0].kind"])
}

func TestCreateSale_ServiceRules(t *testing.T) {
	// Body passes the validator; the service rejects the future date.
	s := newTestServer(t)
	sheetID, _ := s.seedStock("2")

	rec, env := s.do(http.MethodPost, "/api/sales", map[string]any{
		"invoice_number": "INV-1",
		"sale_date":      "2030-01-01",
		"items": []map[string]any{
			{"kind": "material", "sheet_type_id": sheetID, "quantity": "1", "unit_price": "10"},
		},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, "sale_date")
}

func TestDecode_RejectsUnknownFieldsAndBadJSON(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodPost, "/api/customers", `{"name":"Acme","email":"a@b.c"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)

	rec, _ = s.do(http.MethodPost, "/api/customers", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateSheetCode_Conflict(t *testing.T) {
	s := newTestServer(t)
	s.seedStock("1")

	rec, env := s.do(http.MethodPost, "/api/sheet-types", map[string]any{
		"code":         "SS-304-1.5",
		"metal_type":   "stainless",
		"width_mm":     "1000",
		"length_mm":    "2000",
		"thickness_mm": "1.5",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "a sheet type with this code already exists", env.Error)
}

func TestPathParams(t *testing.T) {
	s := newTestServer(t)

	rec, _ := s.do(http.MethodGet, "/api/sales/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/accounts/vendor/1/balance", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/batches?sheet_type_id=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentsAndAdjustments(t *testing.T) {
	s := newTestServer(t)
	customerID := s.create("/api/customers", map[string]any{"name": "Acme"})
	supplierID := s.create("/api/suppliers", map[string]any{"name": "Mill"})

	rec, _ := s.do(http.MethodPost, "/api/customers/"+itoa(customerID)+"/payments", map[string]any{
		"amount": "50", "date": "2024-05-20",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = s.do(http.MethodPost, "/api/suppliers/"+itoa(supplierID)+"/payments", map[string]any{
		"amount": "30", "date": "2024-05-20",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, _ = s.do(http.MethodPost, "/api/adjustments", map[string]any{
		"account_kind": "customer", "account_id": customerID, "amount": "20",
		"date": "2024-05-21", "reason": "correction",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env := s.do(http.MethodGet, "/api/accounts/customer/"+itoa(customerID)+"/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []api.LedgerEntryDTO
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 2)
	assert.True(t, decimal.RequireFromString("-30").Equal(entries[1].BalanceAfter))
}

func TestExpenseApproval(t *testing.T) {
	s := newTestServer(t)
	supplierID := s.create("/api/suppliers", map[string]any{"name": "Transport Co"})
	expenseID := s.create("/api/expenses", map[string]any{
		"category": "transport", "amount": "80", "expense_date": "2024-05-30", "supplier_id": supplierID,
	})

	rec, env := s.do(http.MethodPost, "/api/expenses/"+itoa(expenseID)+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var approved api.ApprovedExpenseDTO
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	assert.Equal(t, "approved", approved.Expense.Status)
	require.NotNil(t, approved.Entry)

	rec, _ = s.do(http.MethodPost, "/api/expenses/"+itoa(expenseID)+"/approve", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seedStock("1")

	rec, _ := s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "sheetledger_http_requests_total")
	assert.Contains(t, body, "sheetledger_batches_received_total 1")
	assert.Contains(t, body, `operation="receive_batch"`)
}

func TestInventoryXLSX(t *testing.T) {
	s := newTestServer(t)
	s.seedStock("4")

	rec, _ := s.do(http.MethodGet, "/api/reports/inventory.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "inventory.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Inventory", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "SS-304-1.5", rows[1][0])
	assert.Equal(t, "400", rows[1][7])
}

func TestStatementXLSX(t *testing.T) {
	s := newTestServer(t)
	supplierID := s.create("/api/suppliers", map[string]any{"name": "Mill"})
	rec, _ := s.do(http.MethodPost, "/api/suppliers/"+itoa(supplierID)+"/payments", map[string]any{
		"amount": "30", "date": "2024-05-20",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/reports/statements/supplier/"+itoa(supplierID)+".xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("supplier "+itoa(supplierID), excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "-30", rows[1][4])
}
