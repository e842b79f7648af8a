package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sheet-ledger/metrics"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRecorders_NilReceiverIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.RecordOperation("process_sale", "ok", time.Millisecond)
		m.RecordFlushFailure()
		m.RecordSale("paid", 10)
		m.RecordAllocation("SS-1", 3)
		m.RecordPruned(2)
		m.RecordLedgerEntry("customer", "sale")
		m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	})
}

func TestRecorders_CountIntoOwnRegistry(t *testing.T) {
	first := metrics.New()
	second := metrics.New()

	first.RecordFlushFailure()
	first.RecordFlushFailure()
	first.RecordSale("partial", 1035)
	first.RecordPruned(0)
	first.RecordPruned(3)
	first.RecordOperation("delete_sale", "ok", time.Millisecond)

	body := scrape(t, first)
	assert.Contains(t, body, "sheetledger_flush_failures_total 2")
	assert.Contains(t, body, `sheetledger_sales_total{payment_status="partial"} 1`)
	assert.Contains(t, body, "sheetledger_sale_value_base_total 1035")
	assert.Contains(t, body, "sheetledger_batches_pruned_total 3")
	assert.Contains(t, body, `sheetledger_operations_total{operation="delete_sale",outcome="ok"} 1`)

	assert.Contains(t, scrape(t, second), "sheetledger_flush_failures_total 0")
}
