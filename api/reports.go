package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/warp/sheet-ledger/engine"
	"github.com/warp/sheet-ledger/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GET /api/reports/inventory
func (h *Handler) InventoryValuation(w http.ResponseWriter, r *http.Request) {
	v, err := report.Valuate(r.Context(), h.Service)
	if err != nil {
		h.writeError(w, r, engine.Classify("inventory valuation", err))
		return
	}
	writeData(w, http.StatusOK, toValuationDTO(v), nil)
}

// GET /api/reports/inventory.xlsx
func (h *Handler) InventoryValuationXLSX(w http.ResponseWriter, r *http.Request) {
	v, err := report.Valuate(r.Context(), h.Service)
	if err != nil {
		h.writeError(w, r, engine.Classify("inventory valuation", err))
		return
	}

	var buf bytes.Buffer
	if err := report.WriteInventoryValuation(&buf, v); err != nil {
		h.writeError(w, r, engine.Classify("render inventory valuation", err))
		return
	}
	writeXLSX(w, "inventory.xlsx", buf.Bytes())
}

// GET /api/reports/statements/{kind}/{id}.xlsx
func (h *Handler) AccountStatementXLSX(w http.ResponseWriter, r *http.Request) {
	kind := engine.AccountKind(chi.URLParam(r, "kind"))
	if kind != engine.AccountCustomer && kind != engine.AccountSupplier {
		h.writeError(w, r, engine.Invalid("kind", "must be customer or supplier"))
		return
	}
	id, err := strconv.ParseInt(strings.TrimSuffix(chi.URLParam(r, "file"), ".xlsx"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, engine.Invalid("id", "must be a positive integer"))
		return
	}
	account := engine.Account{Kind: kind, ID: id}

	entries, err := report.Statement(r.Context(), h.Service, account)
	if err != nil {
		h.writeError(w, r, engine.Classify("account statement", err))
		return
	}

	var buf bytes.Buffer
	if err := report.WriteAccountStatement(&buf, account, entries); err != nil {
		h.writeError(w, r, engine.Classify("render account statement", err))
		return
	}
	writeXLSX(w, fmt.Sprintf("statement-%s-%d.xlsx", kind, id), buf.Bytes())
}

func writeXLSX(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
