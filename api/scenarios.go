/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Populates the books with small, realistic data sets through the same
  trading service the API uses, so a fresh install can be explored
  without typing in a catalog first.

AVAILABLE SCENARIOS:
  fifo-split:       Two lots of one sheet; a walk-in sale of 60 drains the
                    older lot (50) and takes 10 from the newer one
  customer-ledger:  Sale 1000, payment 400, sale 250; balance ends at 850
                    (before VAT)
  remnants:         A full sheet, an offcut remnant linked to it, stock of both

HOW SCENARIOS WORK:
  Everything goes through trading.Service: validation, FIFO, ledger and
  metrics apply as for any other caller. Scenarios do not reset the
  database; codes and invoice numbers are fixed, so loading one twice
  fails with a conflict and writes nothing new.

USAGE VIA API:
  GET  /api/scenarios
  POST /api/scenarios/load
  {"scenario_id": "fifo-split"}
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
	"github.com/warp/sheet-ledger/trading"
)

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, svc *trading.Service) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "fifo-split",
			Name:        "FIFO split",
			Description: "Sale of 60 units drawn from a 50-unit lot and a 100-unit lot",
		},
		load: loadFIFOSplit,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "customer-ledger",
			Name:        "Customer ledger",
			Description: "Sale, partial payment and a second sale on one customer account",
		},
		load: loadCustomerLedger,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "remnants",
			Name:        "Remnants",
			Description: "Full sheet and an offcut remnant tracked as separate stock",
		},
		load: loadRemnants,
	},
}

// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeData(w, http.StatusOK, dtos, nil)
}

// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	for _, s := range scenarios {
		if s.ID != req.ScenarioID {
			continue
		}
		if err := s.load(r.Context(), h.Service); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.Logger.Info("scenario loaded", "scenario", s.ID)
		writeData(w, http.StatusOK, s.ScenarioDTO, nil)
		return
	}
	h.writeError(w, r, &engine.NotFoundError{Entity: "scenario", ID: req.ScenarioID})
}

// =============================================================================
// LOADERS
// =============================================================================

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func demoSheet(ctx context.Context, svc *trading.Service, code string, parent *int64) (engine.SheetType, error) {
	req := trading.SheetTypeRequest{
		Code:         code,
		MetalType:    "stainless",
		Grade:        "304",
		Finish:       "2B",
		WidthMM:      engine.MustDecimal("1250"),
		LengthMM:     engine.MustDecimal("2500"),
		ThicknessMM:  engine.MustDecimal("1.5"),
		WeightPerSqm: engine.MustDecimal("11.9"),
	}
	if parent != nil {
		req.WidthMM = engine.MustDecimal("600")
		req.LengthMM = engine.MustDecimal("900")
		req.IsRemnant = true
		req.ParentID = parent
	}
	return svc.CreateSheetType(ctx, req)
}

func loadFIFOSplit(ctx context.Context, svc *trading.Service) error {
	sheet, err := demoSheet(ctx, svc, "DEMO-FIFO-304", nil)
	if err != nil {
		return err
	}
	for _, lot := range []struct {
		qty      string
		received time.Time
	}{
		{"50", date(2024, time.January, 10)},
		{"100", date(2024, time.January, 15)},
	} {
		if _, err := svc.ReceiveBatch(ctx, trading.PurchaseRequest{
			SheetTypeID:  sheet.ID,
			Quantity:     engine.MustDecimal(lot.qty),
			CostPerKg:    engine.MustDecimal("4.2"),
			ReceivedDate: lot.received,
		}); err != nil {
			return err
		}
	}

	_, err = svc.ProcessSale(ctx, trading.SaleRequest{
		InvoiceNumber: "DEMO-FIFO-1",
		SaleDate:      date(2024, time.February, 1),
		Items: []trading.LineItem{{
			Kind:        engine.ItemMaterial,
			SheetTypeID: sheet.ID,
			Quantity:    engine.MustDecimal("60"),
			UnitPrice:   engine.MustDecimal("190"),
		}},
		AmountPaid:    engine.MustDecimal("11400"),
		PaymentMethod: "cash",
	})
	return err
}

func loadCustomerLedger(ctx context.Context, svc *trading.Service) error {
	customer, err := svc.CreateCustomer(ctx, "Demo Fabrication Ltd", "")
	if err != nil {
		return err
	}
	design, err := svc.CreateServiceType(ctx, "Demo design work", decimal.Zero)
	if err != nil {
		return err
	}

	sell := func(invoice string, amount string, on time.Time) (*trading.SaleReceipt, error) {
		return svc.ProcessSale(ctx, trading.SaleRequest{
			InvoiceNumber: invoice,
			CustomerID:    &customer.ID,
			SaleDate:      on,
			Items: []trading.LineItem{{
				Kind:          engine.ItemService,
				ServiceTypeID: design.ID,
				UnitPrice:     engine.MustDecimal(amount),
			}},
		})
	}

	first, err := sell("DEMO-LEDGER-1", "1000", date(2024, time.March, 1))
	if err != nil {
		return err
	}
	if _, err := svc.RecordCustomerPayment(ctx, trading.CustomerPaymentRequest{
		CustomerID: customer.ID,
		SaleID:     &first.Sale.ID,
		Amount:     engine.MustDecimal("400"),
		Method:     "bank",
		Date:       date(2024, time.March, 5),
	}); err != nil {
		return err
	}
	second, err := sell("DEMO-LEDGER-2", "250", date(2024, time.March, 9))
	if err != nil {
		return err
	}

	balance, err := svc.Balance(ctx, engine.CustomerAccount(customer.ID))
	if err != nil {
		return err
	}
	// 850 without VAT
	expected := first.Sale.Total.Sub(engine.MustDecimal("400")).Add(second.Sale.Total)
	if !balance.Equal(expected) {
		return fmt.Errorf("customer-ledger scenario: balance %s, expected %s", balance, expected)
	}
	return nil
}

func loadRemnants(ctx context.Context, svc *trading.Service) error {
	full, err := demoSheet(ctx, svc, "DEMO-REM-304", nil)
	if err != nil {
		return err
	}
	offcut, err := demoSheet(ctx, svc, "DEMO-REM-304-R1", &full.ID)
	if err != nil {
		return err
	}

	for _, lot := range []struct {
		sheet engine.SheetType
		qty   string
		total string
	}{
		{full, "20", "7800"},
		{offcut, "3", "200"},
	} {
		if _, err := svc.ReceiveBatch(ctx, trading.PurchaseRequest{
			SheetTypeID:  lot.sheet.ID,
			Quantity:     engine.MustDecimal(lot.qty),
			TotalCost:    engine.MustDecimal(lot.total),
			ReceivedDate: date(2024, time.April, 2),
		}); err != nil {
			return err
		}
	}
	return nil
}
