package trading

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

// =============================================================================
// REQUEST / RECEIPT
// =============================================================================

// LineItem is one line of a sale request, priced in the sale currency.
type LineItem struct {
	Kind engine.ItemKind

	// material
	SheetTypeID    int64
	CustomWeightKg *decimal.Decimal // total weight of a non-standard cut

	// service
	ServiceTypeID int64
	ServiceCost   *decimal.Decimal // per unit, base currency; overrides the default

	Quantity    decimal.Decimal // services default to 1
	UnitPrice   decimal.Decimal
	Description string
}

type SaleRequest struct {
	InvoiceNumber string
	CustomerID    *int64 // nil for a walk-in sale
	SaleDate      time.Time
	CurrencyCode  string // empty means base currency
	Items         []LineItem
	Discount      decimal.Decimal
	AmountPaid    decimal.Decimal
	PaymentMethod string
	Notes         string
}

// SaleReceipt is everything ProcessSale wrote, in base currency.
type SaleReceipt struct {
	Sale     engine.Sale
	Items    []engine.SaleItem
	Payment  *engine.Payment
	Entries  []engine.LedgerEntry
	Warnings []string
}

// =============================================================================
// PROCESS SALE
// =============================================================================

// ProcessSale records a sale as one unit of work: header, FIFO-allocated
// material items, service items, optional payment and customer ledger
// entries. On any error nothing is written.
func (s *Service) ProcessSale(ctx context.Context, req SaleRequest) (*SaleReceipt, error) {
	q, err := s.quoteSale(ctx, req)
	if err != nil {
		s.metrics.RecordOperation("process_sale", outcome(err), 0)
		return nil, err
	}
	lines, code, rate, base, paid := q.lines, q.code, q.rate, q.base, q.paid

	receipt := &SaleReceipt{}
	var sheetCodes map[int64]string

	warnings, err := s.run(ctx, "process_sale", func(tx engine.Tx) error {
		resolved, err := resolveReferences(ctx, tx, req.CustomerID, lines)
		if err != nil {
			return err
		}
		sheetCodes = resolved.sheetCodes()

		sale := engine.Sale{
			InvoiceNumber: req.InvoiceNumber,
			CustomerID:    req.CustomerID,
			SaleDate:      engine.DateOnly(req.SaleDate),
			CurrencyCode:  code,
			FxRate:        rate,
			Subtotal:      base.Subtotal,
			Discount:      base.Discount,
			Tax:           base.Tax,
			Total:         base.Total,
			AmountPaid:    paid,
			PaymentStatus: engine.PaymentStatusFor(paid, base.Total),
			PaymentMethod: req.PaymentMethod,
			Notes:         req.Notes,
		}
		sale.ID, err = tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		receipt.Sale = sale

		for i, line := range lines {
			var items []engine.SaleItem
			if line.Kind == engine.ItemMaterial {
				items, err = sellMaterial(ctx, tx, sale, resolved.sheets[line.SheetTypeID], line, rate)
			} else {
				items, err = sellService(ctx, tx, sale, resolved.services[line.ServiceTypeID], line, rate)
			}
			if err != nil {
				return withLine(i, err)
			}
			receipt.Items = append(receipt.Items, items...)
		}

		if paid.IsPositive() {
			payment := engine.Payment{
				SaleID:      &sale.ID,
				CustomerID:  req.CustomerID,
				Amount:      paid,
				Method:      req.PaymentMethod,
				PaymentDate: sale.SaleDate,
				Notes:       "payment for " + sale.InvoiceNumber,
			}
			payment.ID, err = tx.InsertPayment(ctx, payment)
			if err != nil {
				return err
			}
			receipt.Payment = &payment
		}

		if req.CustomerID == nil {
			return nil
		}
		account := engine.CustomerAccount(*req.CustomerID)

		entry, err := engine.PostEntry(ctx, tx, engine.EntryInput{
			Account:       account,
			Type:          engine.EntrySale,
			Amount:        sale.Total,
			ReferenceType: engine.RefSale,
			ReferenceID:   sale.ID,
			Date:          sale.SaleDate,
			Notes:         "sale " + sale.InvoiceNumber,
		})
		if err != nil {
			return err
		}
		receipt.Entries = append(receipt.Entries, entry)

		if receipt.Payment != nil {
			entry, err := engine.PostEntry(ctx, tx, engine.EntryInput{
				Account:       account,
				Type:          engine.EntryPayment,
				Amount:        paid.Neg(),
				ReferenceType: engine.RefPayment,
				ReferenceID:   receipt.Payment.ID,
				Date:          sale.SaleDate,
				Notes:         "payment for " + sale.InvoiceNumber,
			})
			if err != nil {
				return err
			}
			receipt.Entries = append(receipt.Entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	receipt.Warnings = warnings
	s.metrics.RecordSale(string(receipt.Sale.PaymentStatus), receipt.Sale.Total.InexactFloat64())
	for _, item := range receipt.Items {
		if item.Kind == engine.ItemMaterial && item.SheetTypeID != nil {
			s.metrics.RecordAllocation(sheetCodes[*item.SheetTypeID], item.Quantity.InexactFloat64())
		}
	}
	s.recordEntries(receipt.Entries)
	s.logger.Info("sale processed",
		"sale_id", receipt.Sale.ID,
		"invoice", receipt.Sale.InvoiceNumber,
		"total", receipt.Sale.Total.StringFixed(2),
		"status", receipt.Sale.PaymentStatus,
		"items", len(receipt.Items))
	return receipt, nil
}

// saleQuote is a validated request priced in base currency.
type saleQuote struct {
	lines []LineItem
	code  string
	rate  decimal.Decimal
	base  Totals
	paid  decimal.Decimal
}

// quoteSale does everything ProcessSale needs before the unit of work
// opens. Rates are captured once, here.
func (s *Service) quoteSale(ctx context.Context, req SaleRequest) (*saleQuote, error) {
	lines, err := s.validateSale(req)
	if err != nil {
		return nil, err
	}
	totals, err := ComputeTotals(lines, req.Discount, s.settings)
	if err != nil {
		return nil, err
	}
	code, rate, err := s.resolveCurrency(ctx, req.CurrencyCode)
	if err != nil {
		return nil, err
	}
	base, err := totals.ToBase(rate)
	if err != nil {
		return nil, engine.Classify("process sale", err)
	}
	paid, err := engine.ToBase(req.AmountPaid, rate)
	if err != nil {
		return nil, engine.Classify("process sale", err)
	}
	return &saleQuote{lines: lines, code: code, rate: rate, base: base, paid: paid}, nil
}

// sellMaterial allocates one material line FIFO and applies the plan:
// one item, one batch decrement and one OUT movement per allocation.
func sellMaterial(ctx context.Context, tx engine.Tx, sale engine.Sale, sheet engine.SheetType, line LineItem, rate decimal.Decimal) ([]engine.SaleItem, error) {
	batches, err := tx.ListBatches(ctx, sheet.ID)
	if err != nil {
		return nil, err
	}
	plan, err := engine.AllocateFIFO(sheet, batches, line.Quantity, line.CustomWeightKg)
	if err != nil {
		return nil, err
	}
	unitPrice, err := engine.ToBase(line.UnitPrice, rate)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]engine.Batch, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
	}

	items := make([]engine.SaleItem, 0, len(plan))
	for _, alloc := range plan {
		batch, err := byID[alloc.BatchID].Apply(alloc.Quantity.Neg())
		if err != nil {
			return nil, err
		}

		sheetID, batchID := sheet.ID, alloc.BatchID
		item := engine.SaleItem{
			SaleID:      sale.ID,
			Kind:        engine.ItemMaterial,
			SheetTypeID: &sheetID,
			BatchID:     &batchID,
			Quantity:    alloc.Quantity,
			UnitPrice:   unitPrice,
			TotalPrice:  engine.Round2(unitPrice.Mul(alloc.Quantity)),
			WeightKg:    alloc.WeightKg,
			UnitCOGS:    alloc.UnitCOGS,
			TotalCOGS:   alloc.TotalCOGS,
			Description: describe(line.Description, sheet.Code),
		}
		item.ID, err = tx.InsertSaleItem(ctx, item)
		if err != nil {
			return nil, err
		}
		if err := tx.SetBatchRemaining(ctx, batch.ID, batch.QuantityRemaining); err != nil {
			return nil, err
		}
		if _, err := tx.InsertMovement(ctx, engine.InventoryMovement{
			SheetTypeID:   sheet.ID,
			BatchID:       batch.ID,
			Direction:     engine.DirectionOut,
			Quantity:      alloc.Quantity,
			ReferenceType: engine.RefSale,
			ReferenceID:   sale.ID,
			Notes:         sale.InvoiceNumber,
		}); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// sellService writes a single item. Cost is the explicit override, else the
// service type default, else zero.
func sellService(ctx context.Context, tx engine.Tx, sale engine.Sale, service engine.ServiceType, line LineItem, rate decimal.Decimal) ([]engine.SaleItem, error) {
	unitPrice, err := engine.ToBase(line.UnitPrice, rate)
	if err != nil {
		return nil, err
	}

	cost := service.DefaultCost
	if line.ServiceCost != nil {
		cost = *line.ServiceCost
	}
	cost = engine.Round2(cost)

	serviceID := service.ID
	item := engine.SaleItem{
		SaleID:        sale.ID,
		Kind:          engine.ItemService,
		ServiceTypeID: &serviceID,
		Quantity:      line.Quantity,
		UnitPrice:     unitPrice,
		TotalPrice:    engine.Round2(unitPrice.Mul(line.Quantity)),
		WeightKg:      decimal.Zero,
		UnitCOGS:      cost,
		TotalCOGS:     engine.Round2(cost.Mul(line.Quantity)),
		Description:   describe(line.Description, service.Name),
	}
	item.ID, err = tx.InsertSaleItem(ctx, item)
	if err != nil {
		return nil, err
	}
	return []engine.SaleItem{item}, nil
}

func describe(given, fallback string) string {
	if given != "" {
		return given
	}
	return fallback
}

// =============================================================================
// VALIDATION
// =============================================================================

// validateSale checks everything that needs no storage and returns the
// normalized lines.
func (s *Service) validateSale(req SaleRequest) ([]LineItem, error) {
	if ve := engine.First(
		engine.Required("invoice_number", req.InvoiceNumber),
		engine.DateNotInFuture("sale_date", req.SaleDate, s.now()),
		engine.NonNegative("discount", req.Discount),
		engine.NonNegative("amount_paid", req.AmountPaid),
	); ve != nil {
		return nil, ve
	}
	if req.CustomerID != nil && *req.CustomerID <= 0 {
		return nil, engine.Invalid("customer_id", "must be a valid id when given")
	}
	if len(req.Items) == 0 {
		return nil, engine.Invalid("items", "at least one line item is required")
	}

	lines := make([]LineItem, len(req.Items))
	for i, line := range req.Items {
		switch line.Kind {
		case engine.ItemMaterial:
			if ve := engine.First(
				engine.RequiredID(lineField(i, "sheet_type_id"), line.SheetTypeID),
				engine.Positive(lineField(i, "quantity"), line.Quantity),
				engine.NonNegative(lineField(i, "unit_price"), line.UnitPrice),
			); ve != nil {
				return nil, ve
			}
			if line.CustomWeightKg != nil {
				if ve := engine.NonNegative(lineField(i, "custom_weight"), *line.CustomWeightKg); ve != nil {
					return nil, ve
				}
			}
		case engine.ItemService:
			if line.Quantity.IsZero() {
				line.Quantity = decimal.NewFromInt(1)
			}
			if ve := engine.First(
				engine.RequiredID(lineField(i, "service_type_id"), line.ServiceTypeID),
				engine.Positive(lineField(i, "quantity"), line.Quantity),
				engine.NonNegative(lineField(i, "unit_price"), line.UnitPrice),
			); ve != nil {
				return nil, ve
			}
			if line.ServiceCost != nil {
				if ve := engine.NonNegative(lineField(i, "service_cost"), *line.ServiceCost); ve != nil {
					return nil, ve
				}
			}
		default:
			return nil, engine.Invalid(lineField(i, "kind"), "must be %q or %q", engine.ItemMaterial, engine.ItemService)
		}
		lines[i] = line
	}
	return lines, nil
}

// resolveCurrency returns the currency code and its rate against base.
func (s *Service) resolveCurrency(ctx context.Context, requested string) (string, decimal.Decimal, error) {
	base, err := s.currencies.BaseCurrency(ctx)
	if err != nil {
		return "", decimal.Zero, engine.Classify("load base currency", err)
	}
	if requested == "" || requested == base.Code {
		return base.Code, decimal.NewFromInt(1), nil
	}

	rates, err := s.currencies.ExchangeRates(ctx)
	if err != nil {
		return "", decimal.Zero, engine.Classify("load exchange rates", err)
	}
	rate, ok := rates[requested]
	if !ok {
		return "", decimal.Zero, engine.Invalid("currency_code", "unknown currency %s", requested)
	}
	if !rate.IsPositive() {
		return "", decimal.Zero, engine.Invalid("currency_code", "currency %s has no usable exchange rate", requested)
	}
	return requested, rate, nil
}

// references holds the catalog rows a sale request points at.
type references struct {
	sheets   map[int64]engine.SheetType
	services map[int64]engine.ServiceType
}

func (r references) sheetCodes() map[int64]string {
	codes := make(map[int64]string, len(r.sheets))
	for id, sheet := range r.sheets {
		codes[id] = sheet.Code
	}
	return codes
}

// resolveReferences reads every referenced row before the first write.
func resolveReferences(ctx context.Context, tx engine.Tx, customerID *int64, lines []LineItem) (references, error) {
	refs := references{
		sheets:   make(map[int64]engine.SheetType),
		services: make(map[int64]engine.ServiceType),
	}
	if customerID != nil {
		if _, err := tx.GetCustomer(ctx, *customerID); err != nil {
			return refs, mustExist("customer_id", err)
		}
	}
	for i, line := range lines {
		switch line.Kind {
		case engine.ItemMaterial:
			if _, ok := refs.sheets[line.SheetTypeID]; ok {
				continue
			}
			sheet, err := tx.GetSheetType(ctx, line.SheetTypeID)
			if err != nil {
				return refs, mustExist(lineField(i, "sheet_type_id"), err)
			}
			refs.sheets[sheet.ID] = sheet
		case engine.ItemService:
			if _, ok := refs.services[line.ServiceTypeID]; ok {
				continue
			}
			service, err := tx.GetServiceType(ctx, line.ServiceTypeID)
			if err != nil {
				return refs, mustExist(lineField(i, "service_type_id"), err)
			}
			refs.services[service.ID] = service
		}
	}
	return refs, nil
}

// withLine prefixes validation failures with the line they came from.
// Other errors pass through untouched.
func withLine(i int, err error) error {
	if ve, ok := err.(*engine.ValidationError); ok && ve.Field != "" {
		return engine.Invalid(lineField(i, ve.Field), "%s", ve.Message)
	}
	return err
}
