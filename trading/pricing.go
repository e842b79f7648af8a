package trading

import (
	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

// Totals are the header figures of an invoice. Every field is rounded to
// two places at the stage it is produced:
//
//	subtotal = round2(sum of round2(qty x unit price))
//	taxable  = round2(subtotal - round2(discount))
//	tax      = round2(taxable x vat rate)
//	total    = round2(taxable + tax)
//
// Rounding only at the end gives different cents, so the order is fixed.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Taxable  decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// LineTotal is the rounded extended price of one request line.
func LineTotal(qty, unitPrice decimal.Decimal) decimal.Decimal {
	return engine.Round2(qty.Mul(unitPrice))
}

// ComputeTotals prices a sale in its own currency. The discount may not
// exceed the subtotal.
func ComputeTotals(lines []LineItem, discount decimal.Decimal, settings Settings) (Totals, error) {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(LineTotal(line.Quantity, line.UnitPrice))
	}

	t := Totals{
		Subtotal: engine.Round2(subtotal),
		Discount: engine.Round2(discount),
	}
	if t.Discount.GreaterThan(t.Subtotal) {
		return Totals{}, engine.Invalid("discount", "must not exceed the subtotal %s", t.Subtotal.StringFixed(2))
	}

	t.Taxable = engine.Round2(t.Subtotal.Sub(t.Discount))
	t.Tax = decimal.Zero
	if settings.VATEnabled {
		t.Tax = engine.Round2(t.Taxable.Mul(settings.VATRate))
	}
	t.Total = engine.Round2(t.Taxable.Add(t.Tax))
	return t, nil
}

// ToBase converts each figure separately with the captured rate.
func (t Totals) ToBase(rate decimal.Decimal) (Totals, error) {
	var (
		out Totals
		err error
	)
	convert := func(d decimal.Decimal) decimal.Decimal {
		if err != nil {
			return decimal.Zero
		}
		var v decimal.Decimal
		v, err = engine.ToBase(d, rate)
		return v
	}
	out.Subtotal = convert(t.Subtotal)
	out.Discount = convert(t.Discount)
	out.Taxable = convert(t.Taxable)
	out.Tax = convert(t.Tax)
	out.Total = convert(t.Total)
	return out, err
}
