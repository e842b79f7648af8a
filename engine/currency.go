package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

// Currency describes one configured currency.
// ExchangeRate is units of this currency per one unit of base currency.
type Currency struct {
	Code         string
	Symbol       string
	ExchangeRate decimal.Decimal
	IsBase       bool
}

// CurrencyService is read once per operation, before the unit of work opens.
type CurrencyService interface {
	BaseCurrency(ctx context.Context) (Currency, error)
	ExchangeRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Flusher pushes committed state to durable storage. It runs after commit,
// outside the failure domain of the operation that triggered it.
type Flusher interface {
	Flush(ctx context.Context) error
}

// StaticCurrencies is a fixed CurrencyService, handy for tests and for
// running without a currencies table.
type StaticCurrencies struct {
	Base  Currency
	Rates map[string]decimal.Decimal
}

func (s StaticCurrencies) BaseCurrency(context.Context) (Currency, error) {
	return s.Base, nil
}

func (s StaticCurrencies) ExchangeRates(context.Context) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal, len(s.Rates)+1)
	for code, rate := range s.Rates {
		rates[code] = rate
	}
	rates[s.Base.Code] = decimal.NewFromInt(1)
	return rates, nil
}
