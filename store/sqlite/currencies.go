package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
)

// =============================================================================
// CURRENCIES (engine.CurrencyService)
// =============================================================================

// ErrNoBaseCurrency is returned when the currencies table has no base row.
var ErrNoBaseCurrency = errors.New("no base currency configured")

// BaseCurrency returns the currency flagged is_base.
func (s *Store) BaseCurrency(ctx context.Context) (engine.Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		c      engine.Currency
		rate   string
		isBase int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT code, symbol, exchange_rate, is_base FROM currencies WHERE is_base = 1",
	).Scan(&c.Code, &c.Symbol, &rate, &isBase)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNoBaseCurrency
	}
	if err != nil {
		return c, fmt.Errorf("failed to load base currency: %w", err)
	}

	var d decimals
	c.ExchangeRate = d.parse(rate)
	c.IsBase = true
	return c, d.err
}

// ExchangeRates returns every configured rate keyed by currency code. The
// base currency always maps to 1.
func (s *Store) ExchangeRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	currencies, err := s.Currencies(ctx)
	if err != nil {
		return nil, err
	}

	rates := make(map[string]decimal.Decimal, len(currencies))
	for _, c := range currencies {
		if c.IsBase {
			rates[c.Code] = decimal.NewFromInt(1)
			continue
		}
		rates[c.Code] = c.ExchangeRate
	}
	return rates, nil
}

// Currencies lists the configured currencies ordered by code.
func (s *Store) Currencies(ctx context.Context) ([]engine.Currency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT code, symbol, exchange_rate, is_base FROM currencies ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query currencies: %w", err)
	}
	defer rows.Close()

	var currencies []engine.Currency
	for rows.Next() {
		var (
			c      engine.Currency
			rate   string
			isBase int
		)
		if err := rows.Scan(&c.Code, &c.Symbol, &rate, &isBase); err != nil {
			return nil, err
		}
		var d decimals
		c.ExchangeRate = d.parse(rate)
		c.IsBase = isBase == 1
		if d.err != nil {
			return nil, d.err
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}

// SaveCurrencies upserts the given currencies in one transaction. When one
// of them is the base, any previous base loses the flag first.
func (s *Store) SaveCurrencies(ctx context.Context, currencies []engine.Currency) error {
	for _, c := range currencies {
		if c.Code == "" {
			return engine.Invalid("code", "currency code is required")
		}
		if !c.IsBase && !c.ExchangeRate.IsPositive() {
			return engine.Invalid("exchange_rate", "exchange rate for %s must be positive", c.Code)
		}
	}

	return s.WithTx(ctx, func(tx engine.Tx) error {
		t := tx.(*txStore)
		for _, c := range currencies {
			rate := c.ExchangeRate
			if c.IsBase {
				rate = decimal.NewFromInt(1)
				if _, err := t.exec(ctx, "currencies.is_base",
					"UPDATE currencies SET is_base = 0 WHERE is_base = 1 AND code <> ?", c.Code); err != nil {
					return err
				}
			}
			if _, err := t.exec(ctx, "currencies.is_base", `
				INSERT INTO currencies (code, symbol, exchange_rate, is_base) VALUES (?, ?, ?, ?)
				ON CONFLICT(code) DO UPDATE SET
					symbol = excluded.symbol,
					exchange_rate = excluded.exchange_rate,
					is_base = excluded.is_base`,
				c.Code, c.Symbol, rate.String(), boolInt(c.IsBase)); err != nil {
				return err
			}
		}
		return nil
	})
}
