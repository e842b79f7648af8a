/*
config.go - Process configuration

SOURCES (later wins):
  1. Built-in defaults
  2. Optional YAML file passed with -config
  3. .env in the working directory (loaded into the environment)
  4. Environment variables with the SHEETLEDGER_ prefix, dots become
     underscores: SHEETLEDGER_DB_PATH, SHEETLEDGER_BUSINESS_VAT_RATE, ...

EXAMPLE FILE:
    http:
      addr: ":8080"
    db:
      path: "sheetledger.db"
    maintenance:
      prune_interval: "6h"
    business:
      base_currency: "AFN"
      vat_enabled: true
      vat_rate: "10"
      currencies:
        - {code: "AFN", symbol: "؋", rate: "1"}
        - {code: "USD", symbol: "$", rate: "0.0143"}
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/warp/sheet-ledger/engine"
	"github.com/warp/sheet-ledger/trading"
)

const EnvPrefix = "SHEETLEDGER"

type Config struct {
	HTTP struct {
		Addr        string   `mapstructure:"addr"`
		CORSOrigins []string `mapstructure:"cors_origins"`
	} `mapstructure:"http"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Business Business `mapstructure:"business"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Maintenance struct {
		PruneInterval time.Duration `mapstructure:"prune_interval"` // 0 disables
	} `mapstructure:"maintenance"`
}

type Business struct {
	BaseCurrency string           `mapstructure:"base_currency"`
	VATEnabled   bool             `mapstructure:"vat_enabled"`
	VATRate      string           `mapstructure:"vat_rate"`
	Currencies   []CurrencyConfig `mapstructure:"currencies"`
}

// CurrencyConfig rates are units of the currency per one unit of base.
type CurrencyConfig struct {
	Code   string `mapstructure:"code"`
	Symbol string `mapstructure:"symbol"`
	Rate   string `mapstructure:"rate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("db.path", "sheetledger.db")
	v.SetDefault("business.base_currency", "AFN")
	v.SetDefault("business.vat_enabled", false)
	v.SetDefault("business.vat_rate", "0")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("maintenance.prune_interval", 24*time.Hour)
}

// Load reads configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (Config, error) {
	// a missing .env is not an error
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.DB.Path == "" {
		return errors.New("config: db.path is required")
	}
	if c.Business.BaseCurrency == "" {
		return errors.New("config: business.base_currency is required")
	}
	if c.Maintenance.PruneInterval < 0 {
		return errors.New("config: maintenance.prune_interval must not be negative")
	}
	if _, err := c.Settings(); err != nil {
		return err
	}
	_, err := c.Currencies()
	return err
}

// Settings returns the pricing settings for the trading service.
func (c Config) Settings() (trading.Settings, error) {
	rate, err := engine.ParseDecimal(c.Business.VATRate)
	if err != nil {
		return trading.Settings{}, fmt.Errorf("config: business.vat_rate: %w", err)
	}
	if rate.IsNegative() {
		return trading.Settings{}, errors.New("config: business.vat_rate must not be negative")
	}
	return trading.Settings{VATEnabled: c.Business.VATEnabled, VATRate: rate}, nil
}

// Currencies returns the configured currency table with exactly one base
// currency. The base is added with rate 1 when the list omits it.
func (c Config) Currencies() ([]engine.Currency, error) {
	base := strings.ToUpper(c.Business.BaseCurrency)
	out := []engine.Currency{{Code: base, ExchangeRate: decimal.NewFromInt(1), IsBase: true}}

	seen := map[string]bool{}
	for _, cc := range c.Business.Currencies {
		code := strings.ToUpper(strings.TrimSpace(cc.Code))
		if code == "" {
			return nil, errors.New("config: currency code is required")
		}
		if seen[code] {
			return nil, fmt.Errorf("config: currency %s listed twice", code)
		}
		seen[code] = true

		if code == base {
			out[0].Symbol = cc.Symbol
			continue
		}
		rate, err := decimal.NewFromString(cc.Rate)
		if err != nil {
			return nil, fmt.Errorf("config: currency %s rate: %w", code, err)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("config: currency %s rate must be greater than zero", code)
		}
		out = append(out, engine.Currency{Code: code, Symbol: cc.Symbol, ExchangeRate: rate})
	}
	return out, nil
}
