/*
main.go - Application entry point

PURPOSE:
  Starts the sheet ledger server: inventory, sales and account books for
  a metal-sheet trading business behind a JSON API.

STARTUP SEQUENCE:
  1. Load configuration (defaults, -config file, .env, environment)
  2. Open the SQLite store and apply migrations
  3. Seed the currency table from configuration
  4. Build the trading service with metrics and logging
  5. Configure the HTTP router
  6. Start the prune scheduler and the server

COMMAND-LINE FLAGS:
  -config  Optional YAML config file

ENVIRONMENT:
  SHEETLEDGER_HTTP_ADDR, SHEETLEDGER_DB_PATH, SHEETLEDGER_LOG_LEVEL,
  SHEETLEDGER_BUSINESS_VAT_ENABLED, SHEETLEDGER_MAINTENANCE_PRUNE_INTERVAL, ...
  See config/config.go for the full list.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the prune scheduler
  4. Close the database

EXAMPLES:
  ./server -config=./sheetledger.yaml
  SHEETLEDGER_DB_PATH=":memory:" ./server

SEE ALSO:
  - api/server.go: Router configuration
  - trading/service.go: Business operations
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/sheet-ledger/api"
	"github.com/warp/sheet-ledger/config"
	"github.com/warp/sheet-ledger/metrics"
	"github.com/warp/sheet-ledger/store/sqlite"
	"github.com/warp/sheet-ledger/trading"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := config.NewLogger(cfg.Log.Level, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	store, err := sqlite.New(ctx, cfg.DB.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	currencies, err := cfg.Currencies()
	if err != nil {
		return err
	}
	if err := store.SaveCurrencies(ctx, currencies); err != nil {
		return err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}

	// Service
	opts := []trading.Option{
		trading.WithFlusher(store),
		trading.WithSettings(settings),
		trading.WithLogger(logger),
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opts = append(opts, trading.WithMetrics(m))
	}
	service := trading.New(store, store, opts...)

	// HTTP
	handler := api.NewHandler(service, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Metrics:     m,
	})

	scheduler := api.NewPruneScheduler(service, cfg.Maintenance.PruneInterval, logger)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.HTTP.Addr),
			slog.String("db", cfg.DB.Path),
			slog.String("base_currency", currencies[0].Code),
			slog.Bool("vat_enabled", settings.VATEnabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
