/*
Package trading composes the engine into the operations a shop runs every
day: selling sheets and services, receiving purchase batches, taking
payments, deleting mistaken sales and approving expenses.

PURPOSE:
  Each exported method on Service is one atomic unit of work. Input is
  validated first, collaborator data (currency rates) is captured before
  the unit of work opens, and every write happens through the engine.Tx
  handed out by the Store. Either all effects commit or none do.

AFTER COMMIT:
  A durability flush runs once per committed operation. It sits outside
  the operation's failure domain: a failed flush is logged, counted and
  returned as a warning on the receipt while the data stays committed.

ERRORS:
  Methods return the engine error taxonomy. Anything that is not already
  a ValidationError, InsufficientStockError, ConstraintError or
  NotFoundError comes back as a TransactionError.

SEE ALSO:
  - sale.go: ProcessSale
  - deletion.go: DeleteSale, PruneEmptyBatches
  - purchase.go: ReceiveBatch
  - accounts.go: payments, adjustments, expenses
*/
package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/sheet-ledger/engine"
	"github.com/warp/sheet-ledger/metrics"
)

// Settings are the business rules that vary per shop.
type Settings struct {
	VATEnabled bool
	VATRate    decimal.Decimal // fraction, 0.15 for 15%
}

// Service runs trading operations against a Store.
type Service struct {
	store      engine.Store
	currencies engine.CurrencyService
	flusher    engine.Flusher
	settings   Settings
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*Service)

// WithFlusher sets the durability hook run after each commit.
func WithFlusher(f engine.Flusher) Option {
	return func(s *Service) { s.flusher = f }
}

func WithSettings(settings Settings) Option {
	return func(s *Service) { s.settings = settings }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock used for "not in the future" checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store engine.Store, currencies engine.CurrencyService, opts ...Option) *Service {
	s := &Service{
		store:      store,
		currencies: currencies,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ledger returns a standalone ledger over the same store.
func (s *Service) Ledger() *engine.Ledger {
	return engine.NewLedger(s.store)
}

// =============================================================================
// UNIT OF WORK RUNNER
// =============================================================================

// FlushWarning is attached to receipts when the post-commit flush fails.
const FlushWarning = "changes were saved but could not be flushed to durable storage"

// run executes fn as one unit of work named op, records the outcome and
// flushes on success. The returned warnings are non-fatal.
func (s *Service) run(ctx context.Context, op string, fn func(engine.Tx) error) ([]string, error) {
	start := time.Now()
	err := engine.Classify(op, s.store.WithTx(ctx, fn))
	s.metrics.RecordOperation(op, outcome(err), time.Since(start))

	if err != nil {
		if engine.IsClientError(err) || errors.Is(err, engine.ErrNotFound) {
			s.logger.Info("operation rejected", "op", op, "error", err)
		} else {
			s.logger.Error("operation failed", "op", op, "error", err)
		}
		return nil, err
	}

	return s.flush(ctx, op), nil
}

func (s *Service) flush(ctx context.Context, op string) []string {
	if s.flusher == nil {
		return nil
	}
	if err := s.flusher.Flush(ctx); err != nil {
		s.logger.Warn("durability flush failed", "op", op, "error", err)
		s.metrics.RecordFlushFailure()
		return []string{FlushWarning}
	}
	return nil
}

// view runs fn against committed state.
func (s *Service) view(ctx context.Context, op string, fn func(engine.Tx) error) error {
	return engine.Classify(op, s.store.View(ctx, fn))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrValidation):
		return "validation"
	case errors.Is(err, engine.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, engine.ErrConstraintViolation):
		return "constraint"
	case errors.Is(err, engine.ErrNotFound):
		return "not_found"
	default:
		return "failed"
	}
}

func (s *Service) recordEntries(entries []engine.LedgerEntry) {
	for _, e := range entries {
		s.metrics.RecordLedgerEntry(string(e.Account.Kind), string(e.Type))
	}
}

// today is the service clock truncated to a calendar day.
func (s *Service) today() time.Time {
	return engine.DateOnly(s.now())
}

// mustExist turns a NotFoundError for a referenced row into a
// ValidationError on field, since the caller supplied the bad id.
func mustExist(field string, err error) error {
	var nf *engine.NotFoundError
	if errors.As(err, &nf) {
		return engine.Invalid(field, "%s %v does not exist", nf.Entity, nf.ID)
	}
	return err
}

func lineField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}
