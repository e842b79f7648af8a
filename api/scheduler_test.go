package api_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sheet-ledger/api"
	"github.com/warp/sheet-ledger/engine"
)

func TestPruneScheduler_PrunesOnStart(t *testing.T) {
	// GIVEN: An exhausted lot nothing references
	// WHEN: The scheduler starts
	// THEN: The first run removes it without waiting for a tick

	s := newTestServer(t)
	ctx := context.Background()
	sheetID, batchID := s.seedStock("5")
	require.NoError(t, s.store.WithTx(ctx, func(tx engine.Tx) error {
		return tx.SetBatchRemaining(ctx, batchID, decimal.Zero)
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := api.NewPruneScheduler(s.service, time.Hour, logger)
	scheduler.Start()
	scheduler.Start()
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		batches, err := s.service.ListBatches(ctx, sheetID)
		return err == nil && len(batches) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPruneScheduler_ZeroIntervalIsDisabled(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	sheetID, batchID := s.seedStock("5")
	require.NoError(t, s.store.WithTx(ctx, func(tx engine.Tx) error {
		return tx.SetBatchRemaining(ctx, batchID, decimal.Zero)
	}))

	scheduler := api.NewPruneScheduler(s.service, 0, nil)
	scheduler.Start()
	scheduler.Stop()

	batches, err := s.service.ListBatches(ctx, sheetID)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}
