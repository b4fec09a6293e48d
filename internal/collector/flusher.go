package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/johnayoung/go-tick-collector/internal/models"
	"github.com/johnayoung/go-tick-collector/internal/storage"
)

// flusher moves completed bars from a contract's output buffer to durable
// storage. When the store is unreachable the batch is serialized to a
// local fallback file instead of being discarded; the degraded mode is
// reported through the returned error wrapping ErrDegraded and the
// fallback counter, never escalated to the ingest path.
type flusher struct {
	store     storage.BarStorer
	fallback  *storage.FallbackWriter
	threshold int
	counters  *statsCounters
	logger    *slog.Logger
}

// ErrDegraded indicates a bar batch could not be persisted to the primary
// store and was routed to fallback file storage.
var ErrDegraded = errors.New("collector: storage degraded, batch routed to fallback")

// maybeFlush persists the contract's buffered bars if the buffer has
// reached the flush threshold.
func (f *flusher) maybeFlush(ctx context.Context, buf *instrumentBuffer) error {
	bars := buf.takeBars(f.threshold)
	if len(bars) == 0 {
		return nil
	}
	return f.flush(ctx, buf.contract, bars)
}

// flushAll persists the contract's buffered bars regardless of the
// threshold, draining remainders smaller than a normal batch.
func (f *flusher) flushAll(ctx context.Context, buf *instrumentBuffer) error {
	bars := buf.takeBars(0)
	if len(bars) == 0 {
		return nil
	}
	return f.flush(ctx, buf.contract, bars)
}

// flush bulk-upserts one batch. On storage failure the batch goes to the
// fallback writer; only when both paths fail is the data lost, and the
// returned error says so.
func (f *flusher) flush(ctx context.Context, contract string, bars []models.SecondBar) error {
	written, err := f.store.StoreBars(ctx, bars)
	if err == nil {
		f.counters.barsFlushed.Add(int64(written))
		f.logger.Debug("flushed second bars",
			"contract", contract,
			"bars", written)
		return nil
	}

	f.logger.Error("bulk insert failed, routing batch to fallback storage",
		"contract", contract,
		"bars", len(bars),
		"error", err)

	path, fbErr := f.fallback.WriteBatch(contract, bars)
	if fbErr != nil {
		return fmt.Errorf("flush failed for %s and fallback write failed: %w (insert error: %s)", contract, fbErr, err)
	}

	f.counters.fallbackBatches.Add(1)
	return fmt.Errorf("%w: %s (%d bars at %s)", ErrDegraded, contract, len(bars), path)
}
