package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-tick-collector/internal/models"
)

func testBar(contract string, at time.Time) models.SecondBar {
	return models.SecondBar{
		Timestamp:    at,
		Symbol:       "NQ",
		Contract:     contract,
		Exchange:     "CME",
		Open:         decimal.RequireFromString("100"),
		High:         decimal.RequireFromString("101"),
		Low:          decimal.RequireFromString("100"),
		Close:        decimal.RequireFromString("101"),
		Volume:       8,
		TickCount:    2,
		VWAP:         decimal.RequireFromString("100.375"),
		QualityScore: 1.0,
	}
}

func TestMemoryStorageStoreBars(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	t.Run("stores batch", func(t *testing.T) {
		mem := NewMemoryStorage()
		require.NoError(t, mem.Initialize(ctx))

		written, err := mem.StoreBars(ctx, []models.SecondBar{
			testBar("NQZ24", base),
			testBar("NQZ24", base.Add(time.Second)),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, written)
		assert.Equal(t, 2, mem.BarCount())
	})

	t.Run("resending a batch upserts instead of duplicating", func(t *testing.T) {
		mem := NewMemoryStorage()

		batch := []models.SecondBar{testBar("NQZ24", base)}
		_, err := mem.StoreBars(ctx, batch)
		require.NoError(t, err)

		// Same key, new close: the row is replaced.
		batch[0].Close = decimal.RequireFromString("100.5")
		batch[0].High = decimal.RequireFromString("101")
		_, err = mem.StoreBars(ctx, batch)
		require.NoError(t, err)

		require.Equal(t, 1, mem.BarCount())
		bars := mem.BarsFor("NQZ24")
		require.Len(t, bars, 1)
		assert.True(t, bars[0].Close.Equal(decimal.RequireFromString("100.5")))
	})

	t.Run("same second different contracts kept apart", func(t *testing.T) {
		mem := NewMemoryStorage()

		_, err := mem.StoreBars(ctx, []models.SecondBar{
			testBar("NQZ24", base),
			testBar("ESZ24", base),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, mem.BarCount())
	})

	t.Run("invalid bar rejects whole batch", func(t *testing.T) {
		mem := NewMemoryStorage()

		bad := testBar("NQZ24", base)
		bad.TickCount = 0

		written, err := mem.StoreBars(ctx, []models.SecondBar{testBar("NQZ24", base.Add(time.Second)), bad})
		require.Error(t, err)
		assert.Zero(t, written)
		assert.Zero(t, mem.BarCount())

		var serr *StorageError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "insert", serr.Operation)
		assert.Equal(t, "second_bars", serr.Table)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		mem := NewMemoryStorage()
		written, err := mem.StoreBars(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, written)
	})

	t.Run("closed storage rejects writes", func(t *testing.T) {
		mem := NewMemoryStorage()
		require.NoError(t, mem.Close())

		_, err := mem.StoreBars(ctx, []models.SecondBar{testBar("NQZ24", base)})
		assert.Error(t, err)
		assert.Error(t, mem.HealthCheck(ctx))
	})
}

func TestMemoryStorageBarsOrdering(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStorage()
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	_, err := mem.StoreBars(ctx, []models.SecondBar{
		testBar("NQZ24", base.Add(2*time.Second)),
		testBar("ESZ24", base),
		testBar("NQZ24", base),
	})
	require.NoError(t, err)

	bars := mem.Bars()
	require.Len(t, bars, 3)
	assert.Equal(t, "ESZ24", bars[0].Contract)
	assert.Equal(t, "NQZ24", bars[1].Contract)
	assert.Equal(t, base.Add(2*time.Second), bars[2].Timestamp)
}

func TestMemoryStorageStoreTick(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStorage()
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	tick := models.TickEvent{
		Timestamp: base,
		Symbol:    "NQ",
		Contract:  "NQZ24",
		Exchange:  "CME",
		Price:     decimal.RequireFromString("100"),
		Size:      1,
		Kind:      models.TickTrade,
	}
	require.NoError(t, mem.StoreTick(ctx, tick))
	assert.Len(t, mem.Ticks(), 1)

	tick.Kind = models.TickKind("bogus")
	assert.Error(t, mem.StoreTick(ctx, tick))
}

func TestStorageError(t *testing.T) {
	inner := context.DeadlineExceeded
	err := NewInsertError("second_bars", inner)

	assert.Contains(t, err.Error(), "insert")
	assert.Contains(t, err.Error(), "second_bars")
	assert.ErrorIs(t, err, inner)
}
