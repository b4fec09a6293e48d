package collector

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-tick-collector/internal/market"
	"github.com/johnayoung/go-tick-collector/internal/models"
)

func newTestAggregator() *aggregator {
	return &aggregator{
		calendar: market.NewCalendar(""),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func trade(at time.Time, price string, size int64) models.TickEvent {
	return models.TickEvent{
		Timestamp: at,
		Symbol:    "NQ",
		Contract:  "NQZ24",
		Exchange:  "CME",
		Price:     dec(price),
		Size:      size,
		Kind:      models.TickTrade,
	}
}

func quote(at time.Time, kind models.TickKind, price string) models.TickEvent {
	return models.TickEvent{
		Timestamp: at,
		Symbol:    "NQ",
		Contract:  "NQZ24",
		Exchange:  "CME",
		Price:     dec(price),
		Size:      0,
		Kind:      kind,
	}
}

func TestAggregateGroupsBySecond(t *testing.T) {
	agg := newTestAggregator()
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	ticks := []models.TickEvent{
		trade(base.Add(100*time.Millisecond), "100", 5),
		trade(base.Add(700*time.Millisecond), "101", 3),
		trade(base.Add(time.Second), "102", 1),
	}

	bars, malformed := agg.aggregate(ticks, nil, nil)
	require.Len(t, bars, 2)
	assert.Zero(t, malformed)

	first := bars[0]
	assert.Equal(t, base, first.Timestamp)
	assert.True(t, first.Open.Equal(dec("100")), "open %s", first.Open)
	assert.True(t, first.High.Equal(dec("101")), "high %s", first.High)
	assert.True(t, first.Low.Equal(dec("100")), "low %s", first.Low)
	assert.True(t, first.Close.Equal(dec("101")), "close %s", first.Close)
	assert.Equal(t, int64(8), first.Volume)
	assert.Equal(t, 2, first.TickCount)
	assert.True(t, first.VWAP.Equal(dec("100.375")), "vwap %s", first.VWAP)

	second := bars[1]
	assert.Equal(t, base.Add(time.Second), second.Timestamp)
	assert.True(t, second.Open.Equal(dec("102")))
	assert.True(t, second.High.Equal(dec("102")))
	assert.True(t, second.Low.Equal(dec("102")))
	assert.True(t, second.Close.Equal(dec("102")))
	assert.Equal(t, int64(1), second.Volume)
	assert.Equal(t, 1, second.TickCount)
	assert.True(t, second.VWAP.Equal(dec("102")))
}

func TestAggregateOpenCloseFollowArrivalOrder(t *testing.T) {
	agg := newTestAggregator()
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	// The later-stamped tick arrives first within the same second.
	ticks := []models.TickEvent{
		trade(base.Add(900*time.Millisecond), "105", 1),
		trade(base.Add(100*time.Millisecond), "95", 1),
	}

	bars, _ := agg.aggregate(ticks, nil, nil)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Open.Equal(dec("105")))
	assert.True(t, bars[0].Close.Equal(dec("95")))
	assert.True(t, bars[0].High.Equal(dec("105")))
	assert.True(t, bars[0].Low.Equal(dec("95")))
}

func TestAggregateQuoteOnlySecondEmitsNoBar(t *testing.T) {
	agg := newTestAggregator()
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	ticks := []models.TickEvent{
		quote(base, models.TickBid, "99.75"),
		quote(base.Add(200*time.Millisecond), models.TickAsk, "100.25"),
		trade(base.Add(time.Second), "100", 2),
	}

	bars, malformed := agg.aggregate(ticks, nil, nil)
	require.Len(t, bars, 1)
	assert.Zero(t, malformed)
	assert.Equal(t, base.Add(time.Second), bars[0].Timestamp)
}

func TestAggregateStampsQuoteState(t *testing.T) {
	agg := newTestAggregator()
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	bid := decPtr("99.75")
	ask := decPtr("100.25")

	bars, _ := agg.aggregate([]models.TickEvent{trade(base, "100", 1)}, bid, ask)
	require.Len(t, bars, 1)

	require.NotNil(t, bars[0].Bid)
	require.NotNil(t, bars[0].Ask)
	require.NotNil(t, bars[0].Spread)
	assert.True(t, bars[0].Bid.Equal(dec("99.75")))
	assert.True(t, bars[0].Ask.Equal(dec("100.25")))
	assert.True(t, bars[0].Spread.Equal(dec("0.5")))
}

func TestAggregateSpreadRequiresBothSides(t *testing.T) {
	agg := newTestAggregator()
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	bars, _ := agg.aggregate([]models.TickEvent{trade(base, "100", 1)}, decPtr("99.75"), nil)
	require.Len(t, bars, 1)
	assert.Nil(t, bars[0].Spread)
	assert.Nil(t, bars[0].Ask)
}

func TestAggregateDropsMalformedTrades(t *testing.T) {
	agg := newTestAggregator()
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	bad := trade(base.Add(100*time.Millisecond), "100", 5)
	bad.Price = decimal.Zero

	ticks := []models.TickEvent{
		bad,
		trade(base.Add(300*time.Millisecond), "101", 3),
	}

	bars, malformed := agg.aggregate(ticks, nil, nil)
	require.Len(t, bars, 1)
	assert.Equal(t, 1, malformed)
	assert.Equal(t, int64(3), bars[0].Volume)
	assert.Equal(t, 1, bars[0].TickCount)
	assert.True(t, bars[0].Open.Equal(dec("101")))
}

func TestAggregateZeroVolumeVWAPFallsBackToClose(t *testing.T) {
	agg := newTestAggregator()
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	bars, _ := agg.aggregate([]models.TickEvent{trade(base, "100.25", 0)}, nil, nil)
	require.Len(t, bars, 1)
	assert.Zero(t, bars[0].Volume)
	assert.True(t, bars[0].VWAP.Equal(dec("100.25")))
}

func TestAggregateEmptyInput(t *testing.T) {
	agg := newTestAggregator()
	bars, malformed := agg.aggregate(nil, nil, nil)
	assert.Nil(t, bars)
	assert.Zero(t, malformed)
}

func TestAggregateBarInvariantsHold(t *testing.T) {
	agg := newTestAggregator()
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	prices := []string{"100", "102.5", "99.25", "101", "100.5"}
	var ticks []models.TickEvent
	for i, p := range prices {
		ticks = append(ticks, trade(base.Add(time.Duration(i)*150*time.Millisecond), p, 2))
	}

	bars, _ := agg.aggregate(ticks, nil, nil)
	require.Len(t, bars, 1)
	bar := bars[0]

	require.NoError(t, bar.Validate())
	assert.True(t, bar.High.GreaterThanOrEqual(bar.Open))
	assert.True(t, bar.High.GreaterThanOrEqual(bar.Close))
	assert.True(t, bar.Low.LessThanOrEqual(bar.Open))
	assert.True(t, bar.Low.LessThanOrEqual(bar.Close))
	assert.InDelta(t, 1.0, bar.QualityScore, 1e-9)
}
