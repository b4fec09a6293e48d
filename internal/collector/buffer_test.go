package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-tick-collector/internal/models"
)

func TestBufferAppendTracksQuoteState(t *testing.T) {
	buf := newInstrumentBuffer("NQZ24")
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	assert.Equal(t, 1, buf.append(quote(base, models.TickBid, "99.75")))
	assert.Equal(t, 2, buf.append(quote(base, models.TickAsk, "100.25")))
	assert.Equal(t, 3, buf.append(trade(base, "100", 1)))

	ticks, bid, ask := buf.takePending(false, base.Add(5*time.Second))
	assert.Len(t, ticks, 3)
	require.NotNil(t, bid)
	require.NotNil(t, ask)
	assert.True(t, bid.Equal(dec("99.75")))
	assert.True(t, ask.Equal(dec("100.25")))
}

func TestBufferQuoteStateSurvivesDrain(t *testing.T) {
	buf := newInstrumentBuffer("NQZ24")
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	buf.append(quote(base, models.TickBid, "99.75"))
	buf.takePending(false, base.Add(5*time.Second))

	// The carried-forward quote applies to later seconds even though the
	// quote tick itself is gone.
	buf.append(trade(base.Add(3*time.Second), "100", 1))
	ticks, bid, _ := buf.takePending(false, base.Add(10*time.Second))
	assert.Len(t, ticks, 1)
	require.NotNil(t, bid)
	assert.True(t, bid.Equal(dec("99.75")))
}

func TestBufferHoldLastSecond(t *testing.T) {
	buf := newInstrumentBuffer("NQZ24")
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	buf.append(trade(base.Add(100*time.Millisecond), "100", 1))
	buf.append(trade(base.Add(time.Second), "101", 1))
	buf.append(trade(base.Add(time.Second+200*time.Millisecond), "102", 1))

	// Second 11 has not fully elapsed: its ticks stay behind.
	now := base.Add(time.Second + 500*time.Millisecond)
	ticks, _, _ := buf.takePending(true, now)
	require.Len(t, ticks, 1)
	assert.True(t, ticks[0].Price.Equal(dec("100")))
	assert.Equal(t, 2, buf.pendingLen())

	// Once the second has elapsed the held ticks drain normally.
	ticks, _, _ = buf.takePending(true, base.Add(3*time.Second))
	assert.Len(t, ticks, 2)
	assert.Zero(t, buf.pendingLen())
}

func TestBufferHoldLastIgnoredOnFinalDrain(t *testing.T) {
	buf := newInstrumentBuffer("NQZ24")
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	buf.append(trade(base, "100", 1))
	buf.append(trade(base.Add(time.Second), "101", 1))

	ticks, _, _ := buf.takePending(false, base)
	assert.Len(t, ticks, 2)
	assert.Zero(t, buf.pendingLen())
}

func TestBufferHoldLastAllTicksInCurrentSecond(t *testing.T) {
	buf := newInstrumentBuffer("NQZ24")
	base := time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC)

	buf.append(trade(base.Add(100*time.Millisecond), "100", 1))
	buf.append(trade(base.Add(300*time.Millisecond), "101", 1))

	ticks, _, _ := buf.takePending(true, base.Add(600*time.Millisecond))
	assert.Empty(t, ticks)
	assert.Equal(t, 2, buf.pendingLen())
}

func TestBufferTakeBarsThreshold(t *testing.T) {
	buf := newInstrumentBuffer("NQZ24")

	bars := []models.SecondBar{validStoredBar(time.Date(2024, 11, 19, 10, 0, 10, 0, time.UTC))}
	assert.Equal(t, 1, buf.appendBars(bars))

	assert.Nil(t, buf.takeBars(2), "below threshold")
	assert.Len(t, buf.takeBars(1), 1)
	assert.Nil(t, buf.takeBars(0), "already drained")
}
