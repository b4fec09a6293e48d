package collector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnayoung/go-tick-collector/internal/models"
)

// instrumentBuffer holds one contract's pending ticks, its carried-forward
// quote state, and its aggregated-but-unflushed output bars. A buffer is
// owned exclusively by the collector for the contract's lifetime, from
// subscribe to unsubscribe.
//
// The mutex guards pending/quote state against the dispatch path; the
// aggregating flag serializes aggregation per contract so a scheduled run
// is skipped while a backpressure-triggered run is still in flight.
type instrumentBuffer struct {
	contract string

	mu      sync.Mutex
	pending []models.TickEvent
	lastBid *decimal.Decimal
	lastAsk *decimal.Decimal

	barMu sync.Mutex
	bars  []models.SecondBar

	aggregating atomic.Bool
}

func newInstrumentBuffer(contract string) *instrumentBuffer {
	return &instrumentBuffer{contract: contract}
}

// append adds a tick in arrival order, updates the carried-forward quote
// state for bid/ask events, and returns the new pending count. O(1), no
// I/O: safe to call from the feed's synchronous delivery path.
func (b *instrumentBuffer) append(tick models.TickEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, tick)

	switch tick.Kind {
	case models.TickBid:
		p := tick.Price
		b.lastBid = &p
	case models.TickAsk:
		p := tick.Price
		b.lastAsk = &p
	}

	return len(b.pending)
}

// pendingLen returns the current pending tick count.
func (b *instrumentBuffer) pendingLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// takePending removes and returns the ticks ready for aggregation along
// with the quote state sampled at drain time.
//
// When holdLast is set, ticks belonging to the most recent second are left
// in the buffer if that second has not fully elapsed as of now: they may
// still receive late siblings, and draining them would split one
// wall-clock second's trades across two aggregation passes. A final drain
// (holdLast false) takes everything.
func (b *instrumentBuffer) takePending(holdLast bool, now time.Time) ([]models.TickEvent, *decimal.Decimal, *decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bid, ask := b.lastBid, b.lastAsk

	if len(b.pending) == 0 {
		return nil, bid, ask
	}

	taken := b.pending
	if holdLast {
		var last time.Time
		for i := range taken {
			if s := taken[i].BucketSecond(); s.After(last) {
				last = s
			}
		}
		if last.Add(time.Second).After(now) {
			cut := len(taken)
			held := taken[:0:0]
			kept := make([]models.TickEvent, 0, cut)
			for i := range taken {
				if taken[i].BucketSecond().Equal(last) {
					held = append(held, taken[i])
				} else {
					kept = append(kept, taken[i])
				}
			}
			b.pending = held
			return kept, bid, ask
		}
	}

	b.pending = nil
	return taken, bid, ask
}

// appendBars adds aggregated bars to the output buffer and returns its new
// length.
func (b *instrumentBuffer) appendBars(bars []models.SecondBar) int {
	b.barMu.Lock()
	defer b.barMu.Unlock()
	b.bars = append(b.bars, bars...)
	return len(b.bars)
}

// takeBars removes and returns the buffered bars if at least min are
// waiting; min of zero drains unconditionally. Bars are owned by the
// caller afterwards: a failed flush must route them to fallback storage
// rather than re-queue.
func (b *instrumentBuffer) takeBars(min int) []models.SecondBar {
	b.barMu.Lock()
	defer b.barMu.Unlock()
	if len(b.bars) == 0 || len(b.bars) < min {
		return nil
	}
	bars := b.bars
	b.bars = nil
	return bars
}
