package collector

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnayoung/go-tick-collector/internal/market"
	"github.com/johnayoung/go-tick-collector/internal/models"
)

// aggregator converts one contract's pending ticks into second bars. It is
// pure in-memory computation: no I/O, no suspension.
type aggregator struct {
	calendar *market.Calendar
	logger   *slog.Logger
}

// secondGroup collects the ticks of one wall-clock second in arrival
// order.
type secondGroup struct {
	second time.Time
	ticks  []models.TickEvent
}

// aggregate partitions ticks by their timestamp truncated to whole seconds
// and emits one SecondBar per second that contained at least one valid
// trade tick. Groups are processed in ascending order of first appearance;
// ticks arriving slightly out of order land in the right bucket, but no
// re-sorting beyond the grouping pass is performed. Quote-only seconds
// produce no bar.
//
// bid and ask are the contract's carried-forward quote state sampled at
// drain time; they are stamped onto every emitted bar, not bucketed.
//
// Returns the emitted bars and the number of malformed ticks dropped.
func (a *aggregator) aggregate(ticks []models.TickEvent, bid, ask *decimal.Decimal) ([]models.SecondBar, int) {
	if len(ticks) == 0 {
		return nil, 0
	}

	groups := make(map[int64]*secondGroup)
	var order []*secondGroup

	for i := range ticks {
		second := ticks[i].BucketSecond()
		key := second.UnixNano()
		g, ok := groups[key]
		if !ok {
			g = &secondGroup{second: second}
			groups[key] = g
			order = append(order, g)
		}
		g.ticks = append(g.ticks, ticks[i])
	}

	var bars []models.SecondBar
	malformed := 0

	for _, g := range order {
		bar, dropped := a.aggregateGroup(g, bid, ask)
		malformed += dropped
		if bar != nil {
			bars = append(bars, *bar)
		}
	}

	return bars, malformed
}

// aggregateGroup folds one second-group into a bar, or nil when the group
// held no valid trade tick. Malformed trades (non-positive price, negative
// size) are dropped with a warning and do not abort the rest of the group.
func (a *aggregator) aggregateGroup(g *secondGroup, bid, ask *decimal.Decimal) (*models.SecondBar, int) {
	var trades []models.TickEvent
	malformed := 0

	for i := range g.ticks {
		if g.ticks[i].Kind != models.TickTrade {
			continue
		}
		if err := g.ticks[i].Validate(); err != nil {
			malformed++
			a.logger.Warn("dropping malformed trade tick",
				"contract", g.ticks[i].Contract,
				"second", g.second,
				"error", err)
			continue
		}
		trades = append(trades, g.ticks[i])
	}

	if len(trades) == 0 {
		return nil, malformed
	}

	first := &trades[0]

	// Open and close follow arrival order: sub-second ordering is not
	// guaranteed by the feed, so the earliest and latest arrivals stand in
	// for the second's first and last trades.
	open := first.Price
	closePrice := trades[len(trades)-1].Price
	high := first.Price
	low := first.Price

	var volume int64
	notional := decimal.Zero

	for i := range trades {
		price := trades[i].Price
		if price.GreaterThan(high) {
			high = price
		}
		if price.LessThan(low) {
			low = price
		}
		volume += trades[i].Size
		notional = notional.Add(price.Mul(decimal.NewFromInt(trades[i].Size)))
	}

	vwap := closePrice
	if volume > 0 {
		vwap = notional.Div(decimal.NewFromInt(volume))
	}

	var spread *decimal.Decimal
	if bid != nil && ask != nil {
		s := ask.Sub(*bid)
		spread = &s
	}

	bar := &models.SecondBar{
		Timestamp: g.second,
		Symbol:    first.Symbol,
		Contract:  first.Contract,
		Exchange:  first.Exchange,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		TickCount: len(trades),
		VWAP:      vwap,
		Bid:       bid,
		Ask:       ask,
		Spread:    spread,
	}
	bar.QualityScore = bar.ComputeQualityScore()
	bar.IsRegularHours = a.calendar.IsRegularHours(g.second)

	return bar, malformed
}
