package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SecondBar is the aggregated OHLCV record for one contract for one
// wall-clock second. Bars are created by the aggregator for every second
// that contained at least one trade tick, held in the contract's output
// buffer, and cleared after a successful flush.
type SecondBar struct {
	// Timestamp is the bucket start, truncated to the whole second.
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// Symbol is the base instrument symbol (e.g. "NQ").
	Symbol string `json:"symbol" db:"symbol"`

	// Contract is the full contract code (e.g. "NQZ24").
	Contract string `json:"contract" db:"contract"`

	// Exchange is the listing exchange (e.g. "CME").
	Exchange string `json:"exchange" db:"exchange"`

	Open  decimal.Decimal `json:"open" db:"open"`
	High  decimal.Decimal `json:"high" db:"high"`
	Low   decimal.Decimal `json:"low" db:"low"`
	Close decimal.Decimal `json:"close" db:"close"`

	// Volume is the sum of trade sizes in the bucket.
	Volume int64 `json:"volume" db:"volume"`

	// TickCount is the number of trade ticks folded into the bar.
	TickCount int `json:"tick_count" db:"tick_count"`

	// VWAP is the volume-weighted average trade price over the bucket,
	// falling back to Close when the bucket's volume is zero.
	VWAP decimal.Decimal `json:"vwap" db:"vwap"`

	// Bid and Ask are the latest known quote as of bucket close. They are
	// sampled from the carried-forward quote state, not bucketed, and may
	// be nil when no quote has been observed yet.
	Bid *decimal.Decimal `json:"bid,omitempty" db:"bid"`
	Ask *decimal.Decimal `json:"ask,omitempty" db:"ask"`

	// Spread is Ask - Bid when both sides are known, else nil.
	Spread *decimal.Decimal `json:"spread,omitempty" db:"spread"`

	// QualityScore is advisory data-quality metadata in [0, 1]. It never
	// gates insertion; low-quality bars are still stored.
	QualityScore float64 `json:"data_quality_score" db:"data_quality_score"`

	// IsRegularHours labels the bar with the best-effort market-hours
	// classification of its timestamp.
	IsRegularHours bool `json:"is_regular_hours" db:"is_regular_hours"`
}

// Validate checks the bar's internal consistency: required identity fields,
// low <= min(open, close) <= max(open, close) <= high, and a non-negative
// volume. Returns a ValidationError describing the first violation found.
func (b *SecondBar) Validate() error {
	if b.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "timestamp cannot be zero"}
	}
	if b.Symbol == "" {
		return &ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if b.Contract == "" {
		return &ValidationError{Field: "contract", Message: "contract cannot be empty"}
	}
	if b.Volume < 0 {
		return &ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}
	if b.TickCount <= 0 {
		return &ValidationError{Field: "tick_count", Message: "bar must contain at least one trade tick"}
	}

	maxOpenClose := decimal.Max(b.Open, b.Close)
	if b.High.LessThan(maxOpenClose) {
		return &ValidationError{
			Field:   "high",
			Message: fmt.Sprintf("high (%s) must be greater than or equal to max(open, close) (%s)", b.High, maxOpenClose),
		}
	}

	minOpenClose := decimal.Min(b.Open, b.Close)
	if b.Low.GreaterThan(minOpenClose) {
		return &ValidationError{
			Field:   "low",
			Message: fmt.Sprintf("low (%s) must be less than or equal to min(open, close) (%s)", b.Low, minOpenClose),
		}
	}

	return nil
}

// ComputeQualityScore derives the advisory data-quality score for the bar.
// Starting from 1.0, the score is reduced by 0.2 for each OHLC field equal
// to zero, by 0.3 for an internal OHLC consistency violation, and by 0.1
// for zero volume, with a floor of 0.0.
func (b *SecondBar) ComputeQualityScore() float64 {
	score := 1.0

	for _, p := range []decimal.Decimal{b.Open, b.High, b.Low, b.Close} {
		if p.IsZero() {
			score -= 0.2
		}
	}

	if b.High.LessThan(decimal.Max(b.Open, b.Close)) || b.Low.GreaterThan(decimal.Min(b.Open, b.Close)) {
		score -= 0.3
	}

	if b.Volume == 0 {
		score -= 0.1
	}

	if score < 0 {
		score = 0
	}
	return score
}

// String returns a human-readable representation of the bar, implementing
// the fmt.Stringer interface.
func (b *SecondBar) String() string {
	return fmt.Sprintf("SecondBar{%s %s %s O:%s H:%s L:%s C:%s V:%d N:%d VWAP:%s}",
		b.Contract, b.Exchange, b.Timestamp.Format(time.RFC3339),
		b.Open, b.High, b.Low, b.Close, b.Volume, b.TickCount, b.VWAP)
}

// Key returns the storage conflict key for the bar. Re-sending a bar with
// an identical key must upsert rather than duplicate.
func (b *SecondBar) Key() string {
	return fmt.Sprintf("%d|%s|%s|%s", b.Timestamp.Unix(), b.Symbol, b.Contract, b.Exchange)
}
