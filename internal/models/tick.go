// Package models provides the data structures for futures tick collection.
// This package contains the core types that flow through the pipeline:
// raw tick events from the feed and the second-resolution bars produced
// by aggregation.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TickKind identifies what a tick event describes: an executed trade or
// one side of a bid/ask quote update.
type TickKind string

const (
	// TickTrade is an executed trade with a price and size.
	TickTrade TickKind = "trade"
	// TickBid is a bid-side quote update.
	TickBid TickKind = "bid"
	// TickAsk is an ask-side quote update.
	TickAsk TickKind = "ask"
)

// Valid reports whether the kind is one of the known tick kinds.
func (k TickKind) Valid() bool {
	switch k {
	case TickTrade, TickBid, TickAsk:
		return true
	}
	return false
}

// TickEvent represents one observed trade or quote update for a single
// futures contract. Events are created by the feed adapter on every inbound
// message and consumed immediately by the collector's dispatch step; they
// are not retained once folded into a SecondBar.
type TickEvent struct {
	// Timestamp is the feed-supplied event time, or the local receipt time
	// when the feed did not provide one.
	Timestamp time.Time `json:"timestamp"`

	// Symbol is the base instrument symbol (e.g. "NQ").
	Symbol string `json:"symbol"`

	// Contract is the full contract code (e.g. "NQZ24").
	Contract string `json:"contract"`

	// Exchange is the listing exchange (e.g. "CME").
	Exchange string `json:"exchange"`

	// Price is the trade price or quoted price depending on Kind.
	Price decimal.Decimal `json:"price"`

	// Size is the trade size; zero is permitted for quote-only updates.
	Size int64 `json:"size"`

	// Kind tags the event as a trade, bid, or ask.
	Kind TickKind `json:"kind"`

	// ExchangeTimestamp is the optional feed-side event time.
	ExchangeTimestamp *time.Time `json:"exchange_timestamp,omitempty"`

	// Sequence is the optional monotonic feed counter used for ordering
	// and de-duplication diagnostics.
	Sequence *int64 `json:"sequence,omitempty"`
}

// Validate checks the tick against the ingest invariants: a known kind,
// a positive price on trades, and a non-negative size.
// Returns a ValidationError describing the first violation found.
func (t *TickEvent) Validate() error {
	if t.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "timestamp cannot be zero"}
	}
	if t.Contract == "" {
		return &ValidationError{Field: "contract", Message: "contract cannot be empty"}
	}
	if !t.Kind.Valid() {
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown tick kind %q", string(t.Kind))}
	}
	if t.Kind == TickTrade && !t.Price.IsPositive() {
		return &ValidationError{Field: "price", Message: "trade price must be greater than 0"}
	}
	if t.Size < 0 {
		return &ValidationError{Field: "size", Message: "size must be greater than or equal to 0"}
	}
	return nil
}

// BucketSecond returns the tick's timestamp truncated to the whole second,
// which is the aggregation bucket the tick belongs to.
func (t *TickEvent) BucketSecond() time.Time {
	return t.Timestamp.Truncate(time.Second)
}

// String returns a compact human-readable representation of the tick.
func (t *TickEvent) String() string {
	return fmt.Sprintf("Tick{%s %s %s @%s x%d %s}",
		t.Contract, t.Exchange, t.Kind, t.Price, t.Size, t.Timestamp.Format(time.RFC3339Nano))
}

// ValidationError represents a model validation failure with field context.
type ValidationError struct {
	Field   string // Field is the name of the field that failed validation
	Message string // Message describes the validation failure
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}
