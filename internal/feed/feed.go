// Package feed defines the interfaces for the market-data feed the
// collector consumes. The real proprietary trading-data API lives behind
// these interfaces; the package ships a simulated implementation for local
// runs and tests.
//
// The interfaces are small and composable. Tick delivery is push-based:
// the feed invokes the subscriber's handler synchronously for every
// inbound message, so handlers must be O(1) and must never block.
package feed

import (
	"context"
	"errors"
	"time"

	"github.com/johnayoung/go-tick-collector/internal/models"
)

// ErrConnectionFailed indicates the feed session could not be established
// (timeout or credential rejection). This is the one fatal condition in
// the pipeline: nothing downstream can function without a session.
var ErrConnectionFailed = errors.New("feed: connection failed")

// ErrNotConnected indicates an operation that requires an established
// session was attempted without one.
var ErrNotConnected = errors.New("feed: not connected")

// Credentials carries the feed login parameters.
type Credentials struct {
	User       string
	Password   string
	SystemName string
	Gateway    string
	AppName    string
}

// TickHandler receives one tick event per inbound feed message. The feed
// calls it synchronously; implementations must not perform I/O or block.
type TickHandler func(models.TickEvent)

// Connector manages the feed session lifecycle.
type Connector interface {
	// Connect establishes the feed session. Idempotent: connecting an
	// already-connected feed is a no-op. Returns an error wrapping
	// ErrConnectionFailed on timeout or credential rejection.
	Connect(ctx context.Context) error

	// Disconnect tears down the session and stops all subscriptions.
	Disconnect(ctx context.Context) error

	// Connected reports whether a session is currently established.
	Connected() bool
}

// Subscriber registers interest in a contract's tick stream.
type Subscriber interface {
	// Subscribe starts delivering the contract's ticks of the requested
	// kinds to the handler. Returns an error if no session is established
	// or the contract cannot be subscribed.
	Subscribe(ctx context.Context, contract string, kinds []models.TickKind, handler TickHandler) error

	// Unsubscribe stops tick delivery for the contract. Messages already
	// in flight may still reach the handler after Unsubscribe returns.
	Unsubscribe(ctx context.Context, contract string) error
}

// HistoricalFetcher retrieves historical bars. Only the out-of-scope bulk
// downloader consumes this capability; it is declared here so feed
// implementations expose one coherent surface.
type HistoricalFetcher interface {
	// HistoricalBars returns bars for the contract over [start, end) at
	// the given bar size, oldest first.
	HistoricalBars(ctx context.Context, contract, exchange string, start, end time.Time, barSize time.Duration) ([]models.SecondBar, error)
}

// TickFeed combines the capabilities the collector needs.
type TickFeed interface {
	Connector
	Subscriber
}
