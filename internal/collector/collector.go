// Package collector implements the tick ingestion pipeline: inbound
// trade/quote events are routed to per-contract buffers, aggregated into
// second bars on a fixed one-second cadence, and flushed to time-series
// storage in batches, with file fallback when the store is unreachable.
//
// Dispatch is O(1) and never performs I/O or aggregation inline; the
// periodic cycle is the pipeline's conceptual tick, so aggregation cost
// stays bounded and predictable regardless of burst rate. The only
// backpressure valve is the per-contract pending ceiling, which triggers
// an out-of-cycle aggregation pass; nothing slows the upstream feed.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/johnayoung/go-tick-collector/internal/feed"
	"github.com/johnayoung/go-tick-collector/internal/market"
	"github.com/johnayoung/go-tick-collector/internal/models"
	"github.com/johnayoung/go-tick-collector/internal/storage"
)

// Configuration defaults.
const (
	// DefaultBufferCeiling is the pending-tick count that triggers an
	// out-of-cycle aggregation pass for a contract.
	DefaultBufferCeiling = 1000

	// DefaultFlushThreshold is the number of buffered bars that triggers
	// a flush, roughly one buffer-minute at one bar per second.
	DefaultFlushThreshold = 60

	// DefaultCycleInterval is the periodic aggregation cadence.
	DefaultCycleInterval = time.Second

	// DefaultConnectTimeout bounds one feed session attempt.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultConnectRetries is the number of connect attempts before the
	// failure propagates to the caller.
	DefaultConnectRetries = 3

	// DefaultAuditRate caps raw-tick audit writes per second.
	DefaultAuditRate = 100
)

// Sentinel errors for collector lifecycle misuse.
var (
	ErrNotConnected   = errors.New("collector: not connected to feed")
	ErrAlreadyRunning = errors.New("collector: already running")
	ErrNotRunning     = errors.New("collector: not running")
)

// Config configures the collector's behavior.
type Config struct {
	// BufferCeiling is the per-contract pending-tick backpressure
	// threshold.
	BufferCeiling int

	// FlushThreshold is the per-contract bar count that triggers a flush.
	FlushThreshold int

	// CycleInterval is the periodic aggregation cadence.
	CycleInterval time.Duration

	// HoldLastSecond keeps the most recent, possibly still-filling
	// second's ticks in the buffer on periodic passes so one wall-clock
	// second is never split across two aggregation passes.
	HoldLastSecond bool

	// RawTickAudit enables the best-effort individual-tick persistence
	// path for audit/backtesting.
	RawTickAudit bool

	// AuditRate caps audit writes per second.
	AuditRate float64

	// ConnectTimeout bounds one feed session attempt.
	ConnectTimeout time.Duration

	// ConnectRetries is the number of connect attempts.
	ConnectRetries int

	// Timezone is the exchange-local zone for market-hours labeling.
	Timezone string

	Logger *slog.Logger
}

// DefaultConfig returns a configuration with the pipeline defaults.
func DefaultConfig() *Config {
	return &Config{
		BufferCeiling:  DefaultBufferCeiling,
		FlushThreshold: DefaultFlushThreshold,
		CycleInterval:  DefaultCycleInterval,
		HoldLastSecond: true,
		AuditRate:      DefaultAuditRate,
		ConnectTimeout: DefaultConnectTimeout,
		ConnectRetries: DefaultConnectRetries,
		Timezone:       market.DefaultTimezone,
		Logger:         slog.Default(),
	}
}

// Collector owns the subscription lifecycle for a set of contracts, routes
// every inbound tick to the right per-contract buffer, and drives the
// periodic aggregation and flush cycle.
type Collector struct {
	config     *Config
	feed       feed.TickFeed
	tickStore  storage.TickStorer
	flusher    *flusher
	aggregator *aggregator

	mu      sync.RWMutex
	buffers map[string]*instrumentBuffer

	sessionID    string
	counters     statsCounters
	isRunning    atomic.Bool
	isConnected  atomic.Bool
	shutdownCh   chan struct{}
	wg           sync.WaitGroup
	auditLimiter *rate.Limiter
	logger       *slog.Logger

	// now is the clock; replaced in tests.
	now func() time.Time
}

// New creates a collector. barStore receives aggregated bars; tickStore is
// the optional raw-tick audit sink and may be nil; fallback receives
// batches the store rejected.
func New(tickFeed feed.TickFeed, barStore storage.BarStorer, tickStore storage.TickStorer, fallback *storage.FallbackWriter, config *Config) *Collector {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BufferCeiling <= 0 {
		config.BufferCeiling = DefaultBufferCeiling
	}
	if config.FlushThreshold <= 0 {
		config.FlushThreshold = DefaultFlushThreshold
	}
	if config.CycleInterval <= 0 {
		config.CycleInterval = DefaultCycleInterval
	}
	if config.AuditRate <= 0 {
		config.AuditRate = DefaultAuditRate
	}

	c := &Collector{
		config:     config,
		feed:       tickFeed,
		tickStore:  tickStore,
		buffers:    make(map[string]*instrumentBuffer),
		sessionID:  uuid.NewString(),
		shutdownCh: make(chan struct{}),
		now:        time.Now,
	}
	c.logger = config.Logger.With("session_id", c.sessionID[:8])

	calendar := market.NewCalendar(config.Timezone)
	c.aggregator = &aggregator{calendar: calendar, logger: c.logger}
	c.flusher = &flusher{
		store:     barStore,
		fallback:  fallback,
		threshold: config.FlushThreshold,
		counters:  &c.counters,
		logger:    c.logger,
	}
	c.auditLimiter = rate.NewLimiter(rate.Limit(config.AuditRate), int(config.AuditRate))

	return c
}

// Connect establishes the feed session with exponential backoff between
// attempts. Idempotent: connecting an already-connected collector is a
// no-op. Failure to establish the session is the one fatal condition and
// propagates to the caller.
func (c *Collector) Connect(ctx context.Context) error {
	if c.isConnected.Load() {
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = time.Duration(c.config.ConnectRetries) * c.config.ConnectTimeout

	attempt := 0
	err := backoff.RetryNotify(
		func() error {
			attempt++
			attemptCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
			defer cancel()
			return c.feed.Connect(attemptCtx)
		},
		backoff.WithContext(policy, ctx),
		func(err error, delay time.Duration) {
			c.logger.Warn("feed connect attempt failed, retrying",
				"attempt", attempt,
				"retry_delay", delay,
				"error", err)
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %s", feed.ErrConnectionFailed, err)
	}

	c.isConnected.Store(true)
	c.counters.markStart(c.now())
	c.logger.Info("connected to market data feed")
	return nil
}

// Start registers interest in each contract and launches the periodic
// aggregation cycle. A failed subscription is isolated to its contract:
// it is logged and counted, and the remaining contracts proceed. Partial
// success is reported via statistics, not an error.
func (c *Collector) Start(ctx context.Context, contracts []string) error {
	if !c.isConnected.Load() {
		return ErrNotConnected
	}
	if !c.isRunning.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	kinds := []models.TickKind{models.TickTrade, models.TickBid, models.TickAsk}
	subscribed := 0

	for _, contract := range contracts {
		buf := newInstrumentBuffer(contract)
		c.mu.Lock()
		c.buffers[contract] = buf
		c.mu.Unlock()

		if err := c.feed.Subscribe(ctx, contract, kinds, c.Dispatch); err != nil {
			c.mu.Lock()
			delete(c.buffers, contract)
			c.mu.Unlock()
			c.counters.subscribeFailures.Add(1)
			c.logger.Error("failed to subscribe to contract",
				"contract", contract,
				"error", err)
			continue
		}

		subscribed++
		c.logger.Info("subscribed to tick data", "contract", contract)
	}

	c.wg.Add(1)
	go c.runPeriodicCycle(ctx)

	c.logger.Info("tick collection started",
		"contracts_requested", len(contracts),
		"contracts_subscribed", subscribed,
		"cycle_interval", c.config.CycleInterval,
		"buffer_ceiling", c.config.BufferCeiling,
		"flush_threshold", c.config.FlushThreshold)

	return nil
}

// Dispatch routes one inbound tick to its contract's buffer. It is O(1)
// and performs no I/O: the feed delivers events by invoking it
// synchronously. Events for contracts without a buffer (late messages
// after unsubscribe) are dropped silently.
func (c *Collector) Dispatch(event models.TickEvent) {
	c.mu.RLock()
	buf, ok := c.buffers[event.Contract]
	c.mu.RUnlock()

	if !ok {
		c.counters.droppedTicks.Add(1)
		return
	}

	pending := buf.append(event)
	c.counters.markTick(event.Timestamp)

	if c.tickStore != nil && c.config.RawTickAudit && c.auditLimiter.Allow() {
		go c.auditTick(event)
	}

	// Backpressure valve: don't let a bursting contract's buffer grow
	// unbounded waiting for the next scheduled pass.
	if pending >= c.config.BufferCeiling {
		go c.aggregateContract(context.Background(), buf, false, true)
	}
}

// auditTick persists one raw tick on the non-critical audit path.
// Failures are counted and logged at debug only.
func (c *Collector) auditTick(event models.TickEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.tickStore.StoreTick(ctx, event); err != nil {
		c.counters.auditWriteErrors.Add(1)
		c.logger.Debug("raw tick audit write failed",
			"contract", event.Contract,
			"error", err)
	}
}

// runPeriodicCycle drives aggregation once per cycle interval for every
// contract with pending ticks. The cadence is fixed, not tied to tick
// arrival.
func (c *Collector) runPeriodicCycle(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, buf := range c.activeBuffers() {
				if buf.pendingLen() > 0 {
					c.aggregateContract(ctx, buf, false, false)
				}
			}
		case <-c.shutdownCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// aggregateContract runs one aggregation pass for a contract and feeds the
// flusher. Aggregation for a single contract never runs concurrently with
// itself: a scheduled pass is skipped while another is in flight, except
// the final drain, which waits for the in-flight pass to finish.
func (c *Collector) aggregateContract(ctx context.Context, buf *instrumentBuffer, final, backpressure bool) {
	if !buf.aggregating.CompareAndSwap(false, true) {
		if !final {
			return
		}
		for !buf.aggregating.CompareAndSwap(false, true) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
	defer buf.aggregating.Store(false)

	// A backpressure-triggered pass drains everything: the ceiling can be
	// crossed inside a single second, and holding that second back would
	// defeat the valve.
	holdLast := c.config.HoldLastSecond && !final && !backpressure
	ticks, bid, ask := buf.takePending(holdLast, c.now())

	if len(ticks) > 0 {
		bars, malformed := c.aggregator.aggregate(ticks, bid, ask)
		if malformed > 0 {
			c.counters.malformedTicks.Add(int64(malformed))
		}
		if len(bars) > 0 {
			buf.appendBars(bars)
			c.counters.secondsAggregated.Add(int64(len(bars)))
		}
	}

	var err error
	if final {
		err = c.flusher.flushAll(ctx, buf)
	} else {
		err = c.flusher.maybeFlush(ctx, buf)
	}
	if err != nil && !errors.Is(err, ErrDegraded) {
		c.logger.Error("flush failed with data loss",
			"contract", buf.contract,
			"error", err)
	}
}

// Stop halts the periodic cycle, then performs one final aggregation and
// flush pass per contract. No pending tick or completed bar is silently
// dropped: everything dispatched before Stop ends up in storage or in a
// fallback file. Safe to call at any point; in-flight passes complete
// rather than being hard-cancelled.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.isRunning.CompareAndSwap(true, false) {
		return ErrNotRunning
	}

	c.logger.Info("stopping tick collection")
	close(c.shutdownCh)
	c.wg.Wait()

	for contract, buf := range c.snapshotBuffers() {
		if err := c.feed.Unsubscribe(ctx, contract); err != nil {
			c.logger.Warn("unsubscribe failed", "contract", contract, "error", err)
		}
		c.aggregateContract(ctx, buf, true, false)
	}

	stats := c.Stats()
	c.logger.Info("tick collection stopped",
		"ticks_received", stats.TicksReceived,
		"seconds_aggregated", stats.SecondsAggregated,
		"bars_flushed", stats.BarsFlushed,
		"fallback_batches", stats.FallbackBatches)

	return nil
}

// Disconnect tears down the feed session. Call after Stop.
func (c *Collector) Disconnect(ctx context.Context) error {
	if !c.isConnected.CompareAndSwap(true, false) {
		return nil
	}
	return c.feed.Disconnect(ctx)
}

// Running reports whether the collection cycle is active.
func (c *Collector) Running() bool {
	return c.isRunning.Load()
}

// Stats returns a snapshot of the collector's statistics.
func (c *Collector) Stats() Stats {
	stats := c.counters.snapshot(c.now())
	stats.SessionID = c.sessionID

	c.mu.RLock()
	stats.BufferSizes = make(map[string]int, len(c.buffers))
	for contract, buf := range c.buffers {
		stats.ActiveContracts = append(stats.ActiveContracts, contract)
		stats.BufferSizes[contract] = buf.pendingLen()
	}
	c.mu.RUnlock()

	sort.Strings(stats.ActiveContracts)
	return stats
}

// activeBuffers returns the current buffers without holding the map lock
// during aggregation.
func (c *Collector) activeBuffers() []*instrumentBuffer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*instrumentBuffer, 0, len(c.buffers))
	for _, buf := range c.buffers {
		out = append(out, buf)
	}
	return out
}

// snapshotBuffers returns a copy of the contract-to-buffer map.
func (c *Collector) snapshotBuffers() map[string]*instrumentBuffer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*instrumentBuffer, len(c.buffers))
	for contract, buf := range c.buffers {
		out[contract] = buf
	}
	return out
}
