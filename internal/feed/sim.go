package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/johnayoung/go-tick-collector/internal/market"
	"github.com/johnayoung/go-tick-collector/internal/models"
)

// SimConfig configures the simulated feed.
type SimConfig struct {
	// TicksPerSecond is the emission rate per subscribed contract.
	TicksPerSecond float64

	// StartPrice is the initial trade price for every contract.
	StartPrice decimal.Decimal

	// Seed makes the generated stream reproducible. Zero seeds from the
	// current time.
	Seed int64
}

// DefaultSimConfig returns a simulation profile resembling a moderately
// active index future.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		TicksPerSecond: 50,
		StartPrice:     decimal.NewFromInt(20000),
	}
}

// SimulatedFeed is an in-process TickFeed that emits a random-walk
// trade/quote stream per subscribed contract. It exists for local runs
// and integration tests; it honors the same push-delivery contract as the
// real feed adapter.
type SimulatedFeed struct {
	config SimConfig

	mu        sync.Mutex
	connected bool
	cancels   map[string]context.CancelFunc
	wg        sync.WaitGroup
}

// NewSimulatedFeed creates a simulated feed.
func NewSimulatedFeed(config SimConfig) *SimulatedFeed {
	if config.TicksPerSecond <= 0 {
		config.TicksPerSecond = DefaultSimConfig().TicksPerSecond
	}
	if config.StartPrice.IsZero() {
		config.StartPrice = DefaultSimConfig().StartPrice
	}
	return &SimulatedFeed{
		config:  config,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Connect implements Connector.Connect. Always succeeds; idempotent.
func (f *SimulatedFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

// Connected implements Connector.Connected.
func (f *SimulatedFeed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Disconnect implements Connector.Disconnect, stopping every stream.
func (f *SimulatedFeed) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	for contract, cancel := range f.cancels {
		cancel()
		delete(f.cancels, contract)
	}
	f.connected = false
	f.mu.Unlock()

	f.wg.Wait()
	return nil
}

// Subscribe implements Subscriber.Subscribe, launching a generator
// goroutine for the contract.
func (f *SimulatedFeed) Subscribe(ctx context.Context, contract string, kinds []models.TickKind, handler TickHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return ErrNotConnected
	}
	if _, ok := f.cancels[contract]; ok {
		return fmt.Errorf("feed: already subscribed to %s", contract)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	f.cancels[contract] = cancel

	wantKind := make(map[models.TickKind]bool, len(kinds))
	for _, k := range kinds {
		wantKind[k] = true
	}
	if len(kinds) == 0 {
		wantKind = map[models.TickKind]bool{models.TickTrade: true, models.TickBid: true, models.TickAsk: true}
	}

	seed := f.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	f.wg.Add(1)
	go f.stream(streamCtx, contract, wantKind, handler, seed)

	return nil
}

// Unsubscribe implements Subscriber.Unsubscribe.
func (f *SimulatedFeed) Unsubscribe(ctx context.Context, contract string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cancel, ok := f.cancels[contract]
	if !ok {
		return nil
	}
	cancel()
	delete(f.cancels, contract)
	return nil
}

// stream generates a random-walk tick sequence for one contract until its
// context is cancelled.
func (f *SimulatedFeed) stream(ctx context.Context, contract string, wantKind map[models.TickKind]bool, handler TickHandler, seed int64) {
	defer f.wg.Done()

	rng := rand.New(rand.NewSource(seed))
	limiter := rate.NewLimiter(rate.Limit(f.config.TicksPerSecond), 1)

	symbol := market.ExtractSymbol(contract)
	exchange := market.ExchangeFor(contract)
	tickSize := decimal.NewFromFloat(0.25)
	if spec, ok := market.Spec(symbol); ok {
		tickSize = decimal.NewFromFloat(spec.TickSize)
	}

	price := f.config.StartPrice
	var sequence int64

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		// Random walk: drift by up to two tick sizes either direction.
		steps := int64(rng.Intn(5)) - 2
		price = price.Add(tickSize.Mul(decimal.NewFromInt(steps)))
		if !price.IsPositive() {
			price = f.config.StartPrice
		}

		sequence++
		seq := sequence
		now := time.Now()

		ev := models.TickEvent{
			Timestamp: now,
			Symbol:    symbol,
			Contract:  contract,
			Exchange:  exchange,
			Price:     price,
			Kind:      models.TickTrade,
			Size:      int64(rng.Intn(10) + 1),
			Sequence:  &seq,
		}

		// Roughly one in four events is a quote update instead of a trade.
		switch rng.Intn(8) {
		case 0:
			ev.Kind = models.TickBid
			ev.Price = price.Sub(tickSize)
			ev.Size = 0
		case 1:
			ev.Kind = models.TickAsk
			ev.Price = price.Add(tickSize)
			ev.Size = 0
		}

		if !wantKind[ev.Kind] {
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			handler(ev)
		}
	}
}
