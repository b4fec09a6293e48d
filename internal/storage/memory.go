package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/johnayoung/go-tick-collector/internal/models"
)

// MemoryStorage is an in-memory FullStorage implementation used by tests
// and local development. It preserves the backend's upsert-on-conflict
// semantics: bars are keyed by (timestamp, symbol, contract, exchange).
type MemoryStorage struct {
	mu     sync.RWMutex
	bars   map[string]models.SecondBar
	ticks  []models.TickEvent
	closed bool
}

// NewMemoryStorage creates an empty in-memory storage instance.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		bars: make(map[string]models.SecondBar),
	}
}

// Initialize implements Manager.Initialize. No-op for the memory backend.
func (m *MemoryStorage) Initialize(ctx context.Context) error {
	return nil
}

// StoreBars implements BarStorer.StoreBars with upsert semantics.
func (m *MemoryStorage) StoreBars(ctx context.Context, bars []models.SecondBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return 0, NewInsertError("second_bars", fmt.Errorf("invalid bar at index %d: %w", i, err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, NewInsertError("second_bars", fmt.Errorf("storage is closed"))
	}

	for i := range bars {
		m.bars[bars[i].Key()] = bars[i]
	}
	return len(bars), nil
}

// StoreTick implements TickStorer.StoreTick.
func (m *MemoryStorage) StoreTick(ctx context.Context, tick models.TickEvent) error {
	if err := tick.Validate(); err != nil {
		return NewInsertError("raw_ticks", fmt.Errorf("invalid tick: %w", err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return NewInsertError("raw_ticks", fmt.Errorf("storage is closed"))
	}

	m.ticks = append(m.ticks, tick)
	return nil
}

// Bars returns all stored bars ordered by timestamp then contract.
func (m *MemoryStorage) Bars() []models.SecondBar {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.SecondBar, 0, len(m.bars))
	for _, bar := range m.bars {
		out = append(out, bar)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Contract < out[j].Contract
	})
	return out
}

// BarsFor returns all stored bars for one contract ordered by timestamp.
func (m *MemoryStorage) BarsFor(contract string) []models.SecondBar {
	var out []models.SecondBar
	for _, bar := range m.Bars() {
		if bar.Contract == contract {
			out = append(out, bar)
		}
	}
	return out
}

// BarCount returns the number of distinct stored bars.
func (m *MemoryStorage) BarCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bars)
}

// Ticks returns a copy of all stored raw ticks in insertion order.
func (m *MemoryStorage) Ticks() []models.TickEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.TickEvent, len(m.ticks))
	copy(out, m.ticks)
	return out
}

// HealthCheck implements Manager.HealthCheck.
func (m *MemoryStorage) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return NewStorageError("health_check", "", fmt.Errorf("storage is closed"))
	}
	return nil
}

// Close implements Manager.Close.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
