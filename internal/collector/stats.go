package collector

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of the collector's counters. Counters
// live with the collector instance: they reset on re-construction and are
// never persisted.
type Stats struct {
	SessionID         string
	TicksReceived     int64
	SecondsAggregated int64
	BarsFlushed       int64
	FallbackBatches   int64
	DroppedTicks      int64
	MalformedTicks    int64
	SubscribeFailures int64
	AuditWriteErrors  int64
	StartTime         time.Time
	LastTickTime      time.Time
	Uptime            time.Duration
	TicksPerSecond    float64
	ActiveContracts   []string
	BufferSizes       map[string]int
}

// statsCounters holds the collector's monotonically increasing counters.
// Everything is updated with atomics so the dispatch hot path never takes
// a lock for bookkeeping.
type statsCounters struct {
	ticksReceived     atomic.Int64
	secondsAggregated atomic.Int64
	barsFlushed       atomic.Int64
	fallbackBatches   atomic.Int64
	droppedTicks      atomic.Int64
	malformedTicks    atomic.Int64
	subscribeFailures atomic.Int64
	auditWriteErrors  atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastTickTime time.Time
}

func (s *statsCounters) markStart(t time.Time) {
	s.mu.Lock()
	s.startTime = t
	s.mu.Unlock()
}

func (s *statsCounters) markTick(t time.Time) {
	s.ticksReceived.Add(1)
	s.mu.Lock()
	if t.After(s.lastTickTime) {
		s.lastTickTime = t
	}
	s.mu.Unlock()
}

func (s *statsCounters) snapshot(now time.Time) Stats {
	s.mu.RLock()
	start, lastTick := s.startTime, s.lastTickTime
	s.mu.RUnlock()

	var uptime time.Duration
	var rate float64
	ticks := s.ticksReceived.Load()
	if !start.IsZero() {
		uptime = now.Sub(start)
		if secs := uptime.Seconds(); secs > 0 {
			rate = float64(ticks) / secs
		}
	}

	return Stats{
		TicksReceived:     ticks,
		SecondsAggregated: s.secondsAggregated.Load(),
		BarsFlushed:       s.barsFlushed.Load(),
		FallbackBatches:   s.fallbackBatches.Load(),
		DroppedTicks:      s.droppedTicks.Load(),
		MalformedTicks:    s.malformedTicks.Load(),
		SubscribeFailures: s.subscribeFailures.Load(),
		AuditWriteErrors:  s.auditWriteErrors.Load(),
		StartTime:         start,
		LastTickTime:      lastTick,
		Uptime:            uptime,
		TicksPerSecond:    rate,
	}
}
