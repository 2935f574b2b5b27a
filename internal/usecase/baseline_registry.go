package usecase

import (
	"sync"
	"time"

	"ShortScan/internal/domain/models"
)

// Observation is what Advance hands to the signal engine for one snapshot.
type Observation struct {
	ReferencePrice float64
	VolumeDelta    float64
	Elapsed        time.Duration
}

type baselineSlot struct {
	mu    sync.Mutex
	entry models.BaselineEntry
}

// BaselineRegistry keeps per-symbol reference price and cumulative-volume
// bookkeeping for one session. Each symbol has its own lock so parallel
// evaluations of different symbols never contend and one symbol's updates
// are never lost.
type BaselineRegistry struct {
	mu    sync.RWMutex
	slots map[models.Symbol]*baselineSlot
}

func NewBaselineRegistry() *BaselineRegistry {
	return &BaselineRegistry{slots: make(map[models.Symbol]*baselineSlot)}
}

func (r *BaselineRegistry) slot(sym models.Symbol) *baselineSlot {
	r.mu.RLock()
	s, ok := r.slots[sym]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.slots[sym]; !ok {
		s = &baselineSlot{entry: models.BaselineEntry{Symbol: sym}}
		r.slots[sym] = s
	}
	return s
}

// Observe records price for sym and returns the reference price (0 when unset).
// The reference is captured once, at the first observation where atReference is true.
func (r *BaselineRegistry) Observe(sym models.Symbol, price float64, at time.Time, atReference bool) float64 {
	s := r.slot(sym)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observe(price, at, atReference)
}

// VolumeDelta returns the volume traded since the previous observation and the
// time between the two observations. The first call returns the full cumulative
// volume and a zero gap.
func (r *BaselineRegistry) VolumeDelta(sym models.Symbol, cumulative float64, at time.Time) (float64, time.Duration) {
	s := r.slot(sym)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volumeDelta(cumulative, at)
}

// Advance applies Observe and VolumeDelta for one snapshot under a single lock.
func (r *BaselineRegistry) Advance(snap models.MarketSnapshot, atReference bool) Observation {
	s := r.slot(snap.Symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := s.observe(snap.Price, snap.Timestamp, atReference)
	delta, elapsed := s.volumeDelta(snap.CumulativeVolume, snap.Timestamp)
	return Observation{ReferencePrice: ref, VolumeDelta: delta, Elapsed: elapsed}
}

// Entry returns a copy of the symbol's entry. Unseen symbols report ok=false.
func (r *BaselineRegistry) Entry(sym models.Symbol) (models.BaselineEntry, bool) {
	r.mu.RLock()
	s, ok := r.slots[sym]
	r.mu.RUnlock()
	if !ok {
		return models.BaselineEntry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry, true
}

// Reset drops all entries. Called at session rollover.
func (r *BaselineRegistry) Reset() {
	r.mu.Lock()
	r.slots = make(map[models.Symbol]*baselineSlot)
	r.mu.Unlock()
}

// Len reports the number of tracked symbols.
func (r *BaselineRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

func (s *baselineSlot) observe(price float64, at time.Time, atReference bool) float64 {
	if atReference && !s.entry.HasReference() && price > 0 {
		s.entry.ReferencePrice = price
		s.entry.ReferenceSetAt = at
	}
	return s.entry.ReferencePrice
}

func (s *baselineSlot) volumeDelta(cumulative float64, at time.Time) (float64, time.Duration) {
	var elapsed time.Duration
	if !s.entry.LastUpdated.IsZero() {
		elapsed = at.Sub(s.entry.LastUpdated)
	}
	delta := cumulative - s.entry.LastCumulativeVolume
	s.entry.LastCumulativeVolume = cumulative
	s.entry.LastUpdated = at
	return delta, elapsed
}
