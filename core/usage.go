package core

import "sync"

// Units captures raw consumption reported by an executor. Optional dimensions
// (CachedInput, CacheWrite) are zero when the backend does not report them.
type Units struct {
	Input       int64 `json:"input"`
	Output      int64 `json:"output"`
	CachedInput int64 `json:"cached_input,omitempty"`
	CacheWrite  int64 `json:"cache_write,omitempty"`
}

// Add returns the dimension-wise sum of u and o.
func (u Units) Add(o Units) Units {
	return Units{
		Input:       u.Input + o.Input,
		Output:      u.Output + o.Output,
		CachedInput: u.CachedInput + o.CachedInput,
		CacheWrite:  u.CacheWrite + o.CacheWrite,
	}
}

// Pricing converts units into cost: each dimension costs (units/Per)*rate.
// A zero rate means the dimension is free (or not priced).
type Pricing struct {
	Per         float64 `json:"per" mapstructure:"per"`
	Input       float64 `json:"input" mapstructure:"input"`
	Output      float64 `json:"output" mapstructure:"output"`
	CachedInput float64 `json:"cached_input,omitempty" mapstructure:"cached_input"`
	CacheWrite  float64 `json:"cache_write,omitempty" mapstructure:"cache_write"`
}

// Cost returns the monetary cost of u under p.
func (p Pricing) Cost(u Units) float64 {
	per := p.Per
	if per <= 0 {
		per = 1
	}
	dim := func(n int64, rate float64) float64 {
		if n == 0 || rate == 0 {
			return 0
		}
		return float64(n) / per * rate
	}
	return dim(u.Input, p.Input) +
		dim(u.Output, p.Output) +
		dim(u.CachedInput, p.CachedInput) +
		dim(u.CacheWrite, p.CacheWrite)
}

// UsageEntry is a single ledger record. Cost is never stored.
type UsageEntry struct {
	Kind    GenerationKind `json:"kind"`
	Units   Units          `json:"units"`
	Pricing Pricing        `json:"pricing"`
}

// Cost derives the entry cost from its units and pricing.
func (e UsageEntry) Cost() float64 { return e.Pricing.Cost(e.Units) }

// KindUsage aggregates all entries of one generation kind.
type KindUsage struct {
	Units Units   `json:"units"`
	Cost  float64 `json:"cost"`
}

// UsageInfo is the derived view over a ledger.
type UsageInfo struct {
	ByKind map[GenerationKind]KindUsage `json:"by_kind"`
	Total  float64                      `json:"total"`
}

// Ledger is an append-only usage record safe for concurrent use. Entries are
// appended from queue goroutines while the owning operation may read totals.
type Ledger struct {
	mu      sync.Mutex
	entries []UsageEntry
}

// Add appends an entry. No validation is performed beyond the type shape.
func (l *Ledger) Add(kind GenerationKind, units Units, pricing Pricing) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, UsageEntry{Kind: kind, Units: units, Pricing: pricing})
}

// Entries returns a copy of all entries in append order.
func (l *Ledger) Entries() []UsageEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]UsageEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Info recomputes per-kind and total cost over every entry. Results are not
// cached since entries may be appended at any time.
func (l *Ledger) Info() UsageInfo {
	entries := l.Entries()
	info := UsageInfo{ByKind: make(map[GenerationKind]KindUsage)}
	for _, e := range entries {
		c := e.Cost()
		ku := info.ByKind[e.Kind]
		ku.Units = ku.Units.Add(e.Units)
		ku.Cost += c
		info.ByKind[e.Kind] = ku
		info.Total += c
	}
	return info
}
