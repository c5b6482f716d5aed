package classapi

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at       time.Time
	op       string
	duration time.Duration
	failed   bool
}

// StatsSnapshot aggregates the request samples inside the window.
type StatsSnapshot struct {
	Count  int            `json:"count"`
	Errors int            `json:"errors"`
	ByOp   map[string]int `json:"by_op"`
	MinMs  int64          `json:"min_ms"`
	MaxMs  int64          `json:"max_ms"`
	AvgMs  float64        `json:"avg_ms"`
	P50Ms  float64        `json:"p50_ms"`
	P95Ms  float64        `json:"p95_ms"`
}

// Stats records classification API request latencies over a rolling window.
type Stats struct {
	mu      sync.Mutex
	samples []sample
	window  time.Duration
	now     func() time.Time
}

func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Stats{window: window, now: time.Now}
}

// Record adds one finished request. Canceled requests are not recorded.
func (s *Stats) Record(op string, d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, op: op, duration: max(d, 0), failed: failed})
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())

	snap := StatsSnapshot{ByOp: map[string]int{}}
	if len(s.samples) == 0 {
		return snap
	}
	ms := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		d := sm.duration.Milliseconds()
		ms = append(ms, d)
		sum += d
		snap.ByOp[sm.op]++
		if sm.failed {
			snap.Errors++
		}
	}
	slices.Sort(ms)

	snap.Count = len(ms)
	snap.MinMs = ms[0]
	snap.MaxMs = ms[len(ms)-1]
	snap.AvgMs = float64(sum) / float64(len(ms))
	snap.P50Ms = percentile(ms, 50)
	snap.P95Ms = percentile(ms, 95)
	return snap
}

// pruneLocked drops samples older than the window. Samples are in time order.
func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.samples) && s.samples[i].at.Before(cutoff) {
		i++
	}
	s.samples = slices.Delete(s.samples, 0, i)
}

// percentile interpolates linearly between the closest ranks of sorted.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	pos := float64(len(sorted)-1) * pct / 100
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[lo+1]-sorted[lo])
}
