// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"sort"
	"sync"
	"time"
)

// Outcome is how a generation settled.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeFailed     Outcome = "failed"
	OutcomeSuperseded Outcome = "superseded"
)

// MaxSlowest is how many of the slowest generations a summary keeps.
const MaxSlowest = 5

// Record describes one settled generation.
type Record struct {
	Mode     string
	Outcome  Outcome
	Duration time.Duration
	// Chars is the length of the final content in runes.
	Chars int
	// Prompt is kept truncated for the slowest list.
	Prompt string
	At     time.Time
}

// ModeStats aggregates records of one mode.
type ModeStats struct {
	Requests   int
	Completed  int
	Failed     int
	Superseded int
	Chars      int
	Total      time.Duration
}

// Average returns the mean duration, or 0 without requests.
func (m ModeStats) Average() time.Duration {
	if m.Requests == 0 {
		return 0
	}
	return m.Total / time.Duration(m.Requests)
}

// Summary is a copy of the tracker state.
type Summary struct {
	Started time.Time
	ByMode  map[string]ModeStats
	Slowest []Record
}

// Requests returns the number of generations across all modes.
func (s Summary) Requests() int {
	n := 0
	for _, m := range s.ByMode {
		n += m.Requests
	}
	return n
}

// Modes returns the recorded mode names sorted alphabetically.
func (s Summary) Modes() []string {
	out := make([]string, 0, len(s.ByMode))
	for m := range s.ByMode {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// UsageTracker aggregates Records. It is safe for concurrent use.
type UsageTracker struct {
	mu      sync.RWMutex
	started time.Time
	byMode  map[string]*ModeStats
	slowest []Record
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		started: time.Now(),
		byMode:  make(map[string]*ModeStats),
	}
}

// Record adds one settled generation.
func (t *UsageTracker) Record(r Record) {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	if runes := []rune(r.Prompt); len(runes) > 100 {
		r.Prompt = string(runes[:100]) + "..."
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.byMode[r.Mode]
	if stats == nil {
		stats = &ModeStats{}
		t.byMode[r.Mode] = stats
	}
	stats.Requests++
	stats.Total += r.Duration
	stats.Chars += r.Chars
	switch r.Outcome {
	case OutcomeCompleted:
		stats.Completed++
	case OutcomeFailed:
		stats.Failed++
	case OutcomeSuperseded:
		stats.Superseded++
	}

	t.slowest = append(t.slowest, r)
	sort.SliceStable(t.slowest, func(i, j int) bool {
		return t.slowest[i].Duration > t.slowest[j].Duration
	})
	if len(t.slowest) > MaxSlowest {
		t.slowest = t.slowest[:MaxSlowest]
	}
}

// Summary returns a copy of the current statistics.
func (t *UsageTracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Summary{
		Started: t.started,
		ByMode:  make(map[string]ModeStats, len(t.byMode)),
		Slowest: append([]Record(nil), t.slowest...),
	}
	for m, stats := range t.byMode {
		s.ByMode[m] = *stats
	}
	return s
}
