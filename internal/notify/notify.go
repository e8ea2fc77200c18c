// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify holds short-lived user notifications. Entries expire on
// their own after a fixed lifetime and are never persisted.
package notify

import (
	"sync"
	"time"
)

// Severity classifies a notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// DefaultLifetime is how long an entry stays active.
const DefaultLifetime = 5 * time.Second

// Entry is one visible notification.
type Entry struct {
	ID        int
	Message   string
	Severity  Severity
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Notifier is the narrow interface integrations report through.
type Notifier interface {
	Notify(message string, severity Severity) int
}

// Sink is the in-memory Notifier.
type Sink struct {
	mu       sync.Mutex
	entries  []Entry
	timers   map[int]*time.Timer
	nextID   int
	lifetime time.Duration
	subs     map[int]func([]Entry)
	nextSub  int
}

var _ Notifier = (*Sink)(nil)

// NewSink creates a sink. A non-positive lifetime selects DefaultLifetime.
func NewSink(lifetime time.Duration) *Sink {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Sink{
		timers:   make(map[int]*time.Timer),
		subs:     make(map[int]func([]Entry)),
		nextID:   1,
		lifetime: lifetime,
	}
}

// Notify adds an entry and schedules its expiry.
func (s *Sink) Notify(message string, severity Severity) int {
	now := time.Now()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.entries = append(s.entries, Entry{
		ID:        id,
		Message:   message,
		Severity:  severity,
		CreatedAt: now,
		ExpiresAt: now.Add(s.lifetime),
	})
	s.timers[id] = time.AfterFunc(s.lifetime, func() { s.Dismiss(id) })
	active, subs := s.stateLocked()
	s.mu.Unlock()

	publish(subs, active)
	return id
}

// Dismiss removes an entry early. Unknown ids are ignored.
func (s *Sink) Dismiss(id int) {
	s.mu.Lock()
	idx := -1
	for i, e := range s.entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.entries = append(s.entries[:idx:idx], s.entries[idx+1:]...)
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	active, subs := s.stateLocked()
	s.mu.Unlock()

	publish(subs, active)
}

// Active returns live entries in insertion order.
func (s *Sink) Active() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Subscribe registers fn to receive the active entries after every change.
func (s *Sink) Subscribe(fn func([]Entry)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close stops pending expiry timers and drops all entries.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.entries = nil
}

func (s *Sink) stateLocked() ([]Entry, []func([]Entry)) {
	active := make([]Entry, len(s.entries))
	copy(active, s.entries)
	subs := make([]func([]Entry), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return active, subs
}

func publish(subs []func([]Entry), active []Entry) {
	for _, fn := range subs {
		fn(active)
	}
}
