// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkInsertionOrder(t *testing.T) {
	s := NewSink(time.Minute)
	defer s.Close()

	a := s.Notify("first", SeverityInfo)
	b := s.Notify("second", SeverityError)

	active := s.Active()
	require.Len(t, active, 2)
	assert.Equal(t, a, active[0].ID)
	assert.Equal(t, b, active[1].ID)
	assert.Equal(t, SeverityError, active[1].Severity)
	assert.Equal(t, time.Minute, active[0].ExpiresAt.Sub(active[0].CreatedAt))
}

func TestSinkExpires(t *testing.T) {
	s := NewSink(20 * time.Millisecond)
	defer s.Close()

	s.Notify("Export failed", SeverityError)
	require.Len(t, s.Active(), 1)

	assert.Eventually(t, func() bool { return len(s.Active()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestSinkDismiss(t *testing.T) {
	s := NewSink(time.Minute)
	defer s.Close()

	a := s.Notify("a", SeverityInfo)
	b := s.Notify("b", SeverityInfo)
	s.Dismiss(a)
	s.Dismiss(999)

	active := s.Active()
	require.Len(t, active, 1)
	assert.Equal(t, b, active[0].ID)
}

func TestSinkSubscribe(t *testing.T) {
	s := NewSink(time.Minute)
	defer s.Close()

	var mu sync.Mutex
	var sizes []int
	unsubscribe := s.Subscribe(func(e []Entry) {
		mu.Lock()
		sizes = append(sizes, len(e))
		mu.Unlock()
	})

	id := s.Notify("a", SeverityWarning)
	s.Dismiss(id)
	unsubscribe()
	s.Notify("b", SeverityWarning)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 0}, sizes)
}

func TestDefaultLifetime(t *testing.T) {
	s := NewSink(0)
	defer s.Close()
	assert.Equal(t, DefaultLifetime, s.lifetime)
	assert.Equal(t, "warning", SeverityWarning.String())
}
