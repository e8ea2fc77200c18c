// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"sync"
	"time"
)

// State is the lifecycle position of one request.
type State int

const (
	StateIdle State = iota
	StateDispatched
	StateStreaming
	StateCompleted
	StateFailed
	StateSuperseded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatched:
		return "dispatched"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Handle tracks one in-flight request. It replaces a global loading flag:
// callers ask the handle, or the Reconciler for the set of live handles.
type Handle struct {
	ID             string
	ConversationID string
	MessageID      string
	Mode           Mode
	Input          string
	StartedAt      time.Time

	mu     sync.Mutex
	state  State
	err    error
	done   chan struct{}
	once   sync.Once
	cancel context.CancelCauseFunc
}

func newHandle(id, convID, msgID string, mode Mode, input string, cancel context.CancelCauseFunc) *Handle {
	return &Handle{
		ID:             id,
		ConversationID: convID,
		MessageID:      msgID,
		Mode:           mode,
		Input:          input,
		StartedAt:      time.Now(),
		state:          StateDispatched,
		done:           make(chan struct{}),
		cancel:         cancel,
	}
}

// State returns the current state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the request reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the generation error of a Failed request, otherwise nil.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the request finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the request. The message is marked failed.
func (h *Handle) Cancel() {
	h.cancel(context.Canceled)
}

// streaming moves Dispatched to Streaming.
func (h *Handle) streaming() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateDispatched {
		h.state = StateStreaming
	}
}

// finish records the terminal state. Only the first call has any effect.
func (h *Handle) finish(state State, err error) bool {
	finished := false
	h.once.Do(func() {
		h.mu.Lock()
		h.state = state
		h.err = err
		h.mu.Unlock()
		h.cancel(nil)
		close(h.done)
		finished = true
	})
	return finished
}
