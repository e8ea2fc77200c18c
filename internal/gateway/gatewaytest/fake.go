// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gatewaytest provides a scripted gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/jeranaias/muse/internal/gateway"
	"github.com/jeranaias/muse/internal/model"
)

// Op names a gateway operation.
type Op string

const (
	OpChat          Op = "chat"
	OpChatWithImage Op = "chat_with_image"
	OpCodeReview    Op = "code_review"
	OpScript        Op = "script"
	OpMindMap       Op = "mind_map"
	OpImage         Op = "image"
	OpVideo         Op = "video"
	OpTitle         Op = "title"
)

// Reply scripts the outcome of one operation.
type Reply struct {
	// Fragments are yielded in order by streamed operations.
	Fragments []string

	// Value is returned by single-value operations.
	Value string

	// Progress is reported through onProgress by Video.
	Progress []string

	// Err is yielded after Fragments, or returned by single-value operations.
	Err error

	// Gate, when set, must deliver one value before each fragment and before
	// a single value is returned. Closing it releases everything.
	Gate chan struct{}
}

// Call records one invocation.
type Call struct {
	Op      Op
	History []*model.Message
	Input   string
	Image   *model.Attachment
	Prefs   model.Preferences
}

// Fake is a scripted gateway. Unscripted operations return empty results.
type Fake struct {
	mu      sync.Mutex
	replies map[Op]Reply
	calls   []Call
}

var _ gateway.Gateway = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{replies: make(map[Op]Reply)}
}

// On scripts the reply for op and returns f for chaining.
func (f *Fake) On(op Op, r Reply) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[op] = r
	return f
}

// Calls returns the recorded invocations in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded invocations of op.
func (f *Fake) CallsTo(op Op) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) record(c Call) Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.replies[c.Op]
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) stream(ctx context.Context, c Call) gateway.Stream {
	r := f.record(c)
	return func(yield func(string, error) bool) {
		for _, frag := range r.Fragments {
			if err := wait(ctx, r.Gate); err != nil {
				yield("", err)
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
		if r.Err != nil {
			if err := wait(ctx, r.Gate); err != nil {
				yield("", err)
				return
			}
			yield("", r.Err)
		}
	}
}

func (f *Fake) value(ctx context.Context, c Call, onProgress func(string)) (string, error) {
	r := f.record(c)
	for _, p := range r.Progress {
		if onProgress != nil {
			onProgress(p)
		}
	}
	if err := wait(ctx, r.Gate); err != nil {
		return "", err
	}
	return r.Value, r.Err
}

func (f *Fake) Chat(ctx context.Context, history []*model.Message, input string, prefs model.Preferences) gateway.Stream {
	return f.stream(ctx, Call{Op: OpChat, History: history, Input: input, Prefs: prefs})
}

func (f *Fake) ChatWithImage(ctx context.Context, history []*model.Message, input string, image model.Attachment, prefs model.Preferences) gateway.Stream {
	return f.stream(ctx, Call{Op: OpChatWithImage, History: history, Input: input, Image: &image, Prefs: prefs})
}

func (f *Fake) CodeReview(ctx context.Context, history []*model.Message, query string, prefs model.Preferences) gateway.Stream {
	return f.stream(ctx, Call{Op: OpCodeReview, History: history, Input: query, Prefs: prefs})
}

func (f *Fake) Script(ctx context.Context, history []*model.Message, prompt string, prefs model.Preferences) gateway.Stream {
	return f.stream(ctx, Call{Op: OpScript, History: history, Input: prompt, Prefs: prefs})
}

func (f *Fake) MindMap(ctx context.Context, prompt string, prefs model.Preferences) gateway.Stream {
	return f.stream(ctx, Call{Op: OpMindMap, Input: prompt, Prefs: prefs})
}

func (f *Fake) Image(ctx context.Context, prompt string) (string, error) {
	return f.value(ctx, Call{Op: OpImage, Input: prompt}, nil)
}

func (f *Fake) Video(ctx context.Context, prompt string, onProgress func(string)) (string, error) {
	return f.value(ctx, Call{Op: OpVideo, Input: prompt}, onProgress)
}

func (f *Fake) Title(ctx context.Context, seed string) (string, error) {
	return f.value(ctx, Call{Op: OpTitle, Input: seed}, nil)
}
