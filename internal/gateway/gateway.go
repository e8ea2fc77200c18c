// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"

	"github.com/jeranaias/muse/internal/model"
)

// Stream is a lazy sequence of text fragments. Iteration stops after the
// first non-nil error, which is terminal.
type Stream = iter.Seq2[string, error]

// Gateway is the set of generation operations.
type Gateway interface {
	Chat(ctx context.Context, history []*model.Message, input string, prefs model.Preferences) Stream
	ChatWithImage(ctx context.Context, history []*model.Message, input string, image model.Attachment, prefs model.Preferences) Stream
	CodeReview(ctx context.Context, history []*model.Message, query string, prefs model.Preferences) Stream
	Script(ctx context.Context, history []*model.Message, prompt string, prefs model.Preferences) Stream
	MindMap(ctx context.Context, prompt string, prefs model.Preferences) Stream

	// Image returns a remote URL or data: URI for the generated image.
	Image(ctx context.Context, prompt string) (string, error)

	// Video blocks until the video is ready. onProgress receives coarse
	// status text while the provider works; it may be nil.
	Video(ctx context.Context, prompt string, onProgress func(string)) (string, error)

	// Title returns a short conversation title for seed.
	Title(ctx context.Context, seed string) (string, error)
}

// MediaFetcher is implemented by gateways whose media URLs need credentials
// to download. Credentials are attached per request and never appear in the
// URL stored on a message.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, uri string) (body io.ReadCloser, mimeType string, err error)
}

// =============================================================================
// ERRORS
// =============================================================================

// Error is a provider failure tagged with the operation that produced it.
type Error struct {
	Provider string
	Op       string
	Cause    error
}

func (e *Error) Error() string {
	return e.Provider + " " + e.Op + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

var (
	// ErrUnsupported is returned by adapters lacking an operation.
	ErrUnsupported = errors.New("operation not supported by this provider")

	// ErrEmptyResponse is returned when the provider answers with nothing usable.
	ErrEmptyResponse = errors.New("provider returned an empty response")
)

// Wrap tags err with provider and op. Nil and context errors pass through.
func Wrap(provider, op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Provider: provider, Op: op, Cause: err}
}

// =============================================================================
// STREAM HELPERS
// =============================================================================

// Fail returns a stream that yields only err.
func Fail(err error) Stream {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}

// Fragments returns a stream over fixed fragments.
func Fragments(parts ...string) Stream {
	return func(yield func(string, error) bool) {
		for _, p := range parts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// Collect drains s and concatenates its fragments.
func Collect(s Stream) (string, error) {
	var b strings.Builder
	for frag, err := range s {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}

// =============================================================================
// HISTORY
// =============================================================================

// History returns the messages worth sending as context: failed messages and
// placeholders still being generated are dropped.
func History(msgs []*model.Message) []*model.Message {
	out := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsError || m.Streaming {
			continue
		}
		out = append(out, m)
	}
	return out
}
