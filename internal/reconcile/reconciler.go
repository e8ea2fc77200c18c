// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/muse/internal/gateway"
	"github.com/jeranaias/muse/internal/model"
	"github.com/jeranaias/muse/internal/storage"
	"github.com/jeranaias/muse/internal/util"
)

// Request is one user submission.
type Request struct {
	Mode  Mode
	Input string
	Image *model.Attachment
}

// PreferencesSource supplies the preferences sent with each request.
type PreferencesSource interface {
	Get() model.Preferences
}

// Reconciler applies gateway results to the conversation store.
type Reconciler struct {
	store   *storage.ConversationStore
	gateway gateway.Gateway
	prefs   PreferencesSource

	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	handles map[string]*Handle
	titles  map[string]context.CancelFunc
}

// New creates a Reconciler. prefs may be nil.
func New(store *storage.ConversationStore, gw gateway.Gateway, prefs PreferencesSource) *Reconciler {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Reconciler{
		store:   store,
		gateway: gw,
		prefs:   prefs,
		ctx:     ctx,
		cancel:  cancel,
		handles: make(map[string]*Handle),
		titles:  make(map[string]context.CancelFunc),
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run submits req. The user message and placeholder are in the store when
// Run returns; generation continues in the background and ends when the
// returned handle is done. Cancelling ctx cancels the generation.
func (r *Reconciler) Run(ctx context.Context, req Request) (*Handle, error) {
	req, d, err := normalize(req)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	userMsg := model.NewUserMessage(req.Input)
	if req.Image != nil {
		userMsg = model.NewUserImageMessage(req.Input, req.Image.DataURI())
	}

	// Resolve the target conversation and record the user message.
	var history []*model.Message
	convID, created := "", false
	if active := r.store.Snapshot().Active(); active != nil {
		convID = active.ID
		if d.withHistory {
			history = gateway.History(active.Messages)
		}
		if err := r.store.AppendMessage(convID, userMsg); err != nil && !errors.Is(err, storage.ErrPersist) {
			return nil, fmt.Errorf("append user message: %w", err)
		}
	} else {
		convID, err = r.store.Create(userMsg, req.Mode.ProvisionalTitle(req.Input))
		if err != nil && !errors.Is(err, storage.ErrPersist) {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		created = true
	}

	if created && strings.TrimSpace(req.Input) != "" {
		r.startTitle(convID, req.Input)
	}

	placeholder := model.NewPlaceholder(d.placeholder, d.pendingText)
	if err := r.store.AppendMessage(convID, placeholder); err != nil && !errors.Is(err, storage.ErrPersist) {
		return nil, fmt.Errorf("append placeholder: %w", err)
	}

	genCtx, cancel := context.WithCancelCause(r.ctx)
	stop := context.AfterFunc(ctx, func() { cancel(ctx.Err()) })
	h := newHandle(model.NewID(), convID, placeholder.ID, req.Mode, req.Input, func(cause error) {
		stop()
		cancel(cause)
	})

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.fail(genCtx, h, ErrClosed)
		return h, ErrClosed
	}
	r.handles[h.ID] = h
	r.wg.Add(1)
	r.mu.Unlock()

	log.Debug().
		Str("request", h.ID).
		Str("conversation", convID).
		Str("mode", string(req.Mode)).
		Bool("new_conversation", created).
		Int("history", len(history)).
		Msg("GENERATION_DISPATCHED")

	go r.generate(genCtx, h, d, req, history)
	return h, nil
}

// normalize validates req and resolves its descriptor. Chat with an attached
// image is promoted to chatWithImage.
func normalize(req Request) (Request, descriptor, error) {
	if req.Mode == "" {
		req.Mode = ModeChat
	}
	if req.Mode == ModeChat && req.Image != nil {
		req.Mode = ModeChatWithImage
	}
	d, ok := descriptors[req.Mode]
	if !ok {
		return req, d, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
	switch {
	case req.Mode == ModeChatWithImage && req.Image == nil:
		return req, d, ErrImageRequired
	case req.Mode != ModeChatWithImage && req.Image != nil:
		return req, d, ErrImageNotAllowed
	case req.Image == nil && strings.TrimSpace(req.Input) == "":
		return req, d, ErrEmptyInput
	}
	return req, d, nil
}

// =============================================================================
// GENERATION
// =============================================================================

func (r *Reconciler) generate(ctx context.Context, h *Handle, d descriptor, req Request, history []*model.Message) {
	defer r.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("request", h.ID).Msg("GENERATION_PANIC")
			r.fail(ctx, h, fmt.Errorf("internal error: %v", p))
		}
		if !h.State().Terminal() {
			r.fail(ctx, h, errors.New("generation ended unexpectedly"))
		}
		r.release(h)
	}()

	prefs := model.Preferences{}
	if r.prefs != nil {
		prefs = r.prefs.Get()
	}

	if d.value != nil {
		r.consumeValue(ctx, h, d, req)
		return
	}
	r.consumeStream(ctx, h, d.stream(ctx, r.gateway, history, req, prefs))
}

func (r *Reconciler) consumeStream(ctx context.Context, h *Handle, stream gateway.Stream) {
	fragments := 0
	for frag, err := range stream {
		if err != nil {
			log.Debug().Str("request", h.ID).Int("fragments", fragments).Err(err).Msg("GENERATION_STREAM_ERROR")
			r.fail(ctx, h, err)
			return
		}
		h.streaming()
		if frag == "" {
			continue
		}
		if err := r.store.AppendContent(h.ConversationID, h.MessageID, frag); err != nil {
			if isGone(err) {
				r.supersede(h, err)
				return
			}
			log.Warn().Err(err).Str("request", h.ID).Msg("FRAGMENT_PERSIST_FAILED")
		}
		fragments++
	}
	if ctx.Err() != nil {
		r.fail(ctx, h, context.Cause(ctx))
		return
	}
	r.complete(h, "")
}

func (r *Reconciler) consumeValue(ctx context.Context, h *Handle, d descriptor, req Request) {
	onProgress := func(text string) {
		h.streaming()
		err := r.store.UpdateMessage(h.ConversationID, h.MessageID, func(m *model.Message) {
			if !m.Terminal() {
				m.Content = text
			}
		})
		if err != nil && !isGone(err) {
			log.Warn().Err(err).Str("request", h.ID).Msg("PROGRESS_PERSIST_FAILED")
		}
	}

	url, err := d.value(ctx, r.gateway, req, onProgress)
	if err == nil && url == "" {
		err = gateway.ErrEmptyResponse
	}
	if err != nil {
		r.fail(ctx, h, err)
		return
	}
	r.complete(h, url)
}

// complete closes the placeholder. mediaURL is empty for text modes.
func (r *Reconciler) complete(h *Handle, mediaURL string) {
	err := r.store.UpdateMessage(h.ConversationID, h.MessageID, func(m *model.Message) {
		m.Complete(mediaURL, "")
	})
	if err != nil && isGone(err) {
		r.supersede(h, err)
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("request", h.ID).Msg("COMPLETION_PERSIST_FAILED")
	}
	if h.finish(StateCompleted, nil) {
		log.Debug().Str("request", h.ID).Str("mode", string(h.Mode)).Msg("GENERATION_COMPLETED")
	}
}

// fail substitutes the error text for whatever the placeholder held. When
// the conversation was deleted the request is superseded instead.
func (r *Reconciler) fail(ctx context.Context, h *Handle, cause error) {
	if errors.Is(context.Cause(ctx), errSuperseded) {
		r.supersede(h, errSuperseded)
		return
	}

	var partial string
	err := r.store.UpdateMessage(h.ConversationID, h.MessageID, func(m *model.Message) {
		partial = m.Content
		m.Fail(ErrorText(cause))
	})
	if err != nil && isGone(err) {
		r.supersede(h, err)
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("request", h.ID).Msg("FAILURE_PERSIST_FAILED")
	}
	if h.finish(StateFailed, cause) {
		log.Debug().
			Str("request", h.ID).
			Err(cause).
			Int("discarded_bytes", len(partial)).
			Str("partial", util.TruncateRunes(partial, 200)).
			Msg("GENERATION_FAILED")
	}
}

func (r *Reconciler) supersede(h *Handle, reason error) {
	if h.finish(StateSuperseded, nil) {
		log.Debug().Str("request", h.ID).Str("conversation", h.ConversationID).Str("reason", reason.Error()).Msg("GENERATION_SUPERSEDED")
	}
}

func (r *Reconciler) release(h *Handle) {
	r.mu.Lock()
	delete(r.handles, h.ID)
	r.mu.Unlock()
}

// =============================================================================
// TITLES
// =============================================================================

// startTitle asks the gateway for a title in the background.
func (r *Reconciler) startTitle(convID, seed string) {
	ctx, cancel := context.WithCancel(r.ctx)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return
	}
	r.titles[convID] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.titles, convID)
			r.mu.Unlock()
			cancel()
		}()

		title, err := r.gateway.Title(ctx, seed)
		if err != nil {
			log.Debug().Err(err).Str("conversation", convID).Msg("TITLE_FAILED")
			return
		}
		if ctx.Err() != nil {
			return
		}
		title = util.CleanTitle(title)
		if title == "" {
			return
		}
		if err := r.store.Rename(convID, title); err != nil {
			log.Debug().Err(err).Str("conversation", convID).Msg("TITLE_DISCARDED")
			return
		}
		log.Debug().Str("conversation", convID).Str("title", title).Msg("TITLE_APPLIED")
	}()
}

// =============================================================================
// CONTROL
// =============================================================================

// Delete cancels the conversation's title task and running requests, then
// deletes it from the store.
func (r *Reconciler) Delete(convID string) error {
	r.mu.Lock()
	if cancel, ok := r.titles[convID]; ok {
		cancel()
		delete(r.titles, convID)
	}
	var running []*Handle
	for _, h := range r.handles {
		if h.ConversationID == convID {
			running = append(running, h)
		}
	}
	r.mu.Unlock()

	err := r.store.Delete(convID)
	for _, h := range running {
		h.cancel(errSuperseded)
	}
	return err
}

// Busy reports whether any request is in flight.
func (r *Reconciler) Busy() bool {
	return len(r.Outstanding()) > 0
}

// Outstanding returns the live handles, oldest first.
func (r *Reconciler) Outstanding() []*Handle {
	r.mu.Lock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		if !h.State().Terminal() {
			out = append(out, h)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// BusyIn reports whether a request is running in the given conversation.
func (r *Reconciler) BusyIn(convID string) bool {
	for _, h := range r.Outstanding() {
		if h.ConversationID == convID {
			return true
		}
	}
	return false
}

// Close cancels all background work and waits for it to finish.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel(ErrClosed)
	r.wg.Wait()
	return nil
}
