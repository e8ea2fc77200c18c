// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/muse/internal/gateway/gatewaytest"
	"github.com/jeranaias/muse/internal/kv"
	"github.com/jeranaias/muse/internal/mindmap"
	"github.com/jeranaias/muse/internal/model"
	"github.com/jeranaias/muse/internal/storage"
)

const waitFor = 2 * time.Second

type fixture struct {
	store *storage.ConversationStore
	fake  *gatewaytest.Fake
	rec   *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewConversationStore(kv.NewMemoryStore())
	fake := gatewaytest.New()
	rec := New(store, fake, nil)
	t.Cleanup(func() { rec.Close() })
	return &fixture{store: store, fake: fake, rec: rec}
}

func (f *fixture) run(t *testing.T, req Request) *Handle {
	t.Helper()
	h, err := f.rec.Run(context.Background(), req)
	require.NoError(t, err)
	return h
}

func wait(t *testing.T, h *Handle) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	select {
	case <-h.Done():
		return h.Err()
	case <-ctx.Done():
		t.Fatalf("request %s did not finish, state %s", h.ID, h.State())
		return nil
	}
}

func (f *fixture) message(t *testing.T, h *Handle) *model.Message {
	t.Helper()
	conv, err := f.store.Get(h.ConversationID)
	require.NoError(t, err)
	msg, _ := conv.MessageByID(h.MessageID)
	require.NotNil(t, msg)
	return msg
}

func (f *fixture) content(h *Handle) func() string {
	return func() string {
		conv, err := f.store.Get(h.ConversationID)
		if err != nil {
			return ""
		}
		if msg, _ := conv.MessageByID(h.MessageID); msg != nil {
			return msg.Content
		}
		return ""
	}
}

// =============================================================================
// END-TO-END SCENARIOS
// =============================================================================

func TestChatCreatesConversationAndRetitles(t *testing.T) {
	f := newFixture(t)
	titleGate := make(chan struct{})
	f.fake.
		On(gatewaytest.OpChat, gatewaytest.Reply{Fragments: []string{"Hi", " there", "!"}}).
		On(gatewaytest.OpTitle, gatewaytest.Reply{Value: "  \"Friendly Greeting\" ", Gate: titleGate})

	h := f.run(t, Request{Mode: ModeChat, Input: "Hello"})
	require.NoError(t, wait(t, h))
	assert.Equal(t, StateCompleted, h.State())

	conv, err := f.store.Get(h.ConversationID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
	assert.Equal(t, model.RoleModel, conv.Messages[1].Role)
	assert.Equal(t, "Hi there!", conv.Messages[1].Content)
	assert.False(t, conv.Messages[1].IsError)
	assert.False(t, conv.Messages[1].Streaming)
	assert.Equal(t, model.DefaultTitle, conv.Title)
	assert.Equal(t, conv.ID, f.store.ActiveID())

	close(titleGate)
	assert.Eventually(t, func() bool {
		c, err := f.store.Get(h.ConversationID)
		return err == nil && c.Title == "Friendly Greeting"
	}, waitFor, 5*time.Millisecond)

	calls := f.fake.CallsTo(gatewaytest.OpTitle)
	require.Len(t, calls, 1)
	assert.Equal(t, "Hello", calls[0].Input)
}

func TestFragmentsAppliedInOrder(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.fake.On(gatewaytest.OpChat, gatewaytest.Reply{Fragments: []string{"a", "b", "c"}, Gate: gate})

	h := f.run(t, Request{Input: "go"})
	assert.Equal(t, "", f.content(h)())
	assert.True(t, f.message(t, h).Streaming)

	want := []string{"a", "ab", "abc"}
	for _, w := range want {
		gate <- struct{}{}
		assert.Eventually(t, func() bool { return f.content(h)() == w }, waitFor, time.Millisecond)
	}
	require.NoError(t, wait(t, h))
	assert.Equal(t, "abc", f.message(t, h).Content)
}

func TestImageGeneration(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	url := "data:image/png;base64,AAAA"
	f.fake.On(gatewaytest.OpImage, gatewaytest.Reply{Value: url, Gate: gate})

	h := f.run(t, Request{Mode: ModeImage, Input: "a red fox in the snow at dawn, photorealistic"})

	msg := f.message(t, h)
	assert.Equal(t, model.KindImage, msg.Kind)
	assert.Equal(t, "Generating image...", msg.Content)
	conv, _ := f.store.Get(h.ConversationID)
	assert.Equal(t, "Image: a red fox in the snow at da...", conv.Title)

	close(gate)
	require.NoError(t, wait(t, h))

	msg = f.message(t, h)
	assert.Equal(t, "", msg.Content)
	assert.Equal(t, url, msg.MediaURL)
	assert.False(t, msg.IsError)
	assert.Empty(t, f.fake.CallsTo(gatewaytest.OpImage)[0].History)
}

func TestVideoProgressReplacesPendingText(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.fake.On(gatewaytest.OpVideo, gatewaytest.Reply{
		Value:    "https://example.com/v.mp4",
		Progress: []string{"Rendering frames..."},
		Gate:     gate,
	})

	h := f.run(t, Request{Mode: ModeVideo, Input: "waves"})
	assert.Eventually(t, func() bool { return f.content(h)() == "Rendering frames..." }, waitFor, time.Millisecond)
	assert.Equal(t, StateStreaming, h.State())

	close(gate)
	require.NoError(t, wait(t, h))
	msg := f.message(t, h)
	assert.Equal(t, model.KindVideo, msg.Kind)
	assert.Equal(t, "https://example.com/v.mp4", msg.MediaURL)
	assert.Equal(t, "", msg.Content)
}

func TestMindMapPartialDocument(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.fake.On(gatewaytest.OpMindMap, gatewaytest.Reply{Fragments: []string{`{"topic":"S`, `olar"}`}, Gate: gate})

	// Seed a conversation so history would be available.
	f.run(t, Request{Input: "earlier"})
	h := f.run(t, Request{Mode: ModeMindMap, Input: "Solar System"})

	gate <- struct{}{}
	assert.Eventually(t, func() bool { return f.content(h)() == `{"topic":"S` }, waitFor, time.Millisecond)
	partial := f.message(t, h)
	assert.Equal(t, model.KindMindMap, partial.Kind)
	assert.Equal(t, mindmap.StatusGenerating, mindmap.StatusOf(partial.Content, partial.Terminal()))
	assert.NotPanics(t, func() { mindmap.Preview(partial.Content) })

	gate <- struct{}{}
	require.NoError(t, wait(t, h))
	done := f.message(t, h)
	assert.Equal(t, mindmap.StatusReady, mindmap.StatusOf(done.Content, done.Terminal()))
	root, err := mindmap.Parse(done.Content)
	require.NoError(t, err)
	assert.Equal(t, "Solar", root.Topic)

	assert.Nil(t, f.fake.CallsTo(gatewaytest.OpMindMap)[0].History)
}

// =============================================================================
// FAILURES
// =============================================================================

func TestFailureBeforeFirstFragment(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("quota exceeded")
	f.fake.On(gatewaytest.OpChat, gatewaytest.Reply{Err: boom})

	h := f.run(t, Request{Input: "hi"})
	assert.ErrorIs(t, wait(t, h), boom)
	assert.Equal(t, StateFailed, h.State())

	msg := f.message(t, h)
	assert.True(t, msg.IsError)
	assert.Equal(t, "Error: quota exceeded", msg.Content)
}

func TestFailureMidStreamSubstitutesContent(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection reset")
	f.fake.On(gatewaytest.OpCodeReview, gatewaytest.Reply{Fragments: []string{"par", "tial"}, Err: boom})

	h := f.run(t, Request{Mode: ModeCode, Input: "func f() {}"})
	assert.ErrorIs(t, wait(t, h), boom)

	msg := f.message(t, h)
	assert.True(t, msg.IsError)
	assert.Equal(t, ErrorText(boom), msg.Content)
	assert.NotContains(t, msg.Content, "partial")

	// Frozen after failure.
	assert.ErrorIs(t, f.store.AppendContent(h.ConversationID, h.MessageID, "late"), storage.ErrMessageClosed)
}

func TestEmptyImageResultFails(t *testing.T) {
	f := newFixture(t)
	f.fake.On(gatewaytest.OpImage, gatewaytest.Reply{})

	h := f.run(t, Request{Mode: ModeImage, Input: "nothing"})
	require.Error(t, wait(t, h))
	assert.True(t, f.message(t, h).IsError)
}

func TestHistoryExcludesFailedMessages(t *testing.T) {
	f := newFixture(t)
	f.fake.On(gatewaytest.OpChat, gatewaytest.Reply{Err: errors.New("boom")})
	first := f.run(t, Request{Input: "one"})
	wait(t, first)

	f.fake.On(gatewaytest.OpChat, gatewaytest.Reply{Fragments: []string{"ok"}})
	second := f.run(t, Request{Input: "two"})
	require.NoError(t, wait(t, second))

	calls := f.fake.CallsTo(gatewaytest.OpChat)
	require.Len(t, calls, 2)
	require.Len(t, calls[1].History, 1)
	assert.Equal(t, "one", calls[1].History[0].Content)
	assert.Equal(t, "two", calls[1].Input)
	assert.Equal(t, first.ConversationID, second.ConversationID)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestConcurrentFlowsDoNotInterfere(t *testing.T) {
	f := newFixture(t)
	gateA := make(chan struct{})
	f.fake.On(gatewaytest.OpCodeReview, gatewaytest.Reply{Fragments: []string{"A1", "A2", "A3"}, Gate: gateA})
	a := f.run(t, Request{Mode: ModeCode, Input: "review this"})

	f.store.ClearActive()
	gateB := make(chan struct{})
	f.fake.On(gatewaytest.OpChat, gatewaytest.Reply{Fragments: []string{"B1", "B2", "B3"}, Gate: gateB})
	b := f.run(t, Request{Input: "unrelated"})

	require.NotEqual(t, a.ConversationID, b.ConversationID)
	assert.True(t, f.rec.Busy())
	assert.Len(t, f.rec.Outstanding(), 2)
	assert.True(t, f.rec.BusyIn(a.ConversationID))

	for i := 0; i < 3; i++ {
		gateB <- struct{}{}
		gateA <- struct{}{}
	}
	require.NoError(t, wait(t, a))
	require.NoError(t, wait(t, b))

	assert.Equal(t, "A1A2A3", f.message(t, a).Content)
	assert.Equal(t, "B1B2B3", f.message(t, b).Content)
	assert.False(t, f.rec.Busy())
}

func TestDeleteSupersedesRunningRequest(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.fake.On(gatewaytest.OpChat, gatewaytest.Reply{Fragments: []string{"x", "y"}, Gate: gate})

	h := f.run(t, Request{Input: "hi"})
	gate <- struct{}{}
	assert.Eventually(t, func() bool { return f.content(h)() == "x" }, waitFor, time.Millisecond)

	require.NoError(t, f.rec.Delete(h.ConversationID))
	assert.NoError(t, wait(t, h))
	assert.Equal(t, StateSuperseded, h.State())
	assert.Empty(t, f.store.List())
	assert.False(t, f.rec.Busy())
}

func TestLateTitleAfterDeleteIsNoop(t *testing.T) {
	f := newFixture(t)
	titleGate := make(chan struct{})
	f.fake.
		On(gatewaytest.OpChat, gatewaytest.Reply{Fragments: []string{"ok"}}).
		On(gatewaytest.OpTitle, gatewaytest.Reply{Value: "Too Late", Gate: titleGate})

	h := f.run(t, Request{Input: "hi"})
	require.NoError(t, wait(t, h))

	// Delete behind the reconciler's back so the title task is not cancelled.
	require.NoError(t, f.store.Delete(h.ConversationID))
	close(titleGate)

	require.Eventually(t, func() bool { return len(f.fake.CallsTo(gatewaytest.OpTitle)) == 1 }, waitFor, time.Millisecond)
	require.NoError(t, f.rec.Close())

	assert.Empty(t, f.store.List())
	_, err := f.store.Get(h.ConversationID)
	assert.ErrorIs(t, err, storage.ErrConversationDeleted)
}

// titleSpy reports when Title returns.
type titleSpy struct {
	*gatewaytest.Fake
	returned chan error
}

func (s titleSpy) Title(ctx context.Context, seed string) (string, error) {
	title, err := s.Fake.Title(ctx, seed)
	s.returned <- err
	return title, err
}

func TestDeleteCancelsTitleTask(t *testing.T) {
	store := storage.NewConversationStore(kv.NewMemoryStore())
	spy := titleSpy{Fake: gatewaytest.New(), returned: make(chan error, 1)}
	spy.On(gatewaytest.OpChat, gatewaytest.Reply{Fragments: []string{"ok"}}).
		On(gatewaytest.OpTitle, gatewaytest.Reply{Value: "Never", Gate: make(chan struct{})})
	rec := New(store, spy, nil)
	t.Cleanup(func() { rec.Close() })

	h, err := rec.Run(context.Background(), Request{Input: "hi"})
	require.NoError(t, err)
	require.NoError(t, wait(t, h))
	require.NoError(t, rec.Delete(h.ConversationID))

	select {
	case err := <-spy.returned:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("title task was not cancelled")
	}
	assert.Empty(t, store.List())
}

func TestCloseCancelsInFlight(t *testing.T) {
	f := newFixture(t)
	f.fake.On(gatewaytest.OpChat, gatewaytest.Reply{Fragments: []string{"never"}, Gate: make(chan struct{})})

	h := f.run(t, Request{Input: "hi"})
	require.NoError(t, f.rec.Close())

	assert.Equal(t, StateFailed, h.State())
	msg := f.message(t, h)
	assert.True(t, msg.IsError)
	assert.Equal(t, "Error: generation was cancelled.", msg.Content)

	_, err := f.rec.Run(context.Background(), Request{Input: "again"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHandleCancel(t *testing.T) {
	f := newFixture(t)
	f.fake.On(gatewaytest.OpScript, gatewaytest.Reply{Fragments: []string{"never"}, Gate: make(chan struct{})})

	h := f.run(t, Request{Mode: ModeScript, Input: "a play"})
	h.Cancel()

	assert.ErrorIs(t, wait(t, h), context.Canceled)
	assert.True(t, f.message(t, h).IsError)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestChatWithImageIsPromoted(t *testing.T) {
	f := newFixture(t)
	f.fake.On(gatewaytest.OpChatWithImage, gatewaytest.Reply{Fragments: []string{"a cat"}})
	img := &model.Attachment{MimeType: "image/jpeg", Data: []byte{0xff, 0xd8}}

	h := f.run(t, Request{Mode: ModeChat, Input: "what is this?", Image: img})
	require.NoError(t, wait(t, h))

	assert.Equal(t, ModeChatWithImage, h.Mode)
	calls := f.fake.CallsTo(gatewaytest.OpChatWithImage)
	require.Len(t, calls, 1)
	assert.Equal(t, img.Data, calls[0].Image.Data)

	conv, _ := f.store.Get(h.ConversationID)
	assert.Equal(t, model.KindImage, conv.Messages[0].Kind)
	assert.Equal(t, img.DataURI(), conv.Messages[0].MediaURL)
}

func TestRunValidation(t *testing.T) {
	f := newFixture(t)
	img := &model.Attachment{MimeType: "image/png", Data: []byte{1}}

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"empty input", Request{Mode: ModeChat, Input: "   "}, ErrEmptyInput},
		{"image outside chat", Request{Mode: ModeCode, Input: "x", Image: img}, ErrImageNotAllowed},
		{"missing image", Request{Mode: ModeChatWithImage, Input: "x"}, ErrImageRequired},
		{"unknown mode", Request{Mode: "poem", Input: "x"}, ErrUnknownMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rec.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.store.List(), "rejected requests must not touch the store")
}

func TestProvisionalTitles(t *testing.T) {
	assert.Equal(t, "New Chat", ModeChat.ProvisionalTitle("anything"))
	assert.Equal(t, "Code: main.go", ModeCode.ProvisionalTitle("main.go"))
	assert.Equal(t, "Mind Map: Solar System", ModeMindMap.ProvisionalTitle("Solar System"))
	assert.Equal(t, "Video: a b", ModeVideo.ProvisionalTitle("a\n  b"))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("MindMap")
	require.NoError(t, err)
	assert.Equal(t, ModeMindMap, m)

	_, err = ParseMode("poem")
	assert.Error(t, err)
}
