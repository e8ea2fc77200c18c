// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/muse/internal/config"
	"github.com/jeranaias/muse/internal/gateway/gatewaytest"
	"github.com/jeranaias/muse/internal/kv"
	"github.com/jeranaias/muse/internal/model"
	"github.com/jeranaias/muse/internal/reconcile"
)

type session struct {
	app  *App
	fake *gatewaytest.Fake
	repl *REPL
	out  *bytes.Buffer
	dir  string
}

func newSession(t *testing.T) *session {
	t.Helper()
	cfg := config.Default()
	cfg.Export.Dir = t.TempDir()
	cfg.UI.RenderMarkdown = false

	fake := gatewaytest.New().On(gatewaytest.OpTitle, gatewaytest.Reply{Value: "Greeting"})
	app, err := NewAppWith(cfg, kv.NewMemoryStore(), fake)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	var out bytes.Buffer
	return &session{app: app, fake: fake, repl: NewREPL(app, &out), out: &out, dir: cfg.Export.Dir}
}

func (s *session) do(t *testing.T, line string) {
	t.Helper()
	cont, err := s.repl.Handle(context.Background(), line)
	require.NoError(t, err)
	require.True(t, cont)
}

func (s *session) active(t *testing.T) *model.Conversation {
	t.Helper()
	c := s.app.Store.Snapshot().Active()
	require.NotNil(t, c)
	return c
}

func TestChatStreamsReply(t *testing.T) {
	s := newSession(t)
	s.fake.On(gatewaytest.OpChat, gatewaytest.Reply{Fragments: []string{"Hello", " there", "!"}})

	s.do(t, "hi")

	assert.Contains(t, s.out.String(), "Hello there!")
	c := s.active(t)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, "hi", c.Messages[0].Content)
	assert.Equal(t, "Hello there!", c.Messages[1].Content)
}

func TestFailedGenerationPrintsError(t *testing.T) {
	s := newSession(t)
	s.fake.On(gatewaytest.OpChat, gatewaytest.Reply{
		Fragments: []string{"partial"},
		Err:       errors.New("quota exceeded"),
	})

	s.do(t, "hi")

	assert.Contains(t, s.out.String(), "Error: quota exceeded")
	last := s.active(t).Messages[1]
	assert.True(t, last.IsError)

	s.do(t, "/status")
	assert.Equal(t, 1, s.app.Usage.Summary().ByMode["chat"].Failed)
	assert.Contains(t, s.out.String(), "1 requests, 1 failed")
}

func TestConversationCommands(t *testing.T) {
	s := newSession(t)
	first, err := s.app.Store.Create(model.NewUserMessage("a"), "First")
	require.NoError(t, err)
	second, err := s.app.Store.Create(model.NewUserMessage("b"), "Second")
	require.NoError(t, err)

	s.do(t, "/list")
	out := s.out.String()
	assert.Less(t, strings.Index(out, "Second"), strings.Index(out, "First"))

	s.do(t, "/pin 2")
	assert.Equal(t, first, s.app.Store.Snapshot().Ordered()[0].ID)

	s.do(t, "/rename -c 1 Renamed title")
	c, err := s.app.Store.Get(first)
	require.NoError(t, err)
	assert.Equal(t, "Renamed title", c.Title)

	s.do(t, "/open "+second[:8])
	assert.Equal(t, second, s.app.Store.ActiveID())

	s.do(t, "/delete")
	assert.Empty(t, s.app.Store.ActiveID())
	assert.True(t, s.app.Store.IsDeleted(second))

	s.do(t, "/new")
	assert.Len(t, s.app.Store.List(), 1)
}

func TestResolveErrors(t *testing.T) {
	s := newSession(t)

	_, err := s.repl.resolve("")
	assert.ErrorIs(t, err, errNoActive)

	_, err = s.repl.resolve("3")
	assert.Error(t, err)

	_, err = s.repl.resolve("nope")
	assert.Error(t, err)
}

func TestImageModeSavesResult(t *testing.T) {
	s := newSession(t)
	s.fake.On(gatewaytest.OpImage, gatewaytest.Reply{Value: "data:image/png;base64,iVBORw0KGgo="})

	s.do(t, "/mode image")
	assert.Equal(t, "muse:image> ", s.repl.prompt())
	s.do(t, "a red fox")

	c := s.active(t)
	assert.Equal(t, model.KindImage, c.Messages[1].Kind)

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".png"))
	assert.Contains(t, s.out.String(), "Image saved to")
}

// fetchingFake serves video downloads the way a credentialed provider does.
type fetchingFake struct {
	*gatewaytest.Fake
	fetched []string
}

func (f *fetchingFake) FetchMedia(_ context.Context, uri string) (io.ReadCloser, string, error) {
	f.fetched = append(f.fetched, uri)
	return io.NopCloser(strings.NewReader("mp4")), "video/mp4", nil
}

func TestVideoModeDownloadsWithoutStoringCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Export.Dir = t.TempDir()
	cfg.UI.RenderMarkdown = false

	const uri = "https://files.example.com/v1/files/abc:download?alt=media"
	fake := &fetchingFake{Fake: gatewaytest.New().
		On(gatewaytest.OpTitle, gatewaytest.Reply{Value: "Waves"}).
		On(gatewaytest.OpVideo, gatewaytest.Reply{Value: uri})}
	app, err := NewAppWith(cfg, kv.NewMemoryStore(), fake)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	var out bytes.Buffer
	repl := NewREPL(app, &out)

	for _, line := range []string{"/mode video", "waves at dusk"} {
		cont, err := repl.Handle(context.Background(), line)
		require.NoError(t, err)
		require.True(t, cont)
	}

	c := app.Store.Snapshot().Active()
	require.NotNil(t, c)
	assert.Equal(t, uri, c.Messages[1].MediaURL)
	assert.Equal(t, []string{uri}, fake.fetched)

	entries, err := os.ReadDir(cfg.Export.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".mp4"))
}

func TestUsageRecordsEachTurnsInput(t *testing.T) {
	s := newSession(t)
	s.fake.On(gatewaytest.OpChat, gatewaytest.Reply{Fragments: []string{"ok"}})

	s.do(t, "first question")
	s.do(t, "follow-up question")

	var prompts []string
	for _, rec := range s.app.Usage.Summary().Slowest {
		prompts = append(prompts, rec.Prompt)
	}
	assert.ElementsMatch(t, []string{"first question", "follow-up question"}, prompts)
}

func TestAttachPromotesToImageChat(t *testing.T) {
	s := newSession(t)
	s.fake.On(gatewaytest.OpChatWithImage, gatewaytest.Reply{Fragments: []string{"A cat."}})

	path := filepath.Join(t.TempDir(), "cat.png")
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	require.NoError(t, os.WriteFile(path, png, 0644))

	s.do(t, "/attach "+path)
	require.NotNil(t, s.repl.attachment)
	s.do(t, "what is this?")

	calls := s.fake.CallsTo(gatewaytest.OpChatWithImage)
	require.Len(t, calls, 1)
	assert.Equal(t, "image/png", calls[0].Image.MimeType)
	assert.Nil(t, s.repl.attachment)
	assert.Equal(t, model.KindImage, s.active(t).Messages[0].Kind)
}

func TestAttachRejectsNonImage(t *testing.T) {
	s := newSession(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0644))

	_, err := s.repl.Handle(context.Background(), "/attach "+path)
	assert.Error(t, err)
	assert.Nil(t, s.repl.attachment)
}

func TestExportAndUpload(t *testing.T) {
	s := newSession(t)
	s.fake.On(gatewaytest.OpChat, gatewaytest.Reply{Fragments: []string{"Sure."}})
	s.do(t, "help me")

	s.do(t, "/export md")
	s.do(t, "/export --all")
	assert.Contains(t, s.out.String(), "Export complete:")

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Len(t, names, 2)
	assert.True(t, strings.HasSuffix(names[0], ".md") || strings.HasSuffix(names[1], ".md"))

	s.do(t, "/upload doc")
	assert.Contains(t, s.out.String(), "Drive upload is not configured")
}

func TestExportUnknownFormat(t *testing.T) {
	s := newSession(t)
	_, err := s.app.Store.Create(model.NewUserMessage("a"), "A")
	require.NoError(t, err)

	_, err = s.repl.Handle(context.Background(), "/export pdf")
	assert.Error(t, err)
}

func TestPrefsAndTheme(t *testing.T) {
	s := newSession(t)

	s.do(t, "/prefs name Ada")
	s.do(t, "/prefs instruction Answer  in haiku.")
	p := s.app.Prefs.Get()
	assert.Equal(t, "Ada", p.UserName)
	assert.Equal(t, "Answer  in haiku.", p.CustomInstruction)

	s.do(t, "/theme dark")
	assert.Equal(t, model.ThemeDark, s.app.Theme.Get())
	s.do(t, "/theme toggle")
	assert.Equal(t, model.ThemeLight, s.app.Theme.Get())

	_, err := s.repl.Handle(context.Background(), "/theme neon")
	assert.Error(t, err)

	s.do(t, "/prefs clear")
	assert.Equal(t, model.Preferences{}, s.app.Prefs.Get())
}

func TestModeCommand(t *testing.T) {
	s := newSession(t)

	s.do(t, "/mode")
	assert.Contains(t, s.out.String(), "mindmap")

	s.do(t, "/mode CODE")
	assert.Equal(t, reconcile.ModeCode, s.repl.mode)

	_, err := s.repl.Handle(context.Background(), "/mode poetry")
	assert.Error(t, err)
}

func TestQuitAndUnknown(t *testing.T) {
	s := newSession(t)

	cont, err := s.repl.Handle(context.Background(), "/quit")
	assert.NoError(t, err)
	assert.False(t, cont)

	cont, err = s.repl.Handle(context.Background(), "exit")
	assert.NoError(t, err)
	assert.False(t, cont)

	cont, err = s.repl.Handle(context.Background(), "/frobnicate")
	assert.Error(t, err)
	assert.True(t, cont)
}

func TestArgParser(t *testing.T) {
	p := NewArgParser([]string{"--mode", "image", "--print", "-c=3", "a", "fox", "--", "--raw"}, "print")

	assert.Equal(t, "image", p.Flag("mode"))
	assert.True(t, p.BoolFlag("print"))
	assert.Equal(t, "3", p.Flag("c"))
	assert.Equal(t, 3, p.PositionalCount())
	assert.Equal(t, "a fox --raw", p.PositionalFrom(0))
	assert.Equal(t, "", p.Positional(5))
	assert.Equal(t, "text", p.FlagOrDefault("format", "text"))
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "one two\nthree", WrapText("one two three", 8))
	assert.Equal(t, "short\n\nkept", WrapText("short\n\nkept", 20))
	assert.Equal(t, "你好\n世界", WrapText("你好 世界", 5))
}

func TestRendererMindMap(t *testing.T) {
	r := NewRenderer(model.ThemeLight, 80, false)

	partial := &model.Message{Role: model.RoleModel, Kind: model.KindMindMap, Content: `{"topic":"Solar","children":[{"topic":"Sun"`, Streaming: true}
	body := r.Body(partial)
	assert.Contains(t, body, "Solar")
	assert.Contains(t, body, "generating")

	done := &model.Message{Role: model.RoleModel, Kind: model.KindMindMap, Content: `{"topic":"Solar"}`}
	assert.NotContains(t, r.Body(done), "[mind map")
}

func TestMediaLine(t *testing.T) {
	video := &model.Message{Kind: model.KindVideo, MediaURL: "https://example.com/v.mp4"}
	assert.Equal(t, "[Video: https://example.com/v.mp4]", mediaLine(video))

	img := &model.Message{Kind: model.KindImage, MediaURL: "data:image/png;base64,iVBORw0KGgo="}
	assert.Equal(t, "[Image attached: image/png, 1 KB]", mediaLine(img))
}

func TestMainVersionAndHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 0, Main([]string{"--version"}, &out, &errOut))
	assert.Contains(t, out.String(), "muse ")

	out.Reset()
	assert.Equal(t, 0, Main([]string{"--help"}, &out, &errOut))
	assert.Contains(t, out.String(), "Usage:")
}

func TestMainRejectsBadConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, Main([]string{"--storage", "tape"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "storage.backend")
}
