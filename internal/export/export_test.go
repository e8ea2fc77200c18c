// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/muse/internal/model"
)

var (
	fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	msgTime  = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
)

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func testConversation(msgs ...*model.Message) *model.Conversation {
	for _, m := range msgs {
		m.Timestamp = msgTime
	}
	return &model.Conversation{ID: "c1", Title: "Test Chat", Messages: msgs, CreatedAt: msgTime}
}

func modelMessage(content string) *model.Message {
	return &model.Message{ID: model.NewID(), Role: model.RoleModel, Kind: model.KindText, Content: content}
}

// =============================================================================
// TEXT
// =============================================================================

func TestTextExporter_Layout(t *testing.T) {
	conv := testConversation(model.NewUserMessage("Hello"), modelMessage("Hi!"))

	out, err := NewTextExporter(testOptions()).Export(conv)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	rule := strings.Repeat("=", 50)
	dash := strings.Repeat("-", 50)
	want := "Test Chat\n" +
		"Exported: 2025-03-14 09:26:53\n" +
		rule + "\n\n" +
		"[2025-03-14 09:00:00] You:\nHello\n" + dash + "\n\n" +
		"[2025-03-14 09:00:00] Assistant:\nHi!\n" + dash + "\n\n"
	if string(out) != want {
		t.Errorf("text export mismatch\ngot:\n%s\nwant:\n%s", out, want)
	}
}

func TestTextExporter_UserLabelAndMedia(t *testing.T) {
	img := modelMessage("")
	img.Kind = model.KindImage
	img.MediaURL = "data:image/png;base64,AAAA"
	video := modelMessage("")
	video.Kind = model.KindVideo
	video.MediaURL = "https://example.com/v.mp4"
	conv := testConversation(model.NewUserMessage("draw"), img, video)

	opts := testOptions()
	opts.UserLabel = "Ada"
	out, err := NewTextExporter(opts).Export(conv)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	result := string(out)
	for _, want := range []string{"] Ada:\n", "[Image attached]", "[Video: https://example.com/v.mp4]"} {
		if !strings.Contains(result, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(result, "base64") {
		t.Error("inline image data should not be written to text exports")
	}
}

func TestTextExporter_MindMapOutline(t *testing.T) {
	mm := modelMessage(`{"topic":"Solar","children":[{"topic":"Earth"}]}`)
	mm.Kind = model.KindMindMap
	out, err := NewTextExporter(testOptions()).Export(testConversation(mm))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(string(out), "- Solar\n  - Earth") {
		t.Errorf("mind map should export as an outline, got:\n%s", out)
	}
}

// =============================================================================
// HTML
// =============================================================================

func TestHTMLExporter_PrintReady(t *testing.T) {
	conv := testConversation(model.NewUserMessage("Show **bold**"), modelMessage("```go\nfmt.Println(1)\n```"))

	out, err := NewHTMLExporter(testOptions()).Export(conv)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	result := string(out)
	for _, want := range []string{
		"<title>Test Chat</title>",
		"window.print()",
		"<strong>bold</strong>",
		`<code class="language-go">`,
		"@media print",
		`class="light-theme"`,
	} {
		if !strings.Contains(result, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
}

func TestHTMLExporter_NoPrint(t *testing.T) {
	opts := testOptions()
	opts.Print = false
	opts.Theme = model.ThemeDark
	out, err := NewHTMLExporter(opts).Export(testConversation(model.NewUserMessage("x")))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if strings.Contains(string(out), "window.print()") {
		t.Error("print script should be omitted")
	}
	if !strings.Contains(string(out), `class="dark-theme"`) {
		t.Error("dark theme not applied")
	}
}

// TestHTMLExporter_EscapesModelOutput checks raw HTML from the model never
// reaches the page.
func TestHTMLExporter_EscapesModelOutput(t *testing.T) {
	conv := testConversation(modelMessage("<script>alert('xss')</script>"))
	conv.Title = "<b>Title</b>"

	out, err := NewHTMLExporter(testOptions()).Export(conv)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	result := string(out)
	if strings.Contains(result, "<script>alert") {
		t.Error("raw script tag from model output was rendered")
	}
	if !strings.Contains(result, "&lt;b&gt;Title&lt;/b&gt;") {
		t.Error("title not escaped")
	}
}

func TestDocExporter_Fragment(t *testing.T) {
	img := modelMessage("")
	img.Kind = model.KindImage
	img.MediaURL = `https://example.com/a.png?x="1"`

	out, err := NewDocExporter(testOptions()).Export(testConversation(model.NewUserMessage("hi"), img))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	result := string(out)
	if strings.Contains(result, "<style>") || strings.Contains(result, "<script>") {
		t.Error("document export should carry no styling or scripts")
	}
	if !strings.Contains(result, `<img src="https://example.com/a.png?x=&#34;1&#34;"`) {
		t.Errorf("image not embedded with escaped URL:\n%s", result)
	}
}

// =============================================================================
// JSON / MARKDOWN
// =============================================================================

func TestJSONExporter_RoundTrip(t *testing.T) {
	conv := testConversation(model.NewUserMessage("Hello"), modelMessage("Hi"))

	out, err := NewJSONExporter().Export(conv)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	var back model.Conversation
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if back.ID != "c1" || len(back.Messages) != 2 || back.Messages[1].Content != "Hi" {
		t.Errorf("round trip mismatch: %+v", back)
	}

	if _, err := NewJSONExporter().Export(nil); !errors.Is(err, ErrNilConversation) {
		t.Errorf("Export(nil) = %v, want ErrNilConversation", err)
	}
}

func TestJSONExporter_ExportAll(t *testing.T) {
	out, err := NewJSONExporter().ExportAll(nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(out)) != "[]" {
		t.Errorf("ExportAll(nil) = %s, want []", out)
	}

	a := testConversation(model.NewUserMessage("a"))
	b := testConversation(model.NewUserMessage("b"))
	b.ID = "c2"
	out, err = NewJSONExporter().ExportAll([]*model.Conversation{a, b})
	if err != nil {
		t.Fatal(err)
	}
	var list []*model.Conversation
	if err := json.Unmarshal(out, &list); err != nil || len(list) != 2 {
		t.Errorf("ExportAll produced %d conversations, err %v", len(list), err)
	}
}

// TestYAMLNewlineInjection tests that newlines are escaped in frontmatter.
func TestYAMLNewlineInjection(t *testing.T) {
	conv := testConversation(model.NewUserMessage("test"))
	conv.Title = "Test\nInjection: malicious"

	out, err := NewMarkdownExporter(testOptions()).Export(conv)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if strings.Contains(string(out), "\nInjection: malicious\n") {
		t.Error("newline in title injected a YAML key")
	}
	if !strings.Contains(string(out), `title: "Test\nInjection: malicious"`) {
		t.Error("title should be quoted and escaped")
	}
}

func TestMarkdownExporter_ErrorQuoted(t *testing.T) {
	failed := modelMessage("")
	failed.Fail("Error: boom")

	out, err := NewMarkdownExporter(testOptions()).Export(testConversation(model.NewUserMessage("x"), failed))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(string(out), "> Error: boom") {
		t.Errorf("failed message should be quoted:\n%s", out)
	}
}

// =============================================================================
// FILES
// =============================================================================

func TestEmptyConversationValidation(t *testing.T) {
	empty := &model.Conversation{ID: "e", Title: "Empty"}
	for _, exp := range []Exporter{NewTextExporter(nil), NewHTMLExporter(nil), NewMarkdownExporter(nil), NewDocExporter(nil)} {
		if _, err := exp.Export(empty); !errors.Is(err, ErrNoMessages) {
			t.Errorf("%T.Export(empty) = %v, want ErrNoMessages", exp, err)
		}
	}
}

func TestForFormat(t *testing.T) {
	for format, ext := range map[string]string{"text": ".txt", "html": ".html", "json": ".json", "md": ".md", "doc": ".html"} {
		exp, err := ForFormat(format, nil)
		if err != nil {
			t.Fatalf("ForFormat(%q) failed: %v", format, err)
		}
		if exp.FileExtension() != ext {
			t.Errorf("ForFormat(%q).FileExtension() = %q, want %q", format, exp.FileExtension(), ext)
		}
	}
	if _, err := ForFormat("pdf", nil); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestExportToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	conv := testConversation(model.NewUserMessage("Hello"))
	conv.Title = "My/Chat"

	path, err := ExportToFile(conv, NewTextExporter(nil), dir)
	if err != nil {
		t.Fatalf("ExportToFile failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "My-Chat_") || filepath.Ext(path) != ".txt" {
		t.Errorf("unexpected file name %q", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "My/Chat\n") {
		t.Errorf("file content starts with %q", string(data[:10]))
	}
}

// TestFilenameSanitization tests that problematic characters are sanitized.
func TestFilenameSanitization(t *testing.T) {
	tests := []struct {
		input    string
		mustNot  []string
		mustHave []string
	}{
		{
			input:    "Test/Path\\Name:With*Special?Chars",
			mustNot:  []string{"/", "\\", ":", "*", "?"},
			mustHave: []string{"-"},
		},
		{
			input:    "Test<HTML>Tags|Pipe",
			mustNot:  []string{"<", ">", "|"},
			mustHave: []string{"-"},
		},
		{
			input:    "Test With Spaces\tAnd\nNewlines",
			mustNot:  []string{" ", "\t", "\n"},
			mustHave: []string{"_"},
		},
		{
			input:    "Test\x00\x01\x1fControl\x7fChars",
			mustNot:  []string{"\x00", "\x01", "\x1f", "\x7f"},
			mustHave: []string{"-"},
		},
	}

	for _, tt := range tests {
		result := sanitizeFilename(tt.input)
		for _, char := range tt.mustNot {
			if strings.Contains(result, char) {
				t.Errorf("sanitizeFilename(%q) contains forbidden character %q, got %q", tt.input, char, result)
			}
		}
		for _, char := range tt.mustHave {
			if !strings.Contains(result, char) {
				t.Errorf("sanitizeFilename(%q) should contain %q, got %q", tt.input, char, result)
			}
		}
	}

	if got := sanitizeFilename("   "); got != "conversation" {
		t.Errorf("sanitizeFilename(blank) = %q, want conversation", got)
	}
}
