// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/muse/internal/mindmap"
	"github.com/jeranaias/muse/internal/model"
	"github.com/jeranaias/muse/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for conversation exporters.
type Exporter interface {
	// Export converts a conversation to the target format and returns the content.
	Export(conv *model.Conversation) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".md", ".html").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

var (
	// ErrNilConversation is returned when there is nothing to export.
	ErrNilConversation = errors.New("conversation is nil")

	// ErrNoMessages is returned for conversations without messages.
	ErrNoMessages = errors.New("conversation has no messages")
)

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeTimestamps includes per-message timestamps.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	Theme model.Theme

	// UserLabel replaces "You" as the author of user messages.
	UserLabel string

	// Print makes the HTML page open the print dialog on load.
	Print bool

	// Now is the export clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeTimestamps: true,
		Theme:             model.ThemeLight,
		Print:             true,
		Now:               time.Now,
	}
}

func (o *Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o *Options) author(role model.Role) string {
	if role == model.RoleUser && strings.TrimSpace(o.UserLabel) != "" {
		return o.UserLabel
	}
	return role.DisplayName()
}

// ForFormat returns the exporter for a format name.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "text", "txt":
		return NewTextExporter(opts), nil
	case "html", "htm", "print":
		return NewHTMLExporter(opts), nil
	case "json":
		return NewJSONExporter(), nil
	case "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "doc", "gdoc":
		return NewDocExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// Filename builds the download name for conv in the exporter's format.
func Filename(conv *model.Conversation, exporter Exporter, now time.Time) string {
	return fmt.Sprintf("%s_%s%s",
		sanitizeFilename(conv.Title),
		now.Format("20060102_150405"),
		exporter.FileExtension(),
	)
}

// ExportToFile exports a conversation into dir and returns the file path.
func ExportToFile(conv *model.Conversation, exporter Exporter, dir string) (string, error) {
	content, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	outputPath := filepath.Join(dir, Filename(conv, exporter, time.Now()))
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

func validate(conv *model.Conversation) error {
	if conv == nil {
		return ErrNilConversation
	}
	if len(conv.Messages) == 0 {
		return ErrNoMessages
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(strings.TrimSpace(s), 50)

	var result []rune
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result = append(result, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			result = append(result, '_')
		case r < 32 || r == 127:
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "conversation"
	}
	return string(result)
}

// messageBody returns the exportable Markdown body of a message. Mind maps
// become outlines, media becomes a reference.
func messageBody(m *model.Message) string {
	body := strings.TrimSpace(m.Content)
	switch m.Kind {
	case model.KindMindMap:
		if root, err := mindmap.Parse(m.Content); err == nil {
			body = strings.TrimSpace(root.Outline())
		}
	case model.KindImage, model.KindVideo:
		if ref := mediaReference(m); ref != "" {
			if body != "" {
				body += "\n\n"
			}
			body += ref
		}
	}
	return body
}

// mediaReference is a short textual pointer to attached media. Inline data
// URIs are not reproduced.
func mediaReference(m *model.Message) string {
	if m.MediaURL == "" {
		return ""
	}
	label := "Image"
	if m.Kind == model.KindVideo {
		label = "Video"
	}
	if strings.HasPrefix(m.MediaURL, "data:") {
		return "[" + label + " attached]"
	}
	return "[" + label + ": " + m.MediaURL + "]"
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
