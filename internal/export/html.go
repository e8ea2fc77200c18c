// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jeranaias/muse/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter produces a standalone, print-ready page with embedded CSS.
// With Options.Print set, the page opens the print dialog when loaded.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export converts a conversation to HTML format.
func (e *HTMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if !theme.Valid() {
		theme = model.ThemeLight
	}
	exported := e.options.now()

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(conv.Title)))
	sb.WriteString("    <meta name=\"generator\" content=\"muse\">\n")
	sb.WriteString(fmt.Sprintf("    <meta name=\"date\" content=\"%s\">\n", exported.Format(time.RFC3339)))
	sb.WriteString(stylesheet)
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", theme))

	sb.WriteString("<header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("<h1>%s</h1>\n", html.EscapeString(conv.Title)))
	sb.WriteString(fmt.Sprintf("<p class=\"metadata\">Exported %s &middot; %d messages</p>\n",
		formatTimestamp(exported), len(conv.Messages)))
	sb.WriteString("</header>\n")

	sb.WriteString("<main class=\"conversation\">\n")
	for _, msg := range conv.Messages {
		rendered, err := renderMessageHTML(e.options, msg)
		if err != nil {
			return nil, err
		}
		sb.WriteString(rendered)
	}
	sb.WriteString("</main>\n")

	if e.options.Print {
		sb.WriteString("<script>window.addEventListener('load', function () { window.print(); });</script>\n")
	}
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const stylesheet = `    <style>
        :root {
            --font-sans: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            --font-mono: "SF Mono", Menlo, Consolas, monospace;
        }

        .light-theme {
            --bg: #ffffff;
            --text: #1f2328;
            --muted: #656d76;
            --border: #d0d7de;
            --user-bg: #eef4ff;
            --model-bg: #f6f8fa;
            --code-bg: #f6f8fa;
            --error: #cf222e;
        }

        .dark-theme {
            --bg: #0d1117;
            --text: #e6edf3;
            --muted: #8d96a0;
            --border: #30363d;
            --user-bg: #13233a;
            --model-bg: #161b22;
            --code-bg: #161b22;
            --error: #ff7b72;
        }

        body {
            margin: 0 auto;
            max-width: 860px;
            padding: 24px;
            background: var(--bg);
            color: var(--text);
            font-family: var(--font-sans);
            line-height: 1.6;
        }

        .header {
            border-bottom: 2px solid var(--border);
            margin-bottom: 24px;
        }

        .metadata, .timestamp {
            color: var(--muted);
            font-size: 13px;
        }

        .message {
            margin-bottom: 16px;
            padding: 16px;
            border-radius: 8px;
            border-left: 4px solid var(--border);
        }

        .user-message { background: var(--user-bg); }
        .model-message { background: var(--model-bg); }
        .error-message { border-left-color: var(--error); color: var(--error); }

        .message-header {
            display: flex;
            justify-content: space-between;
            margin-bottom: 8px;
        }

        .role-label { font-weight: 600; }

        pre, code {
            font-family: var(--font-mono);
            background: var(--code-bg);
        }

        pre {
            padding: 12px;
            overflow-x: auto;
            border: 1px solid var(--border);
            border-radius: 6px;
        }

        img { max-width: 100%; border-radius: 6px; }

        @media print {
            body { max-width: none; padding: 0; }
            .message { page-break-inside: avoid; }
        }
    </style>
`
