// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mindmap parses the topic-tree documents produced by the mind-map
// operation. While a document is still streaming it is usually invalid JSON;
// Preview repairs it into a best-effort tree for display.
package mindmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Node is one topic with its subtopics.
type Node struct {
	Topic    string  `json:"topic"`
	Children []*Node `json:"children,omitempty"`
}

// ErrNoTopic is returned for documents whose root has no topic.
var ErrNoTopic = errors.New("mind map has no root topic")

// Status tells a renderer what to do with a mind-map message.
type Status int

const (
	// StatusGenerating means the document is incomplete; show a preview.
	StatusGenerating Status = iota
	// StatusReady means the document parsed.
	StatusReady
	// StatusInvalid means generation finished but the document did not parse.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusGenerating:
		return "generating"
	case StatusReady:
		return "ready"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Parse decodes a complete document.
func Parse(doc string) (*Node, error) {
	var root Node
	if err := json.Unmarshal([]byte(stripFences(doc)), &root); err != nil {
		return nil, fmt.Errorf("parse mind map: %w", err)
	}
	if strings.TrimSpace(root.Topic) == "" {
		return nil, ErrNoTopic
	}
	return &root, nil
}

// Preview returns the best tree recoverable from a possibly partial document.
// complete reports whether doc parsed without repair. Node is nil when
// nothing useful could be recovered.
func Preview(doc string) (node *Node, complete bool) {
	if n, err := Parse(doc); err == nil {
		return n, true
	}

	body := stripFences(doc)
	if strings.TrimSpace(body) == "" {
		return nil, false
	}
	repaired, err := jsonrepair.JSONRepair(body)
	if err != nil {
		return nil, false
	}
	var root Node
	if err := json.Unmarshal([]byte(repaired), &root); err != nil || root.Topic == "" {
		return nil, false
	}
	return &root, false
}

// StatusOf decides how to render doc. A structured parse is only attempted
// once the stream is done.
func StatusOf(doc string, done bool) Status {
	if !done {
		return StatusGenerating
	}
	if _, err := Parse(doc); err != nil {
		return StatusInvalid
	}
	return StatusReady
}

// Walk visits every node depth-first with its depth, root at 0.
func (n *Node) Walk(fn func(node *Node, depth int)) {
	var visit func(*Node, int)
	visit = func(node *Node, depth int) {
		fn(node, depth)
		for _, c := range node.Children {
			if c != nil {
				visit(c, depth+1)
			}
		}
	}
	visit(n, 0)
}

// Outline renders the tree as an indented Markdown list.
func (n *Node) Outline() string {
	var b strings.Builder
	n.Walk(func(node *Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString("- ")
		b.WriteString(node.Topic)
		b.WriteByte('\n')
	})
	return b.String()
}

// stripFences removes a surrounding Markdown code fence, which some models
// add despite being asked for bare JSON.
func stripFences(doc string) string {
	s := strings.TrimSpace(doc)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
