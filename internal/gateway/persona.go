// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"strings"

	"github.com/jeranaias/muse/internal/model"
)

// Persona selects the system prompt for an operation.
type Persona int

const (
	PersonaAssistant Persona = iota
	PersonaCodeReviewer
	PersonaScriptWriter
	PersonaMindMap
)

const assistantPrompt = `You are Muse, a helpful and friendly assistant.
Answer in the same language as the user. Use Markdown when it helps readability.`

const codeReviewerPrompt = `You are an expert code reviewer.
Review the code or answer the question you are given. Point out bugs, security issues and unclear naming,
then suggest concrete improvements with corrected code in fenced Markdown blocks.`

const scriptWriterPrompt = `You are a professional script writer.
Write a complete, well-structured script for the request: title, scene headings, stage directions and dialogue.
Format it in Markdown.`

// MindMapSchema describes the JSON document the mind-map operation returns.
const MindMapSchema = `{"topic": string, "children": [ { "topic": string, "children": [ ... ] } ]}`

const mindMapPrompt = `You generate mind maps.
Respond with a single JSON object and nothing else, matching this schema:
` + MindMapSchema + `
Use at most four levels and keep every topic under eight words.`

const titlePrompt = `Generate a short title (3-6 words) for a conversation that starts with the message below.
Reply with the title only, without quotes or punctuation at the end.

Message: `

// SystemPrompt combines the persona with the user's preferences.
func SystemPrompt(p Persona, prefs model.Preferences) string {
	var base string
	switch p {
	case PersonaCodeReviewer:
		base = codeReviewerPrompt
	case PersonaScriptWriter:
		base = scriptWriterPrompt
	case PersonaMindMap:
		base = mindMapPrompt
	default:
		base = assistantPrompt
	}
	if extra := prefs.SystemInstruction(); extra != "" {
		return base + "\n\n" + extra
	}
	return base
}

// TitlePrompt builds the title-generation request for seed.
func TitlePrompt(seed string) string {
	return titlePrompt + strings.TrimSpace(seed)
}
