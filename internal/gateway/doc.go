// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway defines the generation capabilities muse consumes.
//
// A Gateway offers streamed text operations (chat, image-attached chat, code
// review, script writing, mind maps) and single-value operations (image,
// video, title). Streams are lazy iter.Seq2 sequences; a yielded error ends
// the stream.
//
// Provider adapters live in subpackages:
//
//   - gemini: Google Gemini, Imagen and Veo through google.golang.org/genai
//   - openai: OpenAI-compatible endpoints through go-openai
//   - gatewaytest: scripted fake for tests
package gateway
