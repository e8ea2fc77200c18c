// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini implements gateway.Gateway on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/jeranaias/muse/internal/gateway"
	"github.com/jeranaias/muse/internal/model"
	"github.com/jeranaias/muse/internal/util"
)

const providerName = "gemini"

// Config configures the Gemini adapter.
type Config struct {
	APIKey     string
	TextModel  string
	ImageModel string
	VideoModel string

	// PollInterval paces video operation polling.
	PollInterval time.Duration
}

// DefaultConfig returns the default model selection.
func DefaultConfig() Config {
	return Config{
		TextModel:    "gemini-2.5-flash",
		ImageModel:   "imagen-4.0-generate-001",
		VideoModel:   "veo-2.0-generate-001",
		PollInterval: 10 * time.Second,
	}
}

// Client is a gateway.Gateway backed by genai.
type Client struct {
	client *genai.Client
	http   *http.Client
	cfg    Config
}

var (
	_ gateway.Gateway      = (*Client)(nil)
	_ gateway.MediaFetcher = (*Client)(nil)
)

// New creates a Gemini client. Empty model names fall back to DefaultConfig.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	def := DefaultConfig()
	if cfg.TextModel == "" {
		cfg.TextModel = def.TextModel
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = def.ImageModel
	}
	if cfg.VideoModel == "" {
		cfg.VideoModel = def.VideoModel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Client{client: client, http: http.DefaultClient, cfg: cfg}, nil
}

// =============================================================================
// STREAMED OPERATIONS
// =============================================================================

func (c *Client) Chat(ctx context.Context, history []*model.Message, input string, prefs model.Preferences) gateway.Stream {
	contents := append(toContents(history), genai.NewContentFromText(input, genai.RoleUser))
	return c.stream(ctx, "chat", contents, c.contentConfig(gateway.PersonaAssistant, prefs))
}

func (c *Client) ChatWithImage(ctx context.Context, history []*model.Message, input string, image model.Attachment, prefs model.Preferences) gateway.Stream {
	parts := []*genai.Part{
		genai.NewPartFromBytes(image.Data, image.MimeType),
		genai.NewPartFromText(input),
	}
	contents := append(toContents(history), genai.NewContentFromParts(parts, genai.RoleUser))
	return c.stream(ctx, "chat_with_image", contents, c.contentConfig(gateway.PersonaAssistant, prefs))
}

func (c *Client) CodeReview(ctx context.Context, history []*model.Message, query string, prefs model.Preferences) gateway.Stream {
	contents := append(toContents(history), genai.NewContentFromText(query, genai.RoleUser))
	return c.stream(ctx, "code_review", contents, c.contentConfig(gateway.PersonaCodeReviewer, prefs))
}

func (c *Client) Script(ctx context.Context, history []*model.Message, prompt string, prefs model.Preferences) gateway.Stream {
	contents := append(toContents(history), genai.NewContentFromText(prompt, genai.RoleUser))
	return c.stream(ctx, "script", contents, c.contentConfig(gateway.PersonaScriptWriter, prefs))
}

func (c *Client) MindMap(ctx context.Context, prompt string, prefs model.Preferences) gateway.Stream {
	cfg := c.contentConfig(gateway.PersonaMindMap, prefs)
	cfg.ResponseMIMEType = "application/json"
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	return c.stream(ctx, "mind_map", contents, cfg)
}

func (c *Client) contentConfig(p gateway.Persona, prefs model.Preferences) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(gateway.SystemPrompt(p, prefs), genai.RoleUser),
	}
}

// stream adapts the genai response sequence to text fragments.
func (c *Client) stream(ctx context.Context, op string, contents []*genai.Content, cfg *genai.GenerateContentConfig) gateway.Stream {
	return func(yield func(string, error) bool) {
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.cfg.TextModel, contents, cfg) {
			if err != nil {
				yield("", gateway.Wrap(providerName, op, err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

// toContents converts stored messages to genai history. Image attachments
// stored as data: URIs are sent inline; generated media is sent as text.
func toContents(history []*model.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == model.RoleModel {
			role = genai.RoleModel
		}
		if m.Role == model.RoleUser && m.Kind == model.KindImage {
			if att, ok := model.ParseDataURI(m.MediaURL); ok {
				parts := []*genai.Part{genai.NewPartFromBytes(att.Data, att.MimeType)}
				if m.Content != "" {
					parts = append(parts, genai.NewPartFromText(m.Content))
				}
				contents = append(contents, genai.NewContentFromParts(parts, role))
				continue
			}
		}
		if m.Content == "" {
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

// =============================================================================
// SINGLE-VALUE OPERATIONS
// =============================================================================

// Image generates with Imagen and returns the first image as a data: URI.
func (c *Client) Image(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateImages(ctx, c.cfg.ImageModel, prompt, nil)
	if err != nil {
		return "", gateway.Wrap(providerName, "image", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return "", gateway.Wrap(providerName, "image", gateway.ErrEmptyResponse)
	}
	img := resp.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return model.Attachment{MimeType: mime, Data: img.ImageBytes}.DataURI(), nil
}

var videoProgress = []string{
	"Generating video...",
	"Still working on your video...",
	"Rendering frames...",
	"Almost there...",
}

// Video starts a Veo operation and polls it until done. Polls are paced by a
// rate limiter so a short interval cannot flood the API.
func (c *Client) Video(ctx context.Context, prompt string, onProgress func(string)) (string, error) {
	op, err := c.client.Models.GenerateVideos(ctx, c.cfg.VideoModel, prompt, nil, nil)
	if err != nil {
		return "", gateway.Wrap(providerName, "video", err)
	}

	limiter := rate.NewLimiter(rate.Every(c.cfg.PollInterval), 1)
	// Consume the initial token so the first poll waits a full interval.
	limiter.Allow()

	for poll := 0; !op.Done; poll++ {
		if onProgress != nil {
			onProgress(videoProgress[poll%len(videoProgress)])
		}
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}
		op, err = c.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return "", gateway.Wrap(providerName, "video", err)
		}
		log.Debug().Str("operation", op.Name).Int("poll", poll+1).Bool("done", op.Done).Msg("VIDEO_POLL")
	}

	if len(op.Error) > 0 {
		return "", gateway.Wrap(providerName, "video", fmt.Errorf("operation failed: %v", op.Error["message"]))
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return "", gateway.Wrap(providerName, "video", gateway.ErrEmptyResponse)
	}
	return op.Response.GeneratedVideos[0].Video.URI, nil
}

// FetchMedia downloads a generated file. The API key travels in a header so
// the URI kept on the message stays free of credentials.
func (c *Client) FetchMedia(ctx context.Context, uri string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", gateway.Wrap(providerName, "fetch_media", err)
	}
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", gateway.Wrap(providerName, "fetch_media", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", gateway.Wrap(providerName, "fetch_media", fmt.Errorf("unexpected status %s", resp.Status))
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// Title asks the text model for a short title.
func (c *Client) Title(ctx context.Context, seed string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(gateway.TitlePrompt(seed), genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.TextModel, contents, nil)
	if err != nil {
		return "", gateway.Wrap(providerName, "title", err)
	}
	title := util.CleanTitle(resp.Text())
	if title == "" {
		return "", gateway.Wrap(providerName, "title", gateway.ErrEmptyResponse)
	}
	return title, nil
}
