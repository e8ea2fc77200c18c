// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai implements gateway.Gateway on OpenAI-compatible endpoints.
// Video generation is not offered and returns gateway.ErrUnsupported.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/jeranaias/muse/internal/gateway"
	"github.com/jeranaias/muse/internal/model"
	"github.com/jeranaias/muse/internal/util"
)

const providerName = "openai"

// Config configures the OpenAI adapter.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	ImageModel  string
	MaxTokens   int
	Temperature float32
}

// Client is a gateway.Gateway backed by go-openai.
type Client struct {
	client *openai.Client
	cfg    Config
}

var _ gateway.Gateway = (*Client)(nil)

// New creates an OpenAI client.
func New(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4TurboPreview
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openai.CreateImageModelDallE3
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	return &Client{client: openai.NewClientWithConfig(clientConfig), cfg: cfg}
}

func (c *Client) Chat(ctx context.Context, history []*model.Message, input string, prefs model.Preferences) gateway.Stream {
	msgs := c.messages(gateway.PersonaAssistant, prefs, history)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: input})
	return c.stream(ctx, "chat", msgs, false)
}

func (c *Client) ChatWithImage(ctx context.Context, history []*model.Message, input string, image model.Attachment, prefs model.Preferences) gateway.Stream {
	msgs := c.messages(gateway.PersonaAssistant, prefs, history)
	msgs = append(msgs, imageMessage(input, image.DataURI()))
	return c.stream(ctx, "chat_with_image", msgs, false)
}

func (c *Client) CodeReview(ctx context.Context, history []*model.Message, query string, prefs model.Preferences) gateway.Stream {
	msgs := c.messages(gateway.PersonaCodeReviewer, prefs, history)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: query})
	return c.stream(ctx, "code_review", msgs, false)
}

func (c *Client) Script(ctx context.Context, history []*model.Message, prompt string, prefs model.Preferences) gateway.Stream {
	msgs := c.messages(gateway.PersonaScriptWriter, prefs, history)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	return c.stream(ctx, "script", msgs, false)
}

func (c *Client) MindMap(ctx context.Context, prompt string, prefs model.Preferences) gateway.Stream {
	msgs := c.messages(gateway.PersonaMindMap, prefs, nil)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	return c.stream(ctx, "mind_map", msgs, true)
}

// messages builds the system prompt followed by the converted history.
func (c *Client) messages(p gateway.Persona, prefs model.Preferences, history []*model.Message) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: gateway.SystemPrompt(p, prefs),
	})
	return append(msgs, convertHistory(history)...)
}

func convertHistory(history []*model.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		if m.Role == model.RoleUser && m.Kind == model.KindImage && m.MediaURL != "" {
			out = append(out, imageMessage(m.Content, m.MediaURL))
			continue
		}
		if m.Content == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if m.Role == model.RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func imageMessage(text, imageURL string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: text},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    imageURL,
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	}
}

func (c *Client) stream(ctx context.Context, op string, msgs []openai.ChatCompletionMessage, jsonMode bool) gateway.Stream {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Stream:      true,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	return func(yield func(string, error) bool) {
		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", gateway.Wrap(providerName, op, err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", gateway.Wrap(providerName, op, err))
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(resp.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

// Image generates with DALL-E and returns a data: URI, since hosted result
// URLs expire.
func (c *Client) Image(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.cfg.ImageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", gateway.Wrap(providerName, "image", err)
	}
	if len(resp.Data) == 0 {
		return "", gateway.Wrap(providerName, "image", gateway.ErrEmptyResponse)
	}
	if resp.Data[0].URL != "" {
		return resp.Data[0].URL, nil
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return "", gateway.Wrap(providerName, "image", err)
	}
	return model.Attachment{MimeType: "image/png", Data: data}.DataURI(), nil
}

// Video is not available on this provider.
func (c *Client) Video(context.Context, string, func(string)) (string, error) {
	return "", gateway.Wrap(providerName, "video", gateway.ErrUnsupported)
}

func (c *Client) Title(ctx context.Context, seed string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		MaxTokens:   32,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: gateway.TitlePrompt(seed)},
		},
	})
	if err != nil {
		return "", gateway.Wrap(providerName, "title", err)
	}
	if len(resp.Choices) == 0 {
		return "", gateway.Wrap(providerName, "title", gateway.ErrEmptyResponse)
	}
	title := util.CleanTitle(resp.Choices[0].Message.Content)
	if title == "" {
		return "", gateway.Wrap(providerName, "title", gateway.ErrEmptyResponse)
	}
	return title, nil
}
