// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/muse/internal/gateway"
	"github.com/jeranaias/muse/internal/model"
	"github.com/jeranaias/muse/internal/util"
)

// Mode selects a generation operation.
type Mode string

const (
	ModeChat          Mode = "chat"
	ModeChatWithImage Mode = "chatWithImage"
	ModeCode          Mode = "code"
	ModeScript        Mode = "script"
	ModeMindMap       Mode = "mindmap"
	ModeImage         Mode = "image"
	ModeVideo         Mode = "video"
)

// Modes lists the user-selectable modes.
var Modes = []Mode{ModeChat, ModeCode, ModeScript, ModeMindMap, ModeImage, ModeVideo}

// ParseMode accepts a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m := range descriptors {
		if strings.ToLower(string(m)) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// ProvisionalTitleWidth bounds the prompt excerpt in provisional titles.
const ProvisionalTitleWidth = 30

// ProvisionalTitle is the title a new conversation starts with.
func (m Mode) ProvisionalTitle(input string) string {
	d, ok := descriptors[m]
	if !ok || d.titlePrefix == "" {
		return model.DefaultTitle
	}
	return d.titlePrefix + util.TruncateWidth(util.SingleLine(input), ProvisionalTitleWidth)
}

// streamFunc starts a streamed operation.
type streamFunc func(ctx context.Context, g gateway.Gateway, history []*model.Message, req Request, prefs model.Preferences) gateway.Stream

// valueFunc runs a single-value operation and returns a media URL.
type valueFunc func(ctx context.Context, g gateway.Gateway, req Request, onProgress func(string)) (string, error)

// descriptor is everything that varies between modes.
type descriptor struct {
	stream      streamFunc
	value       valueFunc
	withHistory bool
	titlePrefix string
	placeholder model.Kind
	pendingText string
}

var descriptors = map[Mode]descriptor{
	ModeChat: {
		stream: func(ctx context.Context, g gateway.Gateway, h []*model.Message, req Request, p model.Preferences) gateway.Stream {
			return g.Chat(ctx, h, req.Input, p)
		},
		withHistory: true,
		placeholder: model.KindText,
	},
	ModeChatWithImage: {
		stream: func(ctx context.Context, g gateway.Gateway, h []*model.Message, req Request, p model.Preferences) gateway.Stream {
			return g.ChatWithImage(ctx, h, req.Input, *req.Image, p)
		},
		withHistory: true,
		placeholder: model.KindText,
	},
	ModeCode: {
		stream: func(ctx context.Context, g gateway.Gateway, h []*model.Message, req Request, p model.Preferences) gateway.Stream {
			return g.CodeReview(ctx, h, req.Input, p)
		},
		withHistory: true,
		titlePrefix: "Code: ",
		placeholder: model.KindText,
	},
	ModeScript: {
		stream: func(ctx context.Context, g gateway.Gateway, h []*model.Message, req Request, p model.Preferences) gateway.Stream {
			return g.Script(ctx, h, req.Input, p)
		},
		withHistory: true,
		titlePrefix: "Script: ",
		placeholder: model.KindText,
	},
	ModeMindMap: {
		stream: func(ctx context.Context, g gateway.Gateway, _ []*model.Message, req Request, p model.Preferences) gateway.Stream {
			return g.MindMap(ctx, req.Input, p)
		},
		titlePrefix: "Mind Map: ",
		placeholder: model.KindMindMap,
	},
	ModeImage: {
		value: func(ctx context.Context, g gateway.Gateway, req Request, _ func(string)) (string, error) {
			return g.Image(ctx, req.Input)
		},
		titlePrefix: "Image: ",
		placeholder: model.KindImage,
		pendingText: "Generating image...",
	},
	ModeVideo: {
		value: func(ctx context.Context, g gateway.Gateway, req Request, onProgress func(string)) (string, error) {
			return g.Video(ctx, req.Input, onProgress)
		},
		titlePrefix: "Video: ",
		placeholder: model.KindVideo,
		pendingText: "Generating video...",
	},
}
