// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/muse/internal/model"
)

func TestCollect(t *testing.T) {
	got, err := Collect(Fragments("a", "b", "c"))
	assert.NoError(t, err)
	assert.Equal(t, "abc", got)

	boom := errors.New("boom")
	got, err = Collect(Fail(boom))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, got)
}

func TestFragmentsStopsEarly(t *testing.T) {
	var seen int
	for range Fragments("a", "b", "c") {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap("p", "op", nil))
	assert.Equal(t, context.Canceled, Wrap("p", "op", context.Canceled))

	err := Wrap("gemini", "chat", ErrEmptyResponse)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, "gemini chat: provider returned an empty response", err.Error())
}

func TestHistoryDropsErrorsAndPlaceholders(t *testing.T) {
	ok := model.NewUserMessage("hi")
	failed := model.NewPlaceholder(model.KindText, "")
	failed.Fail("Error: boom")
	pending := model.NewPlaceholder(model.KindText, "")

	got := History([]*model.Message{ok, failed, pending})

	assert.Equal(t, []*model.Message{ok}, got)
}

func TestSystemPrompt(t *testing.T) {
	plain := SystemPrompt(PersonaCodeReviewer, model.Preferences{})
	assert.Contains(t, plain, "code reviewer")

	withPrefs := SystemPrompt(PersonaAssistant, model.Preferences{UserName: "Ada"})
	assert.Contains(t, withPrefs, "The user's name is Ada.")

	assert.Contains(t, SystemPrompt(PersonaMindMap, model.Preferences{}), MindMapSchema)
}
