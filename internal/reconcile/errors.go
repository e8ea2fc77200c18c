// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/jeranaias/muse/internal/gateway"
	"github.com/jeranaias/muse/internal/storage"
)

var (
	// ErrEmptyInput is returned when a request has neither text nor an image.
	ErrEmptyInput = errors.New("input is empty")

	// ErrImageRequired is returned for chatWithImage requests without an image.
	ErrImageRequired = errors.New("an image attachment is required")

	// ErrImageNotAllowed is returned when an image is attached outside chat.
	ErrImageNotAllowed = errors.New("image attachments are only supported in chat mode")

	// ErrUnknownMode is returned for modes without a descriptor.
	ErrUnknownMode = errors.New("unknown mode")

	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("reconciler closed")

	// errSuperseded is the cancellation cause used when a conversation is
	// deleted under a running request.
	errSuperseded = errors.New("conversation deleted")
)

// ErrorText turns a generation failure into the content shown in place of
// the model's answer.
func ErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, gateway.ErrUnsupported):
		return "Error: this provider does not support that kind of request."
	case errors.Is(err, gateway.ErrEmptyResponse):
		return "Error: the model returned an empty response. Please try again."
	case errors.Is(err, context.Canceled), errors.Is(err, ErrClosed):
		return "Error: generation was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "Error: the request timed out."
	}

	msg := err.Error()
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		msg = gwErr.Cause.Error()
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "unknown error"
	}
	return "Error: " + msg
}

// isGone reports whether a store error means the target message no longer
// accepts this request's output.
func isGone(err error) bool {
	return errors.Is(err, storage.ErrConversationNotFound) ||
		errors.Is(err, storage.ErrConversationDeleted) ||
		errors.Is(err, storage.ErrMessageNotFound) ||
		errors.Is(err, storage.ErrMessageClosed)
}
