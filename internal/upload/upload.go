// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package upload delivers exported conversations to a destination: a local
// directory or Google Drive.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/muse/internal/export"
	"github.com/jeranaias/muse/internal/model"
	"github.com/jeranaias/muse/internal/util"
)

// Result identifies an uploaded file.
type Result struct {
	// ID is the destination's identifier (a path for Local).
	ID string
	// Location is where a user can open the file.
	Location string
}

// Uploader stores one file.
type Uploader interface {
	Upload(ctx context.Context, name, mimeType string, content io.Reader) (Result, error)
}

// Conversation exports conv with exp and uploads it under a generated name.
func Conversation(ctx context.Context, dst Uploader, conv *model.Conversation, exp export.Exporter) (Result, error) {
	data, err := exp.Export(conv)
	if err != nil {
		return Result{}, fmt.Errorf("export: %w", err)
	}
	name := export.Filename(conv, exp, time.Now())
	return dst.Upload(ctx, name, exp.MimeType(), bytes.NewReader(data))
}

// Local writes files into a directory.
type Local struct {
	Dir string
}

// NewLocal returns a Local uploader for dir.
func NewLocal(dir string) *Local {
	return &Local{Dir: dir}
}

// Upload writes content to Dir/name atomically.
func (l *Local) Upload(ctx context.Context, name, _ string, content io.Reader) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return Result{}, fmt.Errorf("read content: %w", err)
	}
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return Result{}, fmt.Errorf("create directory: %w", err)
	}
	path := filepath.Join(l.Dir, filepath.Base(name))
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", path, err)
	}
	return Result{ID: path, Location: path}, nil
}
