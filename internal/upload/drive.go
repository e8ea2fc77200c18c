// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleDocMimeType makes Drive convert an upload into a Google Doc.
const GoogleDocMimeType = "application/vnd.google-apps.document"

// Drive uploads to Google Drive. Authorization is external: callers pass an
// access token or a client option carrying credentials.
type Drive struct {
	svc      *drive.Service
	folderID string
}

// AccessToken returns a client option authorizing with a bearer token.
func AccessToken(token string) option.ClientOption {
	return option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}

// NewDrive creates a Drive uploader. folderID may be empty for the root.
func NewDrive(ctx context.Context, folderID string, opts ...option.ClientOption) (*Drive, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Drive{svc: svc, folderID: folderID}, nil
}

// Upload stores content as-is.
func (d *Drive) Upload(ctx context.Context, name, mimeType string, content io.Reader) (Result, error) {
	return d.create(ctx, &drive.File{Name: name, MimeType: mimeType}, mimeType, content)
}

// UploadAsDoc uploads an HTML document and converts it to a Google Doc.
func (d *Drive) UploadAsDoc(ctx context.Context, name string, html io.Reader) (Result, error) {
	name = strings.TrimSuffix(name, ".html")
	return d.create(ctx, &drive.File{Name: name, MimeType: GoogleDocMimeType}, "text/html", html)
}

func (d *Drive) create(ctx context.Context, meta *drive.File, mediaType string, content io.Reader) (Result, error) {
	if d.folderID != "" {
		meta.Parents = []string{d.folderID}
	}
	f, err := d.svc.Files.Create(meta).
		Media(content, googleapi.ContentType(mediaType)).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return Result{}, fmt.Errorf("drive upload %q: %w", meta.Name, err)
	}
	return Result{ID: f.Id, Location: f.WebViewLink}, nil
}
