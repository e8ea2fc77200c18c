// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/muse/internal/gateway"
	"github.com/jeranaias/muse/internal/model"
	"github.com/jeranaias/muse/internal/notify"
	"github.com/jeranaias/muse/internal/reconcile"
	"github.com/jeranaias/muse/internal/storage"
	"github.com/jeranaias/muse/internal/telemetry"
)

// =============================================================================
// SESSION STATE
// =============================================================================

// REPL is one interactive session. It is not safe for concurrent use; the
// services it drives are.
type REPL struct {
	app    *App
	out    io.Writer
	render *Renderer

	mode       reconcile.Mode
	attachment *model.Attachment
	attachName string

	lastNotice int
	now        func() time.Time
}

// NewREPL creates a session that writes to out.
func NewREPL(app *App, out io.Writer) *REPL {
	theme := app.Theme.Get()
	ApplyTheme(theme)
	return &REPL{
		app:    app,
		out:    out,
		render: NewRenderer(theme, GetTerminalWidth(), app.Config.UI.RenderMarkdown),
		mode:   reconcile.ModeChat,
		now:    time.Now,
	}
}

// Run reads lines until EOF, Ctrl+C at the prompt, or /quit.
func (r *REPL) Run(ctx context.Context) error {
	in := NewChatCLI()
	defer in.Close()

	if IsTTY() {
		r.printWelcome()
	}

	for {
		r.flushNotifications()
		line, err := in.ReadInput(promptStyle.Render(r.prompt()))
		if err != nil {
			fmt.Fprintln(r.out)
			return nil
		}

		cont, err := r.Handle(ctx, line)
		if err != nil {
			fmt.Fprintf(r.out, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
		if !cont {
			return nil
		}
	}
}

// Handle processes one input line. It returns false when the session ends.
func (r *REPL) Handle(ctx context.Context, line string) (bool, error) {
	defer r.flushNotifications()

	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return true, nil
	case strings.HasPrefix(line, "/"):
		return r.command(ctx, line)
	case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
		return false, nil
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return true, r.send(sigCtx, line)
}

func (r *REPL) prompt() string {
	if r.mode == reconcile.ModeChat {
		return "muse> "
	}
	return "muse:" + string(r.mode) + "> "
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// send submits input in the current mode and follows the generation until
// it settles or ctx is cancelled.
func (r *REPL) send(ctx context.Context, input string) error {
	h, err := r.app.Reconciler.Run(context.Background(), reconcile.Request{
		Mode:  r.mode,
		Input: input,
		Image: r.attachment,
	})
	if err != nil {
		return err
	}
	r.attachment, r.attachName = nil, ""
	r.follow(ctx, h)
	return nil
}

// follow prints a generation as the store applies it. Cancelling ctx
// cancels the generation, which still settles through the reconciler.
func (r *REPL) follow(ctx context.Context, h *reconcile.Handle) {
	updates := make(chan struct{}, 1)
	unsubscribe := r.app.Store.Subscribe(func(storage.Snapshot) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	fmt.Fprintln(r.out, assistantStyle.Render(model.RoleModel.DisplayName()))

	shown := ""
	cancelled := ctx.Done()
	for {
		select {
		case <-updates:
			shown = r.progress(h, shown)
		case <-cancelled:
			h.Cancel()
			cancelled = nil
		case <-h.Done():
			r.progress(h, shown)
			r.settle(h)
			r.record(h)
			return
		}
	}
}

// message returns the handle's target message from the current snapshot.
func (r *REPL) message(h *reconcile.Handle) *model.Message {
	conv := r.app.Store.Snapshot().Get(h.ConversationID)
	if conv == nil {
		return nil
	}
	msg, _ := conv.MessageByID(h.MessageID)
	return msg
}

// progress prints what changed since shown and returns the new shown text.
// Text streams are printed incrementally; value modes print each progress
// line once. Mind maps are only rendered when settled.
func (r *REPL) progress(h *reconcile.Handle, shown string) string {
	msg := r.message(h)
	if msg == nil || msg.IsError || msg.Kind == model.KindMindMap {
		return shown
	}
	if msg.Kind.HasMedia() {
		if msg.Streaming && msg.Content != shown && msg.Content != "" {
			fmt.Fprintln(r.out, dimStyle.Render(msg.Content))
		}
		return msg.Content
	}
	if rest, ok := strings.CutPrefix(msg.Content, shown); ok && rest != "" {
		fmt.Fprint(r.out, rest)
		return msg.Content
	}
	return shown
}

// settle prints the outcome of a finished generation.
func (r *REPL) settle(h *reconcile.Handle) {
	msg := r.message(h)

	switch h.State() {
	case reconcile.StateSuperseded:
		fmt.Fprintln(r.out, "\n"+warningStyle.Render("[Conversation deleted]"))
		return
	case reconcile.StateFailed:
		text := reconcile.ErrorText(h.Err())
		if msg != nil && msg.IsError {
			text = msg.Content
		}
		fmt.Fprintln(r.out, "\n"+errorStyle.Render(text))
		return
	}
	if msg == nil {
		fmt.Fprintln(r.out)
		return
	}

	switch msg.Kind {
	case model.KindMindMap:
		fmt.Fprintln(r.out, r.render.Body(msg))
	case model.KindImage:
		fmt.Fprintln(r.out, dimStyle.Render(mediaLine(msg)))
		r.saveMedia(msg)
	case model.KindVideo:
		fmt.Fprintln(r.out, dimStyle.Render(mediaLine(msg)))
		r.saveVideo(msg)
	default:
		fmt.Fprintln(r.out)
	}
}

// record adds the settled generation to the session usage statistics.
func (r *REPL) record(h *reconcile.Handle) {
	rec := telemetry.Record{
		Mode:     string(h.Mode),
		Prompt:   h.Input,
		Duration: r.now().Sub(h.StartedAt),
	}
	switch h.State() {
	case reconcile.StateCompleted:
		rec.Outcome = telemetry.OutcomeCompleted
	case reconcile.StateSuperseded:
		rec.Outcome = telemetry.OutcomeSuperseded
	default:
		rec.Outcome = telemetry.OutcomeFailed
	}
	if msg := r.message(h); msg != nil {
		rec.Chars = utf8.RuneCountInString(msg.Content)
	}
	r.app.Usage.Record(rec)
}

// saveMedia writes an inline image result to the downloads directory.
func (r *REPL) saveMedia(msg *model.Message) {
	a, ok := model.ParseDataURI(msg.MediaURL)
	if !ok {
		return
	}
	ext := ".png"
	if strings.Contains(a.MimeType, "jpeg") {
		ext = ".jpg"
	}
	name := "image_" + r.now().Format("20060102_150405") + ext
	res, err := r.app.Downloads.Upload(context.Background(), name, a.MimeType, bytes.NewReader(a.Data))
	if err != nil {
		log.Warn().Err(err).Msg("IMAGE_SAVE_FAILED")
		r.app.Notify.Notify("Could not save the generated image.", notify.SeverityError)
		return
	}
	r.app.Notify.Notify("Image saved to "+res.Location, notify.SeveritySuccess)
}

// saveVideo downloads a finished video when the gateway needs credentials
// to reach it; the stored URL alone would not play.
func (r *REPL) saveVideo(msg *model.Message) {
	fetcher, ok := r.app.Gateway.(gateway.MediaFetcher)
	if !ok || msg.MediaURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	body, mimeType, err := fetcher.FetchMedia(ctx, msg.MediaURL)
	if err != nil {
		log.Warn().Err(err).Msg("VIDEO_FETCH_FAILED")
		r.app.Notify.Notify("Could not download the generated video.", notify.SeverityError)
		return
	}
	defer body.Close()

	if mimeType == "" {
		mimeType = "video/mp4"
	}
	name := "video_" + r.now().Format("20060102_150405") + ".mp4"
	res, err := r.app.Downloads.Upload(ctx, name, mimeType, body)
	if err != nil {
		log.Warn().Err(err).Msg("VIDEO_SAVE_FAILED")
		r.app.Notify.Notify("Could not save the generated video.", notify.SeverityError)
		return
	}
	r.app.Notify.Notify("Video saved to "+res.Location, notify.SeveritySuccess)
}

// flushNotifications prints notifications not shown yet.
func (r *REPL) flushNotifications() {
	for _, e := range r.app.Notify.Active() {
		if e.ID <= r.lastNotice {
			continue
		}
		r.lastNotice = e.ID
		fmt.Fprintf(r.out, "%s %s\n", severityLabel(e.Severity), e.Message)
	}
}

var errNoActive = errors.New("no active conversation (use /list and /open)")
