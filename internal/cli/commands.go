// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/muse/internal/export"
	"github.com/jeranaias/muse/internal/model"
	"github.com/jeranaias/muse/internal/notify"
	"github.com/jeranaias/muse/internal/reconcile"
	"github.com/jeranaias/muse/internal/upload"
	"github.com/jeranaias/muse/internal/util"
)

// =============================================================================
// SLASH COMMANDS
// =============================================================================

var commandHelp = []struct {
	name, usage, desc string
}{
	{"/help", "/help", "Show this help"},
	{"/new", "/new", "Start a new conversation"},
	{"/list", "/list", "List conversations"},
	{"/open", "/open <n|id>", "Open a conversation"},
	{"/history", "/history", "Show the active conversation"},
	{"/pin", "/pin [n|id]", "Pin or unpin a conversation"},
	{"/rename", "/rename [-c n|id] <title>", "Rename a conversation"},
	{"/delete", "/delete [n|id]", "Delete a conversation"},
	{"/mode", "/mode [name]", "Show or set the generation mode"},
	{"/attach", "/attach <path>|clear", "Attach an image to the next message"},
	{"/export", "/export <text|html|json|md> [--print] [--all]", "Save to the export directory"},
	{"/upload", "/upload <json|doc>", "Upload to Google Drive"},
	{"/prefs", "/prefs [name <v>|instruction <text>|clear]", "Show or set preferences"},
	{"/theme", "/theme [light|dark|toggle]", "Show or set the theme"},
	{"/status", "/status", "Show running generations"},
	{"/quit", "/quit", "Exit"},
}

// command dispatches a slash command. It returns false to end the session.
func (r *REPL) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "/help", "/h", "/?", "/":
		r.printHelp()
	case "/quit", "/q", "/exit":
		return false, nil
	case "/new", "/n":
		r.app.Store.ClearActive()
		fmt.Fprintln(r.out, commandStyle.Render("[New conversation]"))
	case "/list", "/ls", "/l":
		r.printList()
	case "/open", "/o":
		return true, r.open(args)
	case "/history":
		return true, r.printActive()
	case "/pin":
		return true, r.pin(args)
	case "/rename":
		return true, r.rename(args)
	case "/delete", "/rm":
		return true, r.delete(args)
	case "/mode", "/m":
		return true, r.setMode(args)
	case "/attach":
		return true, r.attach(args)
	case "/export":
		return true, r.export(args)
	case "/upload":
		return true, r.upload(ctx, args)
	case "/prefs":
		return true, r.prefs(line, args)
	case "/theme":
		return true, r.theme(args)
	case "/status", "/s":
		r.printStatus()
	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", name)
	}
	return true, nil
}

// resolve finds a conversation by 1-based list position, id, or unique id
// prefix. An empty selector means the active conversation.
func (r *REPL) resolve(sel string) (*model.Conversation, error) {
	snap := r.app.Store.Snapshot()
	if sel == "" {
		if c := snap.Active(); c != nil {
			return c, nil
		}
		return nil, errNoActive
	}

	ordered := snap.Ordered()
	if n, err := strconv.Atoi(sel); err == nil {
		if n < 1 || n > len(ordered) {
			return nil, fmt.Errorf("no conversation #%d", n)
		}
		return ordered[n-1], nil
	}

	var match *model.Conversation
	for _, c := range ordered {
		if c.ID == sel {
			return c, nil
		}
		if strings.HasPrefix(c.ID, sel) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous conversation id %q", sel)
			}
			match = c
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no conversation %q", sel)
	}
	return match, nil
}

func (r *REPL) open(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: /open <n|id>")
	}
	c, err := r.resolve(args[0])
	if err != nil {
		return err
	}
	if err := r.app.Store.SetActive(c.ID); err != nil {
		return err
	}
	return r.printActive()
}

func (r *REPL) pin(args []string) error {
	c, err := r.resolve(strings.Join(args, " "))
	if err != nil {
		return err
	}
	if err := r.app.Store.TogglePin(c.ID); err != nil {
		return err
	}
	state := "Pinned"
	if c.IsPinned {
		state = "Unpinned"
	}
	fmt.Fprintf(r.out, "%s %s\n", commandStyle.Render("["+state+"]"), c.Title)
	return nil
}

func (r *REPL) rename(args []string) error {
	p := NewArgParser(args)
	title := p.PositionalFrom(0)
	if title == "" {
		return errors.New("usage: /rename [-c n|id] <title>")
	}
	c, err := r.resolve(p.Flag("c"))
	if err != nil {
		return err
	}
	if err := r.app.Store.Rename(c.ID, title); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s %s\n", commandStyle.Render("[Renamed]"), util.CleanTitle(title))
	return nil
}

func (r *REPL) delete(args []string) error {
	c, err := r.resolve(strings.Join(args, " "))
	if err != nil {
		return err
	}
	if err := r.app.Reconciler.Delete(c.ID); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s %s\n", commandStyle.Render("[Deleted]"), c.Title)
	return nil
}

func (r *REPL) setMode(args []string) error {
	if len(args) == 0 {
		names := make([]string, len(reconcile.Modes))
		for i, m := range reconcile.Modes {
			names[i] = string(m)
		}
		fmt.Fprintf(r.out, "%s %s %s\n",
			infoStyle.Render("[Mode]"),
			commandStyle.Render(string(r.mode)),
			dimStyle.Render("("+strings.Join(names, ", ")+")"))
		return nil
	}
	m, err := reconcile.ParseMode(args[0])
	if err != nil {
		return err
	}
	if m == reconcile.ModeChatWithImage {
		m = reconcile.ModeChat
	}
	r.mode = m
	fmt.Fprintf(r.out, "%s %s\n", commandStyle.Render("[Mode]"), m)
	return nil
}

func (r *REPL) attach(args []string) error {
	if len(args) == 0 {
		if r.attachment == nil {
			fmt.Fprintln(r.out, infoStyle.Render("[No attachment]"))
		} else {
			fmt.Fprintf(r.out, "%s %s\n", infoStyle.Render("[Attached]"), r.attachName)
		}
		return nil
	}
	if args[0] == "clear" {
		r.attachment, r.attachName = nil, ""
		fmt.Fprintln(r.out, commandStyle.Render("[Attachment cleared]"))
		return nil
	}

	path := strings.Join(args, " ")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	r.attachment = &model.Attachment{MimeType: mime, Data: data}
	r.attachName = path
	fmt.Fprintf(r.out, "%s %s (%s)\n", commandStyle.Render("[Attached]"), path, mime)
	return nil
}

// exportOptions builds export options from the current preferences and theme.
func (r *REPL) exportOptions() *export.Options {
	opts := export.DefaultOptions()
	opts.Theme = r.app.Theme.Get()
	opts.UserLabel = strings.TrimSpace(r.app.Prefs.Get().UserName)
	opts.Now = r.now
	return opts
}

// export writes files locally. Failures are reported as notifications.
func (r *REPL) export(args []string) error {
	p := NewArgParser(args, "print", "all")

	if p.BoolFlag("all") {
		data, err := export.NewJSONExporter().ExportAll(r.app.Store.List())
		if err != nil {
			return err
		}
		name := "muse_conversations_" + r.now().Format("20060102_150405") + ".json"
		res, err := r.app.Downloads.Upload(context.Background(), name, "application/json", bytes.NewReader(data))
		r.reportDelivery("Export", res, err)
		return nil
	}

	conv, err := r.resolve("")
	if err != nil {
		return err
	}
	opts := r.exportOptions()
	opts.Print = p.BoolFlag("print")
	exp, err := export.ForFormat(p.FlagOrDefault("format", orDefault(p.Positional(0), "text")), opts)
	if err != nil {
		return err
	}
	res, err := upload.Conversation(context.Background(), r.app.Downloads, conv, exp)
	r.reportDelivery("Export", res, err)
	return nil
}

// upload sends the active conversation to Drive.
func (r *REPL) upload(ctx context.Context, args []string) error {
	if r.app.Drive == nil {
		r.app.Notify.Notify("Drive upload is not configured (set MUSE_DRIVE_TOKEN).", notify.SeverityWarning)
		return nil
	}
	conv, err := r.resolve("")
	if err != nil {
		return err
	}

	var res upload.Result
	switch kind := orDefault(strings.Join(args, " "), "doc"); kind {
	case "json":
		res, err = upload.Conversation(ctx, r.app.Drive, conv, export.NewJSONExporter())
	case "doc":
		exp := export.NewDocExporter(r.exportOptions())
		var data []byte
		data, err = exp.Export(conv)
		if err == nil {
			res, err = r.app.Drive.UploadAsDoc(ctx, export.Filename(conv, exp, r.now()), bytes.NewReader(data))
		}
	default:
		return fmt.Errorf("unknown upload kind %q (json or doc)", kind)
	}
	r.reportDelivery("Upload", res, err)
	return nil
}

// reportDelivery surfaces an export or upload outcome as a notification.
func (r *REPL) reportDelivery(what string, res upload.Result, err error) {
	if err != nil {
		log.Warn().Err(err).Str("op", what).Msg("DELIVERY_FAILED")
		r.app.Notify.Notify(what+" failed: "+err.Error(), notify.SeverityError)
		return
	}
	r.app.Notify.Notify(what+" complete: "+res.Location, notify.SeveritySuccess)
}

func (r *REPL) prefs(line string, args []string) error {
	p := r.app.Prefs.Get()
	if len(args) == 0 {
		fmt.Fprintf(r.out, "%s %s\n", infoStyle.Render("Name:"), orDefault(p.UserName, "(not set)"))
		fmt.Fprintf(r.out, "%s %s\n", infoStyle.Render("Instruction:"), orDefault(p.CustomInstruction, "(not set)"))
		return nil
	}

	// Keep the raw text after the field name so instructions retain spacing.
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "/prefs"))
	field, value, _ := strings.Cut(rest, " ")
	value = strings.TrimSpace(value)

	switch strings.ToLower(field) {
	case "name":
		p.UserName = value
	case "instruction":
		p.CustomInstruction = value
	case "clear":
		p = model.Preferences{}
	default:
		return fmt.Errorf("unknown preference %q (name, instruction or clear)", field)
	}
	if err := r.app.Prefs.Save(p); err != nil {
		r.app.Notify.Notify("Could not save preferences.", notify.SeverityError)
		return nil
	}
	fmt.Fprintln(r.out, commandStyle.Render("[Preferences saved]"))
	return nil
}

func (r *REPL) theme(args []string) error {
	var (
		t   model.Theme
		err error
	)
	switch arg := strings.ToLower(strings.Join(args, " ")); arg {
	case "":
		fmt.Fprintf(r.out, "%s %s\n", infoStyle.Render("[Theme]"), r.app.Theme.Get())
		return nil
	case "toggle":
		t, err = r.app.Theme.Toggle()
	default:
		t = model.Theme(arg)
		err = r.app.Theme.Set(t)
	}
	if err != nil {
		return err
	}
	ApplyTheme(t)
	r.render.SetTheme(t)
	fmt.Fprintf(r.out, "%s %s\n", commandStyle.Render("[Theme]"), t)
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, welcomeStyle.Render("muse"))
	fmt.Fprintln(r.out, RenderSeparator(30))
	fmt.Fprintf(r.out, "%s %s\n", infoStyle.Render("Provider:"), commandStyle.Render(r.app.Config.Provider))
	if n := len(r.app.Store.Snapshot().Conversations); n > 0 {
		fmt.Fprintf(r.out, "%s %d\n", infoStyle.Render("Conversations:"), n)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, infoStyle.Render("Type a message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(r.out)
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, headerStyle.Render("Available Commands"))
	fmt.Fprintln(r.out, RenderSeparator(20))
	for _, c := range commandHelp {
		fmt.Fprintf(r.out, "  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-46s", c.usage)),
			infoStyle.Render(c.desc))
	}
	fmt.Fprintln(r.out)
}

func (r *REPL) printList() {
	snap := r.app.Store.Snapshot()
	ordered := snap.Ordered()
	if len(ordered) == 0 {
		fmt.Fprintln(r.out, infoStyle.Render("[No conversations]"))
		return
	}
	for i, c := range ordered {
		marker := "  "
		if c.ID == snap.ActiveID {
			marker = promptStyle.Render("> ")
		}
		pin := "  "
		if c.IsPinned {
			pin = pinStyle.Render("* ")
		}
		suffix := dimStyle.Render(fmt.Sprintf("(%d messages)", c.MessageCount()))
		if r.app.Reconciler.BusyIn(c.ID) {
			suffix += " " + warningStyle.Render("[generating]")
		}
		fmt.Fprintf(r.out, "%s%2d. %s%s %s\n", marker, i+1, pin, util.TruncateWidth(c.Title, 50), suffix)
	}
}

func (r *REPL) printActive() error {
	c, err := r.resolve("")
	if err != nil {
		return err
	}
	label := strings.TrimSpace(r.app.Prefs.Get().UserName)
	fmt.Fprintln(r.out, headerStyle.Render(c.Title))
	fmt.Fprintln(r.out, RenderSeparator(30))
	for _, m := range c.Messages {
		fmt.Fprintln(r.out, r.render.Message(m, label))
		fmt.Fprintln(r.out)
	}
	return nil
}

func (r *REPL) printStatus() {
	fmt.Fprintf(r.out, "%s %s\n", infoStyle.Render("Provider:"), r.app.Config.Provider)
	fmt.Fprintf(r.out, "%s %s\n", infoStyle.Render("Mode:"), r.mode)
	fmt.Fprintf(r.out, "%s %s\n", infoStyle.Render("Theme:"), r.app.Theme.Get())

	usage := r.app.Usage.Summary()
	for _, mode := range usage.Modes() {
		m := usage.ByMode[mode]
		fmt.Fprintf(r.out, "  %-10s %d requests, %d failed, avg %s\n",
			mode, m.Requests, m.Failed, m.Average().Round(time.Millisecond))
	}

	outstanding := r.app.Reconciler.Outstanding()
	if len(outstanding) == 0 {
		fmt.Fprintln(r.out, infoStyle.Render("No generations running"))
		return
	}
	snap := r.app.Store.Snapshot()
	for _, h := range outstanding {
		title := h.ConversationID
		if c := snap.Get(h.ConversationID); c != nil {
			title = c.Title
		}
		fmt.Fprintf(r.out, "  %s %s %s\n",
			warningStyle.Render(h.State().String()),
			h.Mode,
			dimStyle.Render(title))
	}
}
