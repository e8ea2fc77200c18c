// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/muse/internal/config"
	"github.com/jeranaias/muse/internal/logging"
)

// Version information (set at build time).
var (
	Version   = "dev"
	GitCommit = "unknown"
)

const usage = `muse - conversational assistant for the terminal

Usage:
  muse [flags]              start an interactive session
  muse [flags] <message>    send one message and print the reply

Flags:
  --config <path>     config file (default ~/.muse/config.toml)
  --provider <name>   gemini or openai
  --storage <name>    file, sqlite or memory
  --mode <name>       generation mode for the first message
  --log-level <lvl>   trace, debug, info, warn, error
  --version           print version and exit
  --help              show this help
`

// Main runs the client with the given arguments and returns an exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	p := NewArgParser(args, "version", "help", "h")
	if p.BoolFlag("help") || p.BoolFlag("h") {
		fmt.Fprint(stdout, usage)
		return 0
	}
	if p.BoolFlag("version") {
		fmt.Fprintf(stdout, "muse %s (%s)\n", Version, GitCommit)
		return 0
	}

	cfg, err := loadConfig(p)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		return 1
	}

	closeLog, err := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Stderr: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		return 1
	}
	defer closeLog()

	ctx := context.Background()
	app, err := NewApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn().Err(err).Msg("SHUTDOWN_FAILED")
		}
	}()

	repl := NewREPL(app, stdout)
	if m := p.Flag("mode"); m != "" {
		if err := repl.setMode([]string{m}); err != nil {
			fmt.Fprintf(stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			return 2
		}
	}

	if msg := p.PositionalFrom(0); msg != "" {
		if _, err := repl.Handle(ctx, msg); err != nil {
			fmt.Fprintf(stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			return 1
		}
		return 0
	}

	if err := repl.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		return 1
	}
	return 0
}

// loadConfig loads the config file and applies command-line overrides,
// which win over both the file and the environment.
func loadConfig(p *ArgParser) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := p.Flag("config"); path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if v := p.Flag("provider"); v != "" {
		cfg.Provider = strings.ToLower(v)
	}
	if v := p.Flag("storage"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := p.Flag("log-level"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.SetGlobal(cfg)
	return cfg, nil
}

// Exit is Main wired to the process.
func Exit() {
	os.Exit(Main(os.Args[1:], os.Stdout, os.Stderr))
}
