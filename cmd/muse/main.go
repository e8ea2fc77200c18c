// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command muse is a terminal conversational assistant.
package main

import "github.com/jeranaias/muse/internal/cli"

func main() {
	cli.Exit()
}
