// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry keeps per-session usage statistics for generations.
//
// Nothing leaves the process. The tracker only aggregates what the client
// observes when a generation settles:
//
//	tracker := telemetry.NewUsageTracker()
//	tracker.Record(telemetry.Record{Mode: "chat", Outcome: telemetry.OutcomeCompleted, Duration: d, Chars: n})
//	summary := tracker.Summary()
package telemetry
