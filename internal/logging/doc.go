// Package logging configures structured slog output for crmrag.
// Logs go to stderr as text by default; with --debug a JSON log with
// size-based rotation is written under ~/.crmrag/logs/ as well.
package logging
