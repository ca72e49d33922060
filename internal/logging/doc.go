// Package logging provides structured, file-based logging with rotation for
// ragd. Logs are written as JSON lines to ~/.ragd/logs/server.log (or a
// configured path) via log/slog, and mirrored to stderr unless disabled.
package logging
