// Package logging provides structured logging with per-module log levels.
//
// Every module gets its own *slog.Logger tagged with module=<name>. Records
// go to stdout (text or json), to the systemd journal when it is available,
// and to an in-memory ring buffer that backs /api/logs and the log SSE stream.
//
// Initialize once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"pipeline": "debug",
//			"api":      "warn",
//		},
//	})
//
// and fetch loggers where they are needed:
//
//	logger := logging.GetLogger("pipeline").With("pipeline", "internal")
//	logger.Debug("Frame queued", "token", token)
//
// Levels can be changed while running with SetLevel; loggers already handed
// out follow the change.
//
// Journal entries use the identifier "decon" and carry every attribute as an
// upper-case field:
//
//	journalctl -t decon -f
//	journalctl -t decon MODULE=pipeline PIPELINE=external
//	journalctl -t decon -p err
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	pipeline = "debug"
//	units = "warn"
package logging
