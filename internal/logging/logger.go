package logging

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mutex          sync.RWMutex
	moduleLoggers  = make(map[string]*slog.Logger)
	moduleLevels   = make(map[string]*slog.LevelVar)
	moduleFormats  = make(map[string]string)
	globalConfig   = Config{Level: "info", Format: "text"}
	globalLevelVar = &slog.LevelVar{}
	logBuffer      = NewRingBuffer(defaultBufferSize)
	logCallback    LogCallback
)

// Initialize sets up the logging system. Loggers handed out before the call
// pick up the new levels.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	if config.Format == "" {
		config.Format = "text"
	}
	globalConfig = config
	logBuffer = NewRingBuffer(defaultBufferSize)

	global, ok := parseLevel(config.Level)
	if !ok {
		global = slog.LevelInfo
	}
	globalLevelVar.Set(global)

	// Existing loggers keep their identity; only a format change rebuilds them.
	for module, levelVar := range moduleLevels {
		levelVar.Set(levelFor(module))
		if moduleFormats[module] != config.Format {
			moduleLoggers[module] = slog.New(createHandler(config.Format, levelVar)).With("module", module)
			moduleFormats[module] = config.Format
		}
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// levelFor resolves the configured level of module (must hold lock).
func levelFor(module string) slog.Level {
	if s, ok := globalConfig.Modules[module]; ok {
		if l, ok := parseLevel(s); ok {
			return l
		}
	}
	if l, ok := parseLevel(globalConfig.Level); ok {
		return l
	}
	return slog.LevelInfo
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback sets a callback to be called for each new log entry.
// Used for publishing log events to SSE clients.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

func currentSinks() (*RingBuffer, LogCallback) {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer, logCallback
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	logger, exists := moduleLoggers[module]
	mutex.RUnlock()
	if exists {
		return logger
	}

	mutex.Lock()
	defer mutex.Unlock()

	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(levelFor(module))

	logger = slog.New(createHandler(globalConfig.Format, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevels[module] = levelVar
	moduleFormats[module] = globalConfig.Format
	return logger
}

// SetLevel changes the level of one module at runtime. An empty module
// changes the global level and every module without an explicit override.
func SetLevel(module, level string) error {
	l, ok := parseLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	mutex.Lock()
	defer mutex.Unlock()

	if module == "" {
		globalConfig.Level = level
		globalLevelVar.Set(l)
		for name, levelVar := range moduleLevels {
			if _, override := globalConfig.Modules[name]; !override {
				levelVar.Set(l)
			}
		}
		return nil
	}

	modules := maps.Clone(globalConfig.Modules)
	if modules == nil {
		modules = make(map[string]string)
	}
	modules[module] = level
	globalConfig.Modules = modules

	if levelVar, ok := moduleLevels[module]; ok {
		levelVar.Set(l)
	}
	return nil
}

// Levels returns the effective level of the global logger and every module
// logger created so far. The global level is keyed by the empty string.
func Levels() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()

	out := map[string]string{"": levelToString(globalLevelVar.Level())}
	for name, levelVar := range moduleLevels {
		out[name] = levelToString(levelVar.Level())
	}
	return out
}

// createHandler builds the handler chain for one logger: stdout, the journal
// when available, and the ring buffer behind /api/logs.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable reports whether stdout goes to a terminal, pipe, socket
// or file rather than /dev/null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0 || mode.IsRegular()
}

func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
