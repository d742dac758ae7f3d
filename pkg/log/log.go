package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. It is usable before Init
// (console output at info level) so early startup paths and tests that
// never call Init still log sanely.
var Logger = newLogger(Config{})

// Config holds logging configuration
type Config struct {
	// Level is a zerolog level name: debug, info, warn, error.
	// Unrecognized or empty values fall back to info.
	Level string

	// JSONOutput switches from human-readable console lines to JSON
	JSONOutput bool

	// Output defaults to stdout
	Output io.Writer
}

// Init rebuilds the root logger from cfg. Child loggers created before
// Init keep their old settings; components derive theirs after.
func Init(cfg Config) {
	Logger = newLogger(cfg)
}

func newLogger(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var w io.Writer = output
	if !cfg.JSONOutput {
		w = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithNode creates a child logger with node field
func WithNode(node string) zerolog.Logger {
	return Logger.With().Str("node", node).Logger()
}

// WithCycle creates a child logger with pull_cycle field
func WithCycle(cycleID string) zerolog.Logger {
	return Logger.With().Str("pull_cycle", cycleID).Logger()
}
