package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is shared by every package; Init replaces it once flags are parsed
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Level is a level name accepted on the command line
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

var zerologLevels = map[Level]zerolog.Level{
	DebugLevel: zerolog.DebugLevel,
	InfoLevel:  zerolog.InfoLevel,
	WarnLevel:  zerolog.WarnLevel,
	ErrorLevel: zerolog.ErrorLevel,
}

// Config selects level, format and destination
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer // stdout when nil
}

// ParseLevel maps a flag value onto a Level; unknown values mean info
func ParseLevel(s string) Level {
	if _, ok := zerologLevels[Level(s)]; ok {
		return Level(s)
	}
	return InfoLevel
}

// Init sets the global level and rebuilds Logger
func Init(cfg Config) {
	level, ok := zerologLevels[cfg.Level]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent returns a child of Logger tagged with component
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithWorkflow tags a scheduler logger with the workflow it drives
func WithWorkflow(workflow string) zerolog.Logger {
	return Logger.With().Str("component", "scheduler").Str("workflow", workflow).Logger()
}

// WithTenant adds the tenant id to l
func WithTenant(l zerolog.Logger, tenantID string) zerolog.Logger {
	return l.With().Str("tenant", tenantID).Logger()
}
