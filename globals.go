package codemask

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultStartMarker = "<mstart>"
	DefaultEndMarker   = "<mend>"
	DefaultMinRegions  = 1
	DefaultMaxRegions  = 5
	DefaultMaxAttempts = 10
)

// DefaultSkipPrefixes are the line prefixes that exclude a line from masking:
// comments and docstring delimiters.
var DefaultSkipPrefixes = []string{"#", `"""`, "'''"}

// GetLogger
// Returns the default process logger: JSON to stderr with timestamps.
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// NewLogger
// Builds a logger writing to stderr. `format` is either "json" or "console",
// `level` is any level zerolog understands ("debug", "info", ...).
func NewLogger(level, format string) (zerolog.Logger, error) {
	return newLogger(os.Stderr, level, format)
}

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), errors.Wrapf(err, "invalid log level %q",
				level)
		}
		lvl = parsed
	}
	switch strings.ToLower(format) {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	default:
		return zerolog.Nop(), errors.Errorf("invalid log format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
