package log

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ZerologLogger implements LibraryLogger with structured JSON output via
// github.com/rs/zerolog, for machine-consumed log shipping (e.g. piping
// portforge's own diagnostics into a log aggregator) as an alternative to
// the file-based Logger's plain-text named logs.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger writing JSON lines to w.
// Pass os.Stdout for CLI debug use, or any io.Writer pointed at a shipper.
func NewZerologLogger(w io.Writer) *ZerologLogger {
	if w == nil {
		w = os.Stdout
	}
	return &ZerologLogger{logger: zerolog.New(w).With().Timestamp().Logger()}
}

func (z *ZerologLogger) Info(format string, args ...any) {
	z.logger.Info().Msg(fmt.Sprintf(format, args...))
}

func (z *ZerologLogger) Debug(format string, args ...any) {
	z.logger.Debug().Msg(fmt.Sprintf(format, args...))
}

func (z *ZerologLogger) Warn(format string, args ...any) {
	z.logger.Warn().Msg(fmt.Sprintf(format, args...))
}

func (z *ZerologLogger) Error(format string, args ...any) {
	z.logger.Error().Msg(fmt.Sprintf(format, args...))
}
