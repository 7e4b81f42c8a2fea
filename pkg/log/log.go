package log

import (
	"os"

	"github.com/rs/zerolog"
)

// Global logger instance.  Other packages should use log.Logger with
// additional context fields rather than importing zerolog directly.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Component returns a child logger tagged with a "component" field, the
// convention used by the sched logger and the per-device feedback emitter
// loggers built in cmd/qcn-cp.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
