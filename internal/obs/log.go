package obs

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	loggerOnce sync.Once
	logger     zerolog.Logger
)

// Init configures the shared logger. Development gets human-readable console
// output, everything else emits JSON lines.
func Init(environment string) {
	loggerOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		if strings.EqualFold(environment, "development") {
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			return
		}
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	})
}

// Logger returns the shared structured logger used across the service.
func Logger() *zerolog.Logger {
	loggerOnce.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	})
	return &logger
}

// SetOutput redirects the shared logger. Test hook.
func SetOutput(w io.Writer) {
	logger = Logger().Output(w)
}
