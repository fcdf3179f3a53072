package platform

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global zerolog logger.
// JSON output in production, console writer when ENV=development.
func InitLogger(service string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := log.With().Str("service", service).Logger()
	if GetEnv("ENV", "") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger
	return logger
}
