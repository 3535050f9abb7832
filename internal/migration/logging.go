package migration

import (
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// gooseAdapter routes goose's log output through zerolog.
type gooseAdapter struct {
	logger zerolog.Logger
}

func NewGooseAdapter(logger zerolog.Logger) goose.Logger {
	return &gooseAdapter{
		logger: logger.With().Str("component", "goose").Logger(),
	}
}

func (a *gooseAdapter) Fatalf(format string, v ...interface{}) {
	a.logger.Fatal().Msgf(strings.TrimSpace(format), v...)
}

func (a *gooseAdapter) Printf(format string, v ...interface{}) {
	a.logger.Info().Msgf(strings.TrimSpace(format), v...)
}
