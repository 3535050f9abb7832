package temporal

import (
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// logAdapter bridges the Temporal SDK's keyval logger onto zerolog.
type logAdapter struct {
	logger zerolog.Logger
}

func NewLogAdapter(logger zerolog.Logger) log.Logger {
	return &logAdapter{
		logger: logger.With().Str("component", "temporal-sdk").Logger(),
	}
}

func (a *logAdapter) fields(event *zerolog.Event, keyvals []interface{}) *zerolog.Event {
	// The SDK promises key/value pairs; pad odd-length input.
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "INVALID_KEY"
		}
		event = event.Interface(key, keyvals[i+1])
	}
	return event
}

func (a *logAdapter) Debug(msg string, keyvals ...interface{}) {
	a.fields(a.logger.Debug(), keyvals).Msg(msg)
}

func (a *logAdapter) Info(msg string, keyvals ...interface{}) {
	a.fields(a.logger.Info(), keyvals).Msg(msg)
}

func (a *logAdapter) Warn(msg string, keyvals ...interface{}) {
	a.fields(a.logger.Warn(), keyvals).Msg(msg)
}

func (a *logAdapter) Error(msg string, keyvals ...interface{}) {
	a.fields(a.logger.Error(), keyvals).Msg(msg)
}
