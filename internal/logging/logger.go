package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger so the rest of the codebase does not import
// zerolog directly.
type Logger struct {
	logger zerolog.Logger
}

// Config holds logging configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Caller bool   // Include caller information
}

// DefaultConfig returns default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Caller: false,
	}
}

// New creates a new structured logger
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).
		Level(parseLogLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()

	if cfg.Caller {
		logger = logger.With().Caller().Logger()
	}

	return &Logger{logger: logger}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithRequestID adds a request ID to the logger
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{logger: l.logger.With().Str("request_id", requestID).Logger()}
}

// WithUserID adds a user ID to the logger
func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{logger: l.logger.With().Str("user_id", userID).Logger()}
}

// WithClientID adds an OAuth client ID to the logger
func (l *Logger) WithClientID(clientID string) *Logger {
	return &Logger{logger: l.logger.With().Str("client_id", clientID).Logger()}
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.logger.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.logger.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }
func (l *Logger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.logger.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logger.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logger.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logger.Error().Msgf(format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.logger.Fatal().Msgf(format, args...) }

// InfoEvent returns an info-level zerolog event for field chaining.
func (l *Logger) InfoEvent() *zerolog.Event { return l.logger.Info() }

// WarnEvent returns a warn-level zerolog event for field chaining.
func (l *Logger) WarnEvent() *zerolog.Event { return l.logger.Warn() }

// ErrorEvent returns an error-level zerolog event for field chaining.
func (l *Logger) ErrorEvent() *zerolog.Event { return l.logger.Error() }
