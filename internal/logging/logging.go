// Package logging sets up the zerolog logger shared by the boardrun commands
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var globalLogger zerolog.Logger

type Config struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Debug      bool   `mapstructure:"debug" yaml:"debug"`
	Output     string `mapstructure:"output" yaml:"output"`
	Format     string `mapstructure:"format" yaml:"format"` // "console" or "json"
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
}

func init() {
	globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = time.RFC3339
}

// Init replaces the global logger. Output defaults to stderr so that
// captured board output on stdout stays clean.
func Init(config Config) error {
	return InitWriter(config, nil)
}

// InitWriter is Init with an explicit destination; w overrides config.Output
func InitWriter(config Config, w io.Writer) error {
	output := w
	if output == nil {
		output = os.Stderr
		if config.Output == "stdout" {
			output = os.Stdout
		}
	}

	level := zerolog.InfoLevel

	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return err
		}
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	if config.Format != "json" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	globalLogger = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = globalLogger

	return nil
}

func SetLevel(level zerolog.Level) {
	globalLogger = globalLogger.Level(level)
	log.Logger = globalLogger
}

func GetLogger() zerolog.Logger {
	return globalLogger
}

func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

// Discard silences logging, for the TUI which owns the terminal
func Discard() {
	globalLogger = zerolog.Nop()
	log.Logger = globalLogger
}
