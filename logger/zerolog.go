package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects where and how much a ZeroLogger writes.
type Config struct {
	// File is the log file path. Empty logs to stderr in console format.
	File string

	// Level is a zerolog level name ("trace", "debug", "info", ...).
	// Defaults to info.
	Level string

	// Debug forces the debug level regardless of Level.
	Debug bool

	// Quiet drops info messages.
	Quiet bool

	// Rotation settings for File, see lumberjack.Logger.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Component is attached to every entry.
	Component string
}

// ZeroLogger implements LogI on top of zerolog.
type ZeroLogger struct {
	log   zerolog.Logger
	quiet bool
	out   io.Closer
}

var _ LogI = (*ZeroLogger)(nil)

// NewZeroLogger builds a logger from c. Close releases the log file, if any.
func NewZeroLogger(c Config) (*ZeroLogger, error) {
	level := zerolog.InfoLevel
	if c.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level %q: %w", c.Level, err)
		}
	}
	if c.Debug && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	var (
		w   io.Writer
		out io.Closer
	)
	if c.File != "" {
		lj := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
		}
		w, out = lj, lj
	} else {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	z := NewZeroLoggerWriter(w, level, c.Component)
	z.quiet = c.Quiet
	z.out = out
	return z, nil
}

// NewZeroLoggerWriter logs JSON entries to w at the given level.
func NewZeroLoggerWriter(w io.Writer, level zerolog.Level, component string) *ZeroLogger {
	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	return &ZeroLogger{log: ctx.Logger()}
}

// Close flushes and closes the log file. It is a no-op for stderr output.
func (z *ZeroLogger) Close() error {
	if z.out == nil {
		return nil
	}
	return z.out.Close()
}

func (z *ZeroLogger) VerboseMsg(message string) {
	z.log.Trace().Msg(message)
}

func (z *ZeroLogger) VerboseMsgf(format string, args ...interface{}) {
	z.log.Trace().Msgf(format, args...)
}

func (z *ZeroLogger) InfoMsg(message string) {
	if z.quiet {
		return
	}
	z.log.Info().Msg(message)
}

func (z *ZeroLogger) InfoMsgf(format string, args ...interface{}) {
	if z.quiet {
		return
	}
	z.log.Info().Msgf(format, args...)
}

func (z *ZeroLogger) DebugMsgf(format string, args ...interface{}) {
	z.log.Debug().Msgf(format, args...)
}

func (z *ZeroLogger) DebugMsg(message string) {
	z.log.Debug().Msg(message)
}

func (z *ZeroLogger) IsDebugEnabled() bool {
	return z.log.GetLevel() <= zerolog.DebugLevel
}

func (z *ZeroLogger) ErrorMsg(err error, message string) {
	z.log.Error().Err(err).Msg(message)
}

func (z *ZeroLogger) ErrorMsgf(err error, format string, args ...interface{}) {
	z.log.Error().Err(err).Msgf(format, args...)
}
