// Package logger
package logger

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Init(path string)
	InitMultiWriter(path string)
	SetLevel(level string) error

	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	Debug(msg string)

	WithStr(key, value string) Logger
	WithBool(key string, value bool) Logger
	WithInt(key string, value int) Logger
	WithAny(key string, value any) Logger
	WithErr(err error) Logger
}

type logger struct {
	base    zerolog.Logger
	context map[string]any
	path    string
}

func New() Logger {
	return &logger{
		base: zerolog.Nop(),
		path: "./logs/gota.log",
	}
}

// Discard returns a logger that drops every event.
func Discard() Logger {
	return &logger{base: zerolog.Nop()}
}

// To writes plain JSON events to w, mostly useful in tests.
func To(w io.Writer) Logger {
	return &logger{
		base: zerolog.New(w).With().Timestamp().Logger(),
	}
}

func (l *logger) rotating() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   l.path,
		MaxSize:    5,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}
}

func (l *logger) Init(path string) {
	if path != "" {
		l.path = path
	}

	l.base = zerolog.New(l.rotating()).
		With().
		Timestamp().
		Logger()
}

func (l *logger) InitMultiWriter(path string) {
	if path != "" {
		l.path = path
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	multi := io.MultiWriter(console, l.rotating())

	l.base = zerolog.New(multi).
		With().
		Timestamp().
		Logger()
}

func (l *logger) SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	l.base = l.base.Level(lvl)
	return nil
}

func (l *logger) event(e *zerolog.Event, msg string) {
	if len(l.context) > 0 {
		e = e.Fields(l.context)
	}
	e.Msg(msg)
}

func (l *logger) Info(msg string) {
	l.event(l.base.Info(), msg)
}

func (l *logger) Warn(msg string) {
	l.event(l.base.Warn(), msg)
}

func (l *logger) Fatal(msg string) {
	l.event(l.base.Fatal(), msg)
}

func (l *logger) Error(msg string) {
	l.event(l.base.Error(), msg)
}

func (l *logger) Debug(msg string) {
	l.event(l.base.Debug(), msg)
}

func (l *logger) WithStr(key, value string) Logger {
	return l.withField(key, value)
}

func (l *logger) WithBool(key string, value bool) Logger {
	return l.withField(key, value)
}

func (l *logger) WithInt(key string, value int) Logger {
	return l.withField(key, value)
}

func (l *logger) WithAny(key string, value any) Logger {
	return l.withField(key, value)
}

func (l *logger) WithErr(err error) Logger {
	if err == nil {
		return l
	}
	return l.withField(zerolog.ErrorFieldName, err.Error())
}

func (l *logger) withField(key string, value any) Logger {
	newCtx := make(map[string]any, len(l.context)+1)
	maps.Copy(newCtx, l.context)
	newCtx[key] = value

	return &logger{
		base:    l.base,
		context: newCtx,
		path:    l.path,
	}
}

func LogPath(path string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	logDir := filepath.Join(homeDir, "gota", path)

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "gota.log")
	return logPath, nil
}
