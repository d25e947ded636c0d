// Package logger собирает *slog.Logger из конфигурации.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Форматы вывода
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Config параметры логирования
type Config struct {
	Level  string // debug, info, warn, error
	Format string // auto, text, json
	// File путь к файлу лога, пустая строка означает stderr
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New создает логгер. Второе значение закрывает файл лога, если он открыт.
func New(cfg Config) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out     io.Writer = os.Stderr
		closeFn           = func() error { return nil }
		tty               = term.IsTerminal(int(os.Stderr.Fd()))
	)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out, closeFn, tty = rotator, rotator.Close, false
	}

	handler, err := newHandler(out, cfg.Format, tty, level)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(handler), closeFn, nil
}

func newHandler(out io.Writer, format string, tty bool, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "", FormatAuto:
		// в терминал человекочитаемо, в пайп и файл JSON
		if tty {
			return slog.NewTextHandler(out, opts), nil
		}
		return slog.NewJSONHandler(out, opts), nil
	case FormatText:
		return slog.NewTextHandler(out, opts), nil
	case FormatJSON:
		return slog.NewJSONHandler(out, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// ParseLevel разбирает уровень логирования, пустая строка означает info
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
