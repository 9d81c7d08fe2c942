package main

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/MrWong99/speakerfmt/internal/config"
)

// newLogger returns a text logger on stderr, or a JSON logger writing to a
// rotated file when file is set. The returned closer is nil for stderr.
func newLogger(level config.LogLevel, file string, stderr io.Writer) (*slog.Logger, io.Closer) {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if file == "" {
		return slog.New(slog.NewTextHandler(stderr, opts)), nil
	}
	w := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    32, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	return slog.New(slog.NewJSONHandler(w, opts)), w
}
