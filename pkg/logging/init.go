// Package logging installs the process-wide slog handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

const (
	JSON = "json"
	Text = "text"
	Tint = "tint"
)

// Options selects the handler. Writer defaults to stderr so that stdout
// carries only the run result.
type Options struct {
	Writer    io.Writer
	Type      string
	Level     string
	AddSource bool
}

// New builds a logger without installing it.
func New(opts Options) (*slog.Logger, error) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, fmt.Errorf("could not parse log level: %w", err)
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	handlerOptions := slog.HandlerOptions{
		AddSource: opts.AddSource,
		Level:     logLevel,
	}

	var handler slog.Handler
	switch opts.Type {
	case JSON:
		handler = slog.NewJSONHandler(w, &handlerOptions)
	case Text:
		handler = slog.NewTextHandler(w, &handlerOptions)
	case Tint:
		handler = tint.NewHandler(w, &tint.Options{
			AddSource: handlerOptions.AddSource,
			Level:     handlerOptions.Level,
		})
	default:
		return nil, fmt.Errorf("unknown logging type: %s", opts.Type)
	}

	return slog.New(handler), nil
}

// Initialize builds a logger from opts and makes it the slog default.
func Initialize(opts Options) error {
	logger, err := New(opts)
	if err != nil {
		return err
	}

	slog.SetDefault(logger)
	slog.Debug("logging initialized", "type", opts.Type, "logLevel", opts.Level)
	return nil
}
