// Package logging sets up the process logger and carries request scoped
// attributes through context.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	ContractIDKey ContextKey = "contract_id"
	ActorIDKey    ContextKey = "actor_id"
)

var contextKeys = []ContextKey{RequestIDKey, ContractIDKey, ActorIDKey}

type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	File   string // optional JSON log file
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Setup builds a logger writing to stderr and, when cfg.File is set, JSON to that
// file as well. It becomes the slog default. The cleanup closes the file.
func Setup(cfg Config) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	var file io.WriteCloser
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
	}
	var fileWriter io.Writer
	if file != nil {
		fileWriter = file
	}
	logger := NewWithWriters(os.Stderr, fileWriter, cfg.Format, level)
	slog.SetDefault(logger)
	cleanup := func() error {
		if file == nil {
			return nil
		}
		return file.Close()
	}
	return logger, cleanup, nil
}

// NewWithWriters fans records out to the console writer and an optional JSON file
// writer. Context attributes set with With* helpers are added to every record.
func NewWithWriters(console, file io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handlers []slog.Handler
	if format == "json" {
		handlers = append(handlers, slog.NewJSONHandler(console, opts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(console, opts))
	}
	if file != nil {
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}
	handler := slogmulti.
		Pipe(slogmulti.NewHandleInlineMiddleware(injectContext)).
		Handler(slogmulti.Fanout(handlers...))
	return slog.New(handler)
}

func injectContext(ctx context.Context, record slog.Record, next func(context.Context, slog.Record) error) error {
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			record.AddAttrs(slog.String(string(key), v))
		}
	}
	return next(ctx, record)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func WithContractID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContractIDKey, id)
}

func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ActorIDKey, id)
}

// RequestID returns the request id stored on ctx, if any.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}
