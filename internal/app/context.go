package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"pactline/internal/backend"
	"pactline/internal/chat"
	"pactline/internal/config"
	"pactline/internal/db"
	"pactline/internal/engine"
	"pactline/internal/engine/auth"
	"pactline/internal/repo"
	"pactline/internal/session"
)

// LocalActor is the actor recorded when no bearer token identifies the user.
const LocalActor = "local-user"

// Options selects the workspace and credentials of one CLI or server run.
type Options struct {
	Workspace string
	// BaseURL overrides backend.base_url when set.
	BaseURL string
	Token   string
}

// ResolveConfig loads the workspace config, falling back to defaults when the
// workspace has no pactline.yml, and applies overrides.
func ResolveConfig(opts Options) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if u := strings.TrimSpace(opts.BaseURL); u != "" {
		cfg.Backend.BaseURL = u
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// ActorID is the sub claim of the token, or LocalActor without one. The backend
// verifies the token; the client only reads who it belongs to.
func ActorID(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return LocalActor, nil
	}
	sub, err := auth.Subject(token)
	if err != nil {
		return "", fmt.Errorf("read token subject: %w", err)
	}
	return sub, nil
}

// NewBackend builds the backend client for cfg and token.
func NewBackend(cfg *config.Config, token string) *backend.Client {
	c := backend.New(cfg.Backend.BaseURL, token)
	c.Timeout = cfg.Backend.Timeout
	c.UploadTimeout = cfg.Backend.UploadTimeout
	return c
}

// NewChatStore returns the chat session store configured by chat.store. The close
// function releases store connections; it is a no-op for SQLite.
func NewChatStore(ctx context.Context, cfg *config.Config, r repo.Repo) (chat.Store, func() error, error) {
	switch cfg.Chat.Store {
	case "", config.StoreSQLite:
		return r, func() error { return nil }, nil
	case config.StoreRedis:
		rs, err := session.NewRedisStore(cfg.Chat.RedisURL, cfg.Chat.RedisTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("chat store: %w", err)
		}
		slog.DebugContext(ctx, "chat sessions stored in redis", "ttl", cfg.Chat.RedisTTL)
		return rs, rs.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown chat store %q", cfg.Chat.Store)
	}
}

// OpenEngine opens the workspace database and wires an engine talking to the
// configured backend. The returned function closes everything it opened.
func OpenEngine(ctx context.Context, opts Options, cfg *config.Config) (engine.Engine, func() error, error) {
	conn, err := db.OpenMigrated(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	e := engine.New(conn, cfg, NewBackend(cfg, opts.Token))
	store, closeStore, err := NewChatStore(ctx, cfg, e.Repo)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	e.ChatStore = store
	slog.DebugContext(ctx, "engine ready", "workspace", opts.Workspace, "backend", cfg.Backend.BaseURL, "chat_store", cfg.Chat.Store)
	return e, func() error {
		return errors.Join(closeStore(), conn.Close())
	}, nil
}
