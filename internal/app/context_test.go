package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"pactline/internal/config"
	"pactline/internal/engine/auth"
	"pactline/internal/repo"
	"pactline/internal/session"
)

func TestResolveConfigDefaultsAndOverride(t *testing.T) {
	dir := t.TempDir()
	cfg, err := ResolveConfig(Options{Workspace: dir})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Backend.BaseURL != config.DefaultBaseURL {
		t.Fatalf("expected default base url, got %q", cfg.Backend.BaseURL)
	}
	cfg, err = ResolveConfig(Options{Workspace: dir, BaseURL: "https://contracts.example.com"})
	if err != nil || cfg.Backend.BaseURL != "https://contracts.example.com" {
		t.Fatalf("override: %v %v", cfg, err)
	}
	if _, err := ResolveConfig(Options{Workspace: dir, BaseURL: "nope"}); err == nil {
		t.Fatalf("expected invalid override to fail")
	}

	if err := os.WriteFile(filepath.Join(dir, "pactline.yml"), []byte("chat:\n  retention: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveConfig(Options{Workspace: dir}); err == nil {
		t.Fatalf("expected invalid workspace config to fail")
	}
}

func TestActorID(t *testing.T) {
	actor, err := ActorID("")
	if err != nil || actor != LocalActor {
		t.Fatalf("anonymous actor: %q %v", actor, err)
	}
	tok, err := auth.Sign("secret", "user-42", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	actor, err = ActorID(tok)
	if err != nil || actor != "user-42" {
		t.Fatalf("token actor: %q %v", actor, err)
	}
	if _, err := ActorID("garbage"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}

func TestOpenEngineUsesConfiguredStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	e, closeFn, err := OpenEngine(ctx, Options{Workspace: t.TempDir(), Token: "tok"}, cfg)
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	defer closeFn()
	if _, ok := e.ChatStore.(repo.Repo); !ok {
		t.Fatalf("expected sqlite chat store, got %T", e.ChatStore)
	}

	mr := miniredis.RunT(t)
	cfg = config.Default()
	cfg.Chat.Store = config.StoreRedis
	cfg.Chat.RedisURL = "redis://" + mr.Addr()
	e, closeRedis, err := OpenEngine(ctx, Options{Workspace: t.TempDir()}, cfg)
	if err != nil {
		t.Fatalf("open engine with redis: %v", err)
	}
	defer closeRedis()
	if _, ok := e.ChatStore.(*session.RedisStore); !ok {
		t.Fatalf("expected redis chat store, got %T", e.ChatStore)
	}

	cfg.Chat.RedisURL = "redis://127.0.0.1:1"
	if _, _, err := OpenEngine(ctx, Options{Workspace: t.TempDir()}, cfg); err == nil {
		t.Fatalf("expected unreachable redis to fail")
	}
}

func TestNewBackendAppliesTimeouts(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.Timeout = 3 * time.Second
	cfg.Backend.UploadTimeout = time.Minute
	c := NewBackend(cfg, "tok")
	if c.Timeout != 3*time.Second || c.UploadTimeout != time.Minute || c.BearerToken != "tok" {
		t.Fatalf("unexpected client: %+v", c)
	}
}
