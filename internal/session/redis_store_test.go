package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"pactline/internal/chat"
	"pactline/internal/domain"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, s
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url", 0); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSaveAndLoadChat(t *testing.T) {
	store, s := setupTestRedis(t, 0)
	ctx := context.Background()

	snap := domain.ChatSnapshot{
		ActorID:    "alice",
		ContractID: "c1",
		VersionID:  "v2",
		Messages: []domain.ChatMessage{
			{Role: domain.ChatUser, Text: "q", CreatedAt: 1},
			{Role: domain.ChatAssistant, Text: "a", Citations: []domain.Citation{{Text: "x", Page: 4}}, CreatedAt: 2},
		},
	}
	if err := store.SaveChat(ctx, snap); err != nil {
		t.Fatalf("SaveChat: %v", err)
	}
	if !s.Exists("pactline:chat:alice:c1") {
		t.Fatalf("expected key pactline:chat:alice:c1")
	}
	if _, ok, _ := store.LoadChat(ctx, "bob", "c1"); ok {
		t.Fatalf("another actor must not load alice's snapshot")
	}

	got, ok, err := store.LoadChat(ctx, "alice", "c1")
	if err != nil || !ok {
		t.Fatalf("LoadChat: ok=%v err=%v", ok, err)
	}
	if got.VersionID != "v2" || len(got.Messages) != 2 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got.Messages[1].Citations[0].Page != 4 {
		t.Fatalf("citation lost: %+v", got.Messages[1])
	}

	if err := store.DeleteChat(ctx, "alice", "c1"); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	if _, ok, _ := store.LoadChat(ctx, "alice", "c1"); ok {
		t.Fatalf("expected deleted snapshot")
	}
}

func TestSaveChatRequiresActor(t *testing.T) {
	store, _ := setupTestRedis(t, 0)
	if err := store.SaveChat(context.Background(), domain.ChatSnapshot{ContractID: "c1"}); err == nil {
		t.Fatalf("expected error for missing actor id")
	}
}

func TestChatSnapshotExpires(t *testing.T) {
	store, s := setupTestRedis(t, time.Hour)
	ctx := context.Background()
	if err := store.SaveChat(ctx, domain.ChatSnapshot{ActorID: "alice", ContractID: "c1", VersionID: "v1"}); err != nil {
		t.Fatalf("SaveChat: %v", err)
	}
	s.FastForward(2 * time.Hour)
	if _, ok, err := store.LoadChat(ctx, "alice", "c1"); ok || err != nil {
		t.Fatalf("expected expiry, ok=%v err=%v", ok, err)
	}
}

func TestLoadCorruptSnapshot(t *testing.T) {
	store, s := setupTestRedis(t, 0)
	if err := s.Set("pactline:chat:alice:c1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := store.LoadChat(context.Background(), "alice", "c1"); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestRedisStoreBacksChat(t *testing.T) {
	store, _ := setupTestRedis(t, 0)
	ctx := context.Background()
	if err := store.SaveChat(ctx, domain.ChatSnapshot{
		ActorID:    "alice",
		ContractID: "c1",
		VersionID:  "v1",
		Messages:   []domain.ChatMessage{{Role: domain.ChatUser, Text: "stale", CreatedAt: 1}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	c, err := chat.Open(ctx, "c1", "v2", nil, store, chat.Options{ActorID: "alice"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n := len(c.Snapshot().Messages); n != 0 {
		t.Fatalf("expected stale history discarded, got %d messages", n)
	}
	got, ok, err := store.LoadChat(ctx, "alice", "c1")
	if err != nil || !ok || got.VersionID != "v2" {
		t.Fatalf("expected re-pinned snapshot, got %+v ok=%v err=%v", got, ok, err)
	}
}
