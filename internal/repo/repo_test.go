package repo_test

import (
	"context"
	"testing"

	"pactline/internal/db"
	"pactline/internal/domain"
	"pactline/internal/events"
	"pactline/internal/repo"
)

func openRepo(t *testing.T) (repo.Repo, events.Writer) {
	t.Helper()
	conn, err := db.OpenMigrated(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return repo.Repo{DB: conn}, events.Writer{DB: conn}
}

func TestChatRoundTripAndDelete(t *testing.T) {
	ctx := context.Background()
	r, _ := openRepo(t)

	if _, ok, err := r.LoadChat(ctx, "alice", "c1"); err != nil || ok {
		t.Fatalf("expected no session, got ok=%v err=%v", ok, err)
	}
	snap := domain.ChatSnapshot{
		ActorID:    "alice",
		ContractID: "c1",
		VersionID:  "v1",
		Messages: []domain.ChatMessage{
			{Role: domain.ChatUser, Text: "Who can terminate?", CreatedAt: 1},
			{Role: domain.ChatAssistant, Text: "Either party.", CreatedAt: 2, Citations: []domain.Citation{{Text: "Either party may terminate.", Page: 1}}},
		},
	}
	if err := r.SaveChat(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := r.LoadChat(ctx, "alice", "c1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.VersionID != "v1" || len(got.Messages) != 2 || got.UpdatedAt == "" {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if len(got.Messages[1].Citations) != 1 || got.Messages[1].Citations[0].Page != 1 || got.Messages[0].Citations != nil {
		t.Fatalf("citations not preserved: %+v", got.Messages)
	}

	snap.VersionID = "v2"
	snap.Messages = nil
	if err := r.SaveChat(ctx, snap); err != nil {
		t.Fatalf("re-pin: %v", err)
	}
	got, _, _ = r.LoadChat(ctx, "alice", "c1")
	if got.VersionID != "v2" || len(got.Messages) != 0 {
		t.Fatalf("save should replace the session: %+v", got)
	}

	if err := r.DeleteChat(ctx, "alice", "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := r.LoadChat(ctx, "alice", "c1"); ok {
		t.Fatalf("session still present after delete")
	}
	if err := r.SaveChat(ctx, domain.ChatSnapshot{}); err == nil {
		t.Fatalf("expected error for missing contract id")
	}
	if err := r.SaveChat(ctx, domain.ChatSnapshot{ContractID: "c1"}); err == nil {
		t.Fatalf("expected error for missing actor id")
	}
}

func TestChatSessionsAreScopedPerActor(t *testing.T) {
	ctx := context.Background()
	r, _ := openRepo(t)
	alice := domain.ChatSnapshot{
		ActorID:    "alice",
		ContractID: "c1",
		VersionID:  "v1",
		Messages:   []domain.ChatMessage{{Role: domain.ChatUser, Text: "private question", CreatedAt: 1}},
	}
	if err := r.SaveChat(ctx, alice); err != nil {
		t.Fatalf("save alice: %v", err)
	}
	if _, ok, err := r.LoadChat(ctx, "bob", "c1"); err != nil || ok {
		t.Fatalf("bob must not see alice's session: ok=%v err=%v", ok, err)
	}
	if err := r.SaveChat(ctx, domain.ChatSnapshot{ActorID: "bob", ContractID: "c1", VersionID: "v1"}); err != nil {
		t.Fatalf("save bob: %v", err)
	}
	if err := r.DeleteChat(ctx, "bob", "c1"); err != nil {
		t.Fatalf("delete bob: %v", err)
	}
	got, ok, err := r.LoadChat(ctx, "alice", "c1")
	if err != nil || !ok || len(got.Messages) != 1 || got.ActorID != "alice" {
		t.Fatalf("alice's session changed by bob: ok=%v err=%v %+v", ok, err, got)
	}
}

func TestFiredVersionsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	r, _ := openRepo(t)
	for _, v := range []string{"v1", "v2", "v1"} {
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := r.MarkFiredTx(ctx, tx, "c1", v); err != nil {
			t.Fatalf("mark %s: %v", v, err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := r.FiredVersions(ctx, "c1")
	if err != nil {
		t.Fatalf("fired: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected two fired versions, got %v", ids)
	}
	if other, _ := r.FiredVersions(ctx, "c2"); len(other) != 0 {
		t.Fatalf("history leaked across contracts: %v", other)
	}
}

func TestLatestEventsFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	r, w := openRepo(t)
	record := func(typ, contractID string) {
		t.Helper()
		if err := w.Record(ctx, typ, contractID, "contract", contractID, "", events.EventPayload{"n": 1}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	record(events.SessionOpened, "c1")
	record(events.ChatSent, "c1")
	record(events.ChatSent, "c2")
	record(events.SessionClosed, "c1")

	all, err := r.LatestEvents(ctx, repo.EventFilters{})
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(all) != 4 || all[0].Type != events.SessionClosed || all[0].ActorID != "local-user" {
		t.Fatalf("expected newest first with default actor: %+v", all)
	}
	if all[0].Payload != `{"n":1}` {
		t.Fatalf("unexpected payload %q", all[0].Payload)
	}

	c1, _ := r.LatestEvents(ctx, repo.EventFilters{ContractID: "c1", Type: events.ChatSent})
	if len(c1) != 1 || c1[0].ContractID != "c1" {
		t.Fatalf("filter failed: %+v", c1)
	}

	if err := w.Record(ctx, events.ChatSent, "c1", "chat", "c1", "bob", nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	bob, _ := r.LatestEvents(ctx, repo.EventFilters{ActorID: "bob"})
	if len(bob) != 1 || bob[0].ActorID != "bob" {
		t.Fatalf("actor filter failed: %+v", bob)
	}

	page, _ := r.LatestEvents(ctx, repo.EventFilters{ActorID: "local-user", Limit: 2})
	if len(page) != 2 {
		t.Fatalf("limit ignored: %d", len(page))
	}
	rest, _ := r.LatestEvents(ctx, repo.EventFilters{ActorID: "local-user", Limit: 2, Before: page[1].ID})
	if len(rest) != 2 || rest[0].ID >= page[1].ID {
		t.Fatalf("cursor paging failed: %+v", rest)
	}
}
