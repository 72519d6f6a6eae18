package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pactline/internal/domain"
)

var (
	ErrEmptyInput        = errors.New("chat input is empty")
	ErrNoPinnedVersion   = errors.New("chat session has no pinned version")
	ErrSendInProgress    = errors.New("chat send already in progress")
	ErrChatRequestFailed = errors.New("chat request failed")
	// ErrSuperseded means the pin moved while a send was in flight; the answer
	// belonged to an older document and was dropped.
	ErrSuperseded = errors.New("chat answer superseded by a newer version")
)

// RequestError wraps a failed assistant call. The optimistic user message stays.
type RequestError struct {
	ContractID string
	VersionID  string
	Err        error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("chat request for contract %s version %s failed: %v", e.ContractID, e.VersionID, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool { return target == ErrChatRequestFailed }

// Assistant answers a question grounded on one contract version.
type Assistant interface {
	Ask(ctx context.Context, contractID, versionID, text string) (domain.ChatAnswer, error)
}

// Store persists one snapshot per actor and contract. SaveChat keys on
// snap.ActorID and snap.ContractID.
type Store interface {
	LoadChat(ctx context.Context, actorID, contractID string) (domain.ChatSnapshot, bool, error)
	SaveChat(ctx context.Context, snap domain.ChatSnapshot) error
	DeleteChat(ctx context.Context, actorID, contractID string) error
}

type Options struct {
	// ActorID owns the conversation. Two actors on one contract never share it.
	ActorID   string
	Retention int
	Now       func() time.Time
}

// Chat mediates sends for one contract session and writes the session back to the
// store after every mutation.
type Chat struct {
	mu        sync.Mutex
	session   *Session
	sending   bool
	pinGen    uint64
	assistant Assistant
	store     Store
	now       func() time.Time
}

// Open loads the persisted session of opts.ActorID for a contract. A stored session pinned to
// anything other than latestVersionID is discarded before it can be shown.
func Open(ctx context.Context, contractID, latestVersionID string, assistant Assistant, store Store, opts Options) (*Chat, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Chat{assistant: assistant, store: store, now: opts.Now}

	snap, ok, err := store.LoadChat(ctx, opts.ActorID, contractID)
	if err != nil {
		return nil, fmt.Errorf("load chat session: %w", err)
	}
	if ok && snap.VersionID == latestVersionID {
		c.session = FromSnapshot(snap, opts.Retention)
		c.session.ActorID = opts.ActorID
		c.session.ContractID = contractID
		return c, nil
	}

	c.session = NewSession(opts.ActorID, contractID, opts.Retention)
	c.session.VersionID = latestVersionID
	if ok {
		slog.InfoContext(ctx, "discarding stale chat session",
			"contract_id", contractID, "stored_version", snap.VersionID, "latest_version", latestVersionID)
		if err := c.persist(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Pin re-pins the session. Moving to another version clears history and marks any
// in-flight send as superseded. Returns true when history was reset.
func (c *Chat) Pin(ctx context.Context, versionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Pin(versionID) {
		return false, nil
	}
	c.pinGen++
	slog.DebugContext(ctx, "chat session re-pinned", "contract_id", c.session.ContractID, "version_id", versionID)
	return true, c.persist(ctx)
}

// Reset clears history without moving the pin. An in-flight send is superseded.
func (c *Chat) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Reset()
	c.pinGen++
	return c.persist(ctx)
}

// Send appends text as a user message, asks the assistant, and appends the answer.
// Preconditions are checked before anything is appended or sent.
func (c *Chat) Send(ctx context.Context, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, ErrEmptyInput
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return domain.ChatMessage{}, ErrSendInProgress
	}
	if c.session.VersionID == "" {
		c.mu.Unlock()
		return domain.ChatMessage{}, ErrNoPinnedVersion
	}
	c.sending = true
	contractID, versionID, gen := c.session.ContractID, c.session.VersionID, c.pinGen
	c.session.AppendUser(text, c.now())
	c.persistLogged(ctx)
	c.mu.Unlock()

	answer, askErr := c.assistant.Ask(ctx, contractID, versionID, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	if gen != c.pinGen {
		return domain.ChatMessage{}, ErrSuperseded
	}
	if askErr != nil {
		return domain.ChatMessage{}, &RequestError{ContractID: contractID, VersionID: versionID, Err: askErr}
	}
	msg := c.session.AppendAssistant(answer, c.now())
	c.persistLogged(ctx)
	return msg, nil
}

// Sending reports whether a send is in flight.
func (c *Chat) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

func (c *Chat) VersionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.VersionID
}

// Snapshot returns a copy of the current session.
func (c *Chat) Snapshot() domain.ChatSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot(c.now())
}

func (c *Chat) persist(ctx context.Context) error {
	if err := c.store.SaveChat(ctx, c.session.Snapshot(c.now())); err != nil {
		return fmt.Errorf("save chat session: %w", err)
	}
	return nil
}

// persistLogged is used mid-send, where a storage failure must not mask the
// conversation outcome.
func (c *Chat) persistLogged(ctx context.Context) {
	if err := c.persist(ctx); err != nil {
		slog.WarnContext(ctx, "failed to persist chat session", "contract_id", c.session.ContractID, "error", err)
	}
}
