package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"pactline/internal/chat"
	"pactline/internal/domain"
	"pactline/internal/engine/auth"
	"pactline/internal/events"
	"pactline/internal/roster"
	"pactline/internal/taskboard"
	"pactline/internal/versions"
)

// Contract is an open contract session: the last backend read, its version history,
// the task board of the latest version and the pinned chat. It is created when a
// contract is opened and dropped when the caller navigates away.
type Contract struct {
	eng     Engine
	id      string
	actorID string

	mu        sync.Mutex
	detail    domain.ContractDetail
	history   *versions.History
	board     *taskboard.Board
	uploading bool

	chat *chat.Chat
}

// OpenContract reads a contract through the cache and starts a session for actorID.
func (e Engine) OpenContract(ctx context.Context, contractID, actorID string) (*Contract, error) {
	detail, err := e.fetch(ctx, actorID, contractID, false)
	if err != nil {
		return nil, err
	}
	history, err := versions.New(detail.Versions)
	if err != nil {
		return nil, fmt.Errorf("contract %s: %w", contractID, err)
	}
	latest, err := history.Latest()
	if err != nil {
		return nil, fmt.Errorf("contract %s: %w", contractID, err)
	}

	c := &Contract{
		eng:     e,
		id:      detail.ID,
		actorID: actorID,
		detail:  detail,
		history: history,
		board:   taskboard.New(),
	}
	c.board.MarkConsumed(e.firedVersions(ctx, contractID)...)

	c.chat, err = chat.Open(ctx, contractID, latest.ID, e.Backend, e.ChatStore, chat.Options{
		ActorID:   actorID,
		Retention: e.Config.Chat.Retention,
		Now:       e.now,
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.observeLocked(ctx)
	c.mu.Unlock()
	e.record(ctx, events.SessionOpened, contractID, "contract", contractID, actorID, events.EventPayload{"latest_version": latest.Number})
	return c, nil
}

func (c *Contract) ID() string { return c.id }

func (c *Contract) ActorID() string { return c.actorID }

// Refresh re-reads the contract. With bypass it skips the freshness cache, which is
// what the session poller does.
func (c *Contract) Refresh(ctx context.Context, bypass bool) error {
	detail, err := c.eng.fetch(ctx, c.actorID, c.ID(), bypass)
	if err != nil {
		return err
	}
	return c.apply(ctx, detail)
}

// apply installs a backend read. A new latest version re-pins the chat before the
// board is observed so both always agree on the latest version.
func (c *Contract) apply(ctx context.Context, detail domain.ContractDetail) error {
	history, err := versions.New(detail.Versions)
	if err != nil {
		return fmt.Errorf("contract %s: %w", detail.ID, err)
	}
	latest, err := history.Latest()
	if err != nil {
		return fmt.Errorf("contract %s: %w", detail.ID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.history.LatestID()
	c.detail = detail
	c.history = history
	if prev != latest.ID {
		slog.InfoContext(ctx, "latest version changed", "contract_id", detail.ID, "version", latest.Number)
		if _, err := c.chat.Pin(ctx, latest.ID); err != nil {
			slog.WarnContext(ctx, "failed to persist chat re-pin", "contract_id", detail.ID, "error", err)
		}
	}
	c.observeLocked(ctx)
	return nil
}

func (c *Contract) observeLocked(ctx context.Context) {
	latestID := c.history.LatestID()
	wasConsumed := c.board.Consumed(latestID)
	selected := c.board.Observe(latestID, c.detail.AITasks)
	if !wasConsumed && c.board.Consumed(latestID) {
		c.eng.markFired(ctx, c.ID(), latestID)
	}
	if selected {
		slog.DebugContext(ctx, "clause analysis auto-selected", "contract_id", c.ID(), "version_id", latestID)
		c.eng.record(ctx, events.AnalysisAutoSelected, c.ID(), "version", latestID, c.actorID,
			events.EventPayload{"kind": string(domain.KindClauseExtraction)})
	}
}

// Detail returns the last backend read.
func (c *Contract) Detail() domain.ContractDetail {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detail
}

func (c *Contract) Status() domain.ContractStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detail.Status
}

func (c *Contract) Latest() (domain.ContractVersion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Latest()
}

// Versions lists versions newest first; limit <= 0 lists all.
func (c *Contract) Versions(limit int) versions.Listing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.List(limit)
}

// Role is the acting user's role: the one the backend reports, else the strongest
// role held on the roster.
func (c *Contract) Role() domain.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roleLocked()
}

func (c *Contract) roleLocked() domain.Role {
	if c.detail.Role.Valid() {
		return c.detail.Role
	}
	role, _ := roster.ActingRole(c.detail.Participants, c.actorID)
	return role
}

func (c *Contract) Roster() roster.Groups {
	c.mu.Lock()
	defer c.mu.Unlock()
	return roster.GroupByRole(c.detail.Participants)
}

func (c *Contract) SigningSequence() []roster.Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return roster.SigningSequence(c.detail.Participants)
}

// Task returns a task of the latest version.
func (c *Contract) Task(kind domain.TaskKind) (domain.AITask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Task(c.history.LatestID(), kind)
}

// Tasks lists the latest version's tasks in board order.
func (c *Contract) Tasks() []taskboard.KindTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Tasks(c.history.LatestID())
}

// Select toggles the displayed task of the latest version.
func (c *Contract) Select(kind domain.TaskKind) (taskboard.Selection, error) {
	if !kind.Valid() {
		return taskboard.Selection{}, fmt.Errorf("unknown task kind %q", kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Select(c.history.LatestID(), kind), nil
}

func (c *Contract) Selection() (taskboard.Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Selection()
}

// Analysis returns the display state of a task of the latest version.
func (c *Contract) Analysis(kind domain.TaskKind) taskboard.Analysis {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Analysis(c.history.LatestID(), kind)
}

// SelectedAnalysis returns the analysis of the selected task, if any.
func (c *Contract) SelectedAnalysis() (taskboard.Analysis, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.SelectedAnalysis()
}

// SendChat asks the assistant about the latest version.
func (c *Contract) SendChat(ctx context.Context, text string) (domain.ChatMessage, error) {
	msg, err := c.chat.Send(ctx, text)
	versionID := c.chat.VersionID()
	var reqErr *chat.RequestError
	switch {
	case err == nil:
		c.eng.invalidate(ctx, c.ID())
		c.eng.record(ctx, events.ChatSent, c.ID(), "version", versionID, c.actorID,
			events.EventPayload{"citations": len(msg.Citations)})
	case errors.As(err, &reqErr):
		c.eng.record(ctx, events.ChatFailed, c.ID(), "version", versionID, c.actorID,
			events.EventPayload{"error": reqErr.Err.Error()})
	}
	return msg, err
}

// ChatHistory returns the pinned conversation.
func (c *Contract) ChatHistory() domain.ChatSnapshot {
	return c.chat.Snapshot()
}

func (c *Contract) ChatSending() bool {
	return c.chat.Sending()
}

// ResetChat clears the conversation and keeps the pin.
func (c *Contract) ResetChat(ctx context.Context) error {
	if err := c.chat.Reset(ctx); err != nil {
		return err
	}
	c.eng.record(ctx, events.ChatReset, c.ID(), "version", c.chat.VersionID(), c.actorID, nil)
	return nil
}

// Close ends the session.
func (c *Contract) Close(ctx context.Context) {
	c.eng.record(ctx, events.SessionClosed, c.ID(), "contract", c.ID(), c.actorID, nil)
}

// UploadGate is whether the upload action is offered, with the reason when not.
type UploadGate struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func (c *Contract) UploadGate() UploadGate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.uploadAllowedLocked(); err != nil {
		return UploadGate{Reason: err.Error()}
	}
	return UploadGate{Allowed: true}
}

func (c *Contract) uploadAllowedLocked() error {
	if !c.detail.Status.AllowsNewVersion() {
		return &UploadError{Reason: fmt.Sprintf("contract is %s", c.detail.Status.Label()), Err: ErrUploadNotAllowed}
	}
	if err := auth.RequireRole("upload new version", c.roleLocked(), domain.RoleManager); err != nil {
		return &UploadError{Reason: err.Error(), Err: ErrUploadNotAllowed}
	}
	if c.uploading {
		return &UploadError{Reason: "an upload is already running", Err: ErrUploadInProgress}
	}
	return nil
}
