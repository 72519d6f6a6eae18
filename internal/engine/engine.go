package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pactline/internal/cache"
	"pactline/internal/chat"
	"pactline/internal/config"
	"pactline/internal/domain"
	"pactline/internal/events"
	"pactline/internal/repo"
)

// Backend is the contract backend as the engine uses it.
type Backend interface {
	ListContracts(ctx context.Context, status domain.ContractStatus) ([]domain.Contract, error)
	GetContract(ctx context.Context, contractID string) (domain.ContractDetail, error)
	CreateVersion(ctx context.Context, contractID, filename string, content []byte) (domain.ContractVersion, error)
	Ask(ctx context.Context, contractID, versionID, text string) (domain.ChatAnswer, error)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Backend   Backend
	ChatStore chat.Store
	Cache     *cache.Contracts
	Now       func() time.Time
}

// New wires an engine over an opened, migrated database. Chat sessions go to SQLite
// unless another store is set afterwards.
func New(db *sql.DB, cfg *config.Config, backend Backend) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:        db,
		Repo:      r,
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Backend:   backend,
		ChatStore: r,
		Cache:     cache.New(cfg.Cache.Size, cfg.Cache.Freshness),
		Now:       time.Now,
	}
}

// WithBackend returns a copy of the engine talking to another backend, e.g. one
// carrying a different user's token. Cache and stores are shared; both are keyed by
// actor, so sessions of different users never see each other's reads or chats.
func (e Engine) WithBackend(b Backend) Engine {
	e.Backend = b
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Dashboard is the contract list grouped into status tiles.
type Dashboard struct {
	Contracts []domain.Contract     `json:"contracts"`
	Groups    []domain.StatusGroup  `json:"groups"`
	Filter    domain.ContractStatus `json:"filter,omitempty"`
}

// ListContracts fetches the caller's contracts and groups them client side.
func (e Engine) ListContracts(ctx context.Context, status domain.ContractStatus) (Dashboard, error) {
	if status != "" && !status.Valid() {
		return Dashboard{}, fmt.Errorf("unknown contract status %q", status)
	}
	contracts, err := e.Backend.ListContracts(ctx, status)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{Contracts: contracts, Groups: domain.GroupByStatus(contracts), Filter: status}, nil
}

// fetch reads a contract through actorID's slot of the freshness cache. bypass
// forces a backend read and refreshes the cached copy.
func (e Engine) fetch(ctx context.Context, actorID, contractID string, bypass bool) (domain.ContractDetail, error) {
	if !bypass && e.Cache != nil {
		if d, ok := e.Cache.Get(actorID, contractID); ok {
			return d, nil
		}
	}
	d, err := e.Backend.GetContract(ctx, contractID)
	if err != nil {
		return domain.ContractDetail{}, err
	}
	if e.Cache != nil {
		e.Cache.Put(actorID, d)
	}
	return d, nil
}

// invalidate drops every actor's cached copy of a contract.
func (e Engine) invalidate(ctx context.Context, contractID string) {
	if e.Cache == nil {
		return
	}
	if n := e.Cache.Invalidate(contractID); n > 0 {
		slog.DebugContext(ctx, "contract cache invalidated", "contract_id", contractID, "entries", n)
	}
}

// record writes an activity event. Failures are logged; the activity log never
// blocks a contract operation.
func (e Engine) record(ctx context.Context, evtType, contractID, entityKind, entityID, actorID string, payload events.EventPayload) {
	if e.DB == nil {
		return
	}
	w := e.Events
	w.Now = e.now
	if err := w.Record(ctx, evtType, contractID, entityKind, entityID, actorID, payload); err != nil {
		slog.WarnContext(ctx, "failed to record event", "type", evtType, "contract_id", contractID, "error", err)
	}
}

// RecentEvents returns the activity log newest first.
func (e Engine) RecentEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}

func (e Engine) firedVersions(ctx context.Context, contractID string) []string {
	if e.DB == nil {
		return nil
	}
	ids, err := e.Repo.FiredVersions(ctx, contractID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load auto-selection history", "contract_id", contractID, "error", err)
		return nil
	}
	return ids
}

func (e Engine) markFired(ctx context.Context, contractID, versionID string) {
	if e.DB == nil {
		return
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err == nil {
		defer tx.Rollback()
		if err = e.Repo.MarkFiredTx(ctx, tx, contractID, versionID); err == nil {
			err = tx.Commit()
		}
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to persist auto-selection", "contract_id", contractID, "version_id", versionID, "error", err)
	}
}

// IsPrecondition reports whether err is a local precondition failure, checked
// before any network call.
func IsPrecondition(err error) bool {
	return errors.Is(err, chat.ErrEmptyInput) ||
		errors.Is(err, chat.ErrNoPinnedVersion) ||
		errors.Is(err, chat.ErrSendInProgress) ||
		errors.Is(err, ErrUploadInProgress) ||
		errors.Is(err, ErrUploadNotAllowed) ||
		errors.Is(err, ErrInvalidUpload)
}
