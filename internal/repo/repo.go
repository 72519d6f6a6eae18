package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pactline/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// LoadChat returns the stored chat session of an actor on a contract.
func (r Repo) LoadChat(ctx context.Context, actorID, contractID string) (domain.ChatSnapshot, bool, error) {
	snap := domain.ChatSnapshot{ActorID: actorID, ContractID: contractID, Messages: []domain.ChatMessage{}}
	err := r.DB.QueryRowContext(ctx, `SELECT version_id,updated_at FROM chat_sessions WHERE actor_id=? AND contract_id=?`, actorID, contractID).
		Scan(&snap.VersionID, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatSnapshot{}, false, nil
	}
	if err != nil {
		return domain.ChatSnapshot{}, false, err
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT created_at,role,text,citations_json FROM chat_messages WHERE actor_id=? AND contract_id=? ORDER BY created_at ASC`, actorID, contractID)
	if err != nil {
		return domain.ChatSnapshot{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var m domain.ChatMessage
		var cites string
		if err := rows.Scan(&m.CreatedAt, &m.Role, &m.Text, &cites); err != nil {
			return domain.ChatSnapshot{}, false, err
		}
		if cites != "" && cites != "[]" {
			if err := json.Unmarshal([]byte(cites), &m.Citations); err != nil {
				return domain.ChatSnapshot{}, false, fmt.Errorf("decode citations: %w", err)
			}
		}
		snap.Messages = append(snap.Messages, m)
	}
	return snap, true, rows.Err()
}

// SaveChat replaces the stored session of snap.ActorID on snap.ContractID.
func (r Repo) SaveChat(ctx context.Context, snap domain.ChatSnapshot) error {
	if snap.ContractID == "" {
		return fmt.Errorf("chat session without contract id")
	}
	if snap.ActorID == "" {
		return fmt.Errorf("chat session without actor id")
	}
	if snap.UpdatedAt == "" {
		snap.UpdatedAt = r.now().UTC().Format(time.RFC3339)
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO chat_sessions(actor_id,contract_id,version_id,updated_at) VALUES (?,?,?,?)
		ON CONFLICT(actor_id,contract_id) DO UPDATE SET version_id=excluded.version_id, updated_at=excluded.updated_at`,
		snap.ActorID, snap.ContractID, snap.VersionID, snap.UpdatedAt); err != nil {
		return fmt.Errorf("upsert chat session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE actor_id=? AND contract_id=?`, snap.ActorID, snap.ContractID); err != nil {
		return fmt.Errorf("clear chat messages: %w", err)
	}
	for _, m := range snap.Messages {
		cites := []byte("[]")
		if len(m.Citations) > 0 {
			if cites, err = json.Marshal(m.Citations); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chat_messages(actor_id,contract_id,created_at,role,text,citations_json) VALUES (?,?,?,?,?,?)`,
			snap.ActorID, snap.ContractID, m.CreatedAt, string(m.Role), m.Text, string(cites)); err != nil {
			return fmt.Errorf("insert chat message: %w", err)
		}
	}
	return tx.Commit()
}

func (r Repo) DeleteChat(ctx context.Context, actorID, contractID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM chat_sessions WHERE actor_id=? AND contract_id=?`, actorID, contractID)
	return err
}

// FiredVersions lists versions of a contract whose clause auto-selection already ran.
func (r Repo) FiredVersions(ctx context.Context, contractID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT version_id FROM autoselect_history WHERE contract_id=? ORDER BY fired_at`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r Repo) MarkFiredTx(ctx context.Context, tx *sql.Tx, contractID, versionID string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO autoselect_history(contract_id,version_id,fired_at) VALUES (?,?,?) ON CONFLICT DO NOTHING`,
		contractID, versionID, r.now().UTC().Format(time.RFC3339))
	return err
}

type EventFilters struct {
	ContractID string
	ActorID    string
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
	// Before pages backwards from an event id.
	Before int64
}

// LatestEvents returns events newest first.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ContractID != "" {
		clauses = append(clauses, "contract_id=?")
		args = append(args, f.ContractID)
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

const eventColumns = `id,uid,ts,type,contract_id,entity_kind,entity_id,actor_id,payload_json`

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var contractID, entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.UID, &e.TS, &e.Type, &contractID, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.ContractID = contractID.String
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}
