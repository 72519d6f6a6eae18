package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Activity log event types.
const (
	VersionUploaded      = "version.uploaded"
	UploadFailed         = "version.upload_failed"
	ChatSent             = "chat.sent"
	ChatFailed           = "chat.failed"
	ChatReset            = "chat.reset"
	AnalysisAutoSelected = "analysis.autoselected"
	SessionOpened        = "session.opened"
	SessionClosed        = "session.closed"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, contractID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(uid,ts,type,contract_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		uuid.NewString(), ts, evtType, nullable(contractID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

// Record appends a single event in its own transaction.
func (w Writer) Record(ctx context.Context, evtType, contractID, entityKind, entityID, actorID string, payload EventPayload) error {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := w.Append(ctx, tx, evtType, contractID, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
