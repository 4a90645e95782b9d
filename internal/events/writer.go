package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Audit event types.
const (
	ItemAdded       = "eightysix.item.added"
	ItemRemoved     = "eightysix.item.removed"
	TaskCompleted   = "checklist.task.completed"
	TaskReopened    = "checklist.task.reopened"
	ChecklistReset  = "checklist.reset"
	LowMarginRaised = "pourcost.low_margin"
	APIKeyCreated   = "auth.api_key.created"
	APIKeyRevoked   = "auth.api_key.revoked"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an audit event inside tx and returns its id.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, channel, entityKind, entityID, actorID string, payload EventPayload) (int64, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,channel,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(channel), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", evtType, err)
	}
	return res.LastInsertId()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
