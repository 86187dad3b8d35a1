package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	ActivityCreated     = "activity.created"
	ActivityUpdated     = "activity.updated"
	ActivityPublished   = "activity.published"
	ActivityDeleted     = "activity.deleted"
	EnrollmentCreated   = "enrollment.created"
	EnrollmentApproved  = "enrollment.approved"
	EnrollmentRejected  = "enrollment.rejected"
	EnrollmentCancelled = "enrollment.cancelled"
	EnrollmentPromoted  = "enrollment.promoted"
	EnrollmentOverride  = "enrollment.overridden"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside the caller's transaction so the log
// commits or rolls back with the state change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, userID string, payload EventPayload) error {
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
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,user_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), userID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
