package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"orderflow/internal/domain"
)

// Event types emitted by the engine.
const (
	OrderCreated             = "order.created"
	OrderAssigned            = "order.assigned"
	OrderStatusChanged       = "order.status_changed"
	OrderReleased            = "order.released"
	OrderRegistrationMissing = "order.registration_unlinked"
	DependencyAdded          = "dependency.added"
	DependencySatisfied      = "dependency.satisfied"
	DependencyBlocked        = "dependency.blocked"
	RegistrationCreated      = "registration.created"
	RegistrationCompleted    = "registration.completed"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside the caller's transaction and returns it so
// the caller can publish it after commit.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) (domain.Event, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return domain.Event{}, err
	}
	id, _ := res.LastInsertId()
	return domain.Event{
		ID:         id,
		TS:         ts,
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	}, nil
}

// List returns the most recent events for an entity, newest first.
func (w Writer) List(ctx context.Context, entityKind, entityID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events
WHERE entity_kind=? AND entity_id=? ORDER BY id DESC LIMIT ?`, entityKind, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
