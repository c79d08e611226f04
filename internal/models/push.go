package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PushEventType is the remote change-feed event type.
type PushEventType string

const (
	PushEventInsert PushEventType = "INSERT"
	PushEventUpdate PushEventType = "UPDATE"
	PushEventDelete PushEventType = "DELETE"
)

// ErrUnknownTable marks push updates for tables this engine does not mirror.
// Subscribers log and drop these rather than failing the stream.
var ErrUnknownTable = errors.New("unknown table in push update")

// PushUpdate is one raw change-feed frame as received from the push channel.
// Data stays undecoded until the table is known.
type PushUpdate struct {
	Table     string          `json:"table"`
	EventType PushEventType   `json:"eventType"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// RemoteRecordUpdate is a decoded push update ready for conflict resolution.
type RemoteRecordUpdate struct {
	Table     string                 `json:"table"`
	EventType PushEventType          `json:"eventType"`
	RecordID  string                 `json:"recordId"`
	Actor     string                 `json:"actor,omitempty"` // originating client id, "" when unknown
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// DecodePushUpdate parses a raw frame from the push channel.
func DecodePushUpdate(raw []byte) (*PushUpdate, error) {
	var update PushUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		return nil, fmt.Errorf("malformed push frame: %w", err)
	}

	switch update.EventType {
	case PushEventInsert, PushEventUpdate, PushEventDelete:
	default:
		return nil, fmt.Errorf("unknown push event type %q", update.EventType)
	}

	return &update, nil
}

// ToRecordUpdate decodes the table-specific payload into the shape the
// conflict resolver consumes. Returns ErrUnknownTable for tables this engine
// does not mirror.
func (u *PushUpdate) ToRecordUpdate() (*RemoteRecordUpdate, error) {
	if !KnownTable(u.Table) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, u.Table)
	}

	data := map[string]interface{}{}
	if len(u.Data) > 0 {
		if err := json.Unmarshal(u.Data, &data); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", u.Table, err)
		}
	}

	id, _ := data["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%s push update missing record id", u.Table)
	}

	// Table-specific required fields, checked at the boundary so downstream
	// code can rely on them.
	switch u.Table {
	case TableWorkoutLogs:
		if userID, _ := data["userId"].(string); userID == "" && u.EventType != PushEventDelete {
			return nil, fmt.Errorf("workoutLogs push update %s missing userId", id)
		}
	}

	actor, _ := data["updatedBy"].(string)

	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &RemoteRecordUpdate{
		Table:     u.Table,
		EventType: u.EventType,
		RecordID:  id,
		Actor:     actor,
		Data:      data,
		Timestamp: ts,
	}, nil
}
