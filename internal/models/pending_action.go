package models

import "encoding/json"

// ActionType identifies the remote call a pending action replays.
type ActionType string

const (
	ActionAdd     ActionType = "add"
	ActionUpdate  ActionType = "update"
	ActionRemove  ActionType = "remove"
	ActionReorder ActionType = "reorder"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionAdd, ActionUpdate, ActionRemove, ActionReorder:
		return true
	}
	return false
}

// PendingAction represents a queue mutation recorded while offline,
// awaiting replay against the remote API.
type PendingAction struct {
	ID        int64           `db:"id" json:"id"`
	Type      ActionType      `db:"type" json:"type"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Timestamp int64           `db:"timestamp" json:"timestamp"`
}

// TableName returns the table name for PendingAction.
func (PendingAction) TableName() string {
	return "pending_actions"
}

// AddPayload is the payload for an ActionAdd entry.
type AddPayload struct {
	Patient Patient `json:"patient"`
}

// UpdatePayload is the payload for an ActionUpdate entry. Nil fields
// are left untouched on the server.
type UpdatePayload struct {
	PatientID string         `json:"patient_id"`
	Status    *PatientStatus `json:"status,omitempty"`
	Priority  *Priority      `json:"priority,omitempty"`
}

// RemovePayload is the payload for an ActionRemove entry.
type RemovePayload struct {
	PatientID string `json:"patient_id"`
}

// ReorderPayload is the payload for an ActionReorder entry. PatientIDs
// holds the full queue in its new order.
type ReorderPayload struct {
	PatientIDs []string `json:"patient_ids"`
}
