// Package models provides data model definitions for the patient queue core.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case string:
		*u = UUID(v)
	case []byte:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Priority represents how urgently a patient should be seen.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// PatientStatus represents a patient's position in the visit lifecycle.
type PatientStatus string

const (
	StatusWaiting PatientStatus = "waiting"
	StatusSeen    PatientStatus = "seen"
	StatusSkipped PatientStatus = "skipped"
)

// Valid reports whether s is a known status.
func (s PatientStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusSeen, StatusSkipped:
		return true
	}
	return false
}

// Patient represents one entry in the waiting-room queue.
type Patient struct {
	ID          UUID          `db:"id" json:"id"`
	Name        string        `db:"name" json:"name"`
	Reason      string        `db:"reason" json:"reason"`
	CheckInTime time.Time     `db:"check_in_time" json:"check_in_time"`
	Priority    Priority      `db:"priority" json:"priority"`
	Status      PatientStatus `db:"status" json:"status"`
}
