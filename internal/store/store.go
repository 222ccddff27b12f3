// Package store provides the durable local queue of pending actions,
// backed by SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	apperrors "github.com/careflow/patientqueue/internal/errors"
	"github.com/careflow/patientqueue/internal/models"
)

// Store persists pending actions across process restarts. All methods are
// safe for concurrent use; SQLite serializes writers.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if necessary) the pending-action database inside
// dataDir. The database is opened with WAL mode and foreign keys enabled,
// and pending migrations are applied. Failures are reported as
// STORE_OPEN_FAILED so callers can distinguish initialization errors from
// later operation errors.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreOpen, "creating data directory", err)
	}

	dbPath := filepath.Join(dataDir, "patientqueue.db")

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreOpen, "opening database", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStoreOpen, "enabling WAL mode", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStoreOpen, "enabling foreign keys", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrStoreOpen, "running migrations", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddPendingAction appends an action of the given type with the given
// payload. The payload is marshaled to JSON and the timestamp is generated
// here. Returns the stored action with its assigned id.
func (s *Store) AddPendingAction(ctx context.Context, actionType models.ActionType, payload interface{}) (*models.PendingAction, error) {
	if !actionType.Valid() {
		return nil, apperrors.New(apperrors.ErrInvalid, "unknown action type "+string(actionType))
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "marshaling action payload", err)
	}

	action := &models.PendingAction{
		Type:      actionType,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO pending_actions (type, payload, timestamp) VALUES (?, ?, ?)",
		action.Type, string(action.Payload), action.Timestamp,
	)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "inserting pending action", err)
	}

	action.ID, err = res.LastInsertId()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "reading inserted id", err)
	}

	return action, nil
}

// ListPendingActions returns all stored actions in insertion order.
func (s *Store) ListPendingActions(ctx context.Context) ([]models.PendingAction, error) {
	var actions []models.PendingAction
	err := s.db.SelectContext(ctx, &actions,
		"SELECT id, type, payload, timestamp FROM pending_actions ORDER BY id")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "listing pending actions", err)
	}
	return actions, nil
}

// CountPendingActions returns the number of stored actions.
func (s *Store) CountPendingActions(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM pending_actions")
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStore, "counting pending actions", err)
	}
	return count, nil
}

// RemovePendingAction deletes one action by id. A missing id is reported
// as ACTION_NOT_FOUND, distinct from storage failures.
func (s *Store) RemovePendingAction(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pending_actions WHERE id = ?", id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "deleting pending action", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "reading rows affected", err)
	}
	if affected == 0 {
		return apperrors.New(apperrors.ErrActionNotFound, "no pending action with that id")
	}

	return nil
}

// ClearPendingActions empties the store.
func (s *Store) ClearPendingActions(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pending_actions"); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "clearing pending actions", err)
	}
	return nil
}

// GetPendingAction returns one action by id.
func (s *Store) GetPendingAction(ctx context.Context, id int64) (*models.PendingAction, error) {
	var action models.PendingAction
	err := s.db.GetContext(ctx, &action,
		"SELECT id, type, payload, timestamp FROM pending_actions WHERE id = ?", id)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrActionNotFound, "no pending action with that id")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "getting pending action", err)
	}
	return &action, nil
}
