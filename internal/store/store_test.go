// Package store provides unit tests for the pending-action store.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/careflow/patientqueue/internal/errors"
	"github.com/careflow/patientqueue/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestAddPendingAction tests appending an action.
func TestAddPendingAction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	action, err := s.AddPendingAction(ctx, models.ActionUpdate, models.UpdatePayload{PatientID: "123"})
	if err != nil {
		t.Fatalf("AddPendingAction failed: %v", err)
	}

	if action.ID == 0 {
		t.Error("Expected assigned id")
	}
	if action.Type != models.ActionUpdate {
		t.Errorf("Type = %s, want update", action.Type)
	}
	if action.Timestamp == 0 {
		t.Error("Expected generated timestamp")
	}

	var payload models.UpdatePayload
	if err := json.Unmarshal(action.Payload, &payload); err != nil {
		t.Fatalf("Payload is not valid JSON: %v", err)
	}
	if payload.PatientID != "123" {
		t.Errorf("PatientID = %s, want 123", payload.PatientID)
	}
}

// TestAddPendingAction_invalidType rejects unknown action types.
func TestAddPendingAction_invalidType(t *testing.T) {
	s := openTestStore(t)

	_, err := s.AddPendingAction(context.Background(), models.ActionType("upload"), nil)
	if !apperrors.Is(err, apperrors.ErrInvalid) {
		t.Errorf("Expected INVALID_INPUT, got %v", err)
	}
}

// TestListPendingActions_insertionOrder verifies insertion order is kept.
// Scenario from the offline flow: an update for patient 123 followed by a
// remove for patient 456 must come back as two entries in that order.
func TestListPendingActions_insertionOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AddPendingAction(ctx, models.ActionUpdate, models.UpdatePayload{PatientID: "123"}); err != nil {
		t.Fatalf("AddPendingAction failed: %v", err)
	}
	if _, err := s.AddPendingAction(ctx, models.ActionRemove, models.RemovePayload{PatientID: "456"}); err != nil {
		t.Fatalf("AddPendingAction failed: %v", err)
	}

	actions, err := s.ListPendingActions(ctx)
	if err != nil {
		t.Fatalf("ListPendingActions failed: %v", err)
	}

	if len(actions) != 2 {
		t.Fatalf("Expected 2 actions, got %d", len(actions))
	}
	if actions[0].Type != models.ActionUpdate {
		t.Errorf("First action = %s, want update", actions[0].Type)
	}
	if actions[1].Type != models.ActionRemove {
		t.Errorf("Second action = %s, want remove", actions[1].Type)
	}
	if actions[0].ID >= actions[1].ID {
		t.Errorf("IDs not ascending: %d, %d", actions[0].ID, actions[1].ID)
	}
}

// TestRemovePendingAction tests deleting one entry.
func TestRemovePendingAction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	action, err := s.AddPendingAction(ctx, models.ActionRemove, models.RemovePayload{PatientID: "456"})
	if err != nil {
		t.Fatalf("AddPendingAction failed: %v", err)
	}

	if err := s.RemovePendingAction(ctx, action.ID); err != nil {
		t.Fatalf("RemovePendingAction failed: %v", err)
	}

	count, err := s.CountPendingActions(ctx)
	if err != nil {
		t.Fatalf("CountPendingActions failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty store, got %d entries", count)
	}
}

// TestRemovePendingAction_missing distinguishes not-found from store errors.
func TestRemovePendingAction_missing(t *testing.T) {
	s := openTestStore(t)

	err := s.RemovePendingAction(context.Background(), 999)
	if !apperrors.Is(err, apperrors.ErrActionNotFound) {
		t.Errorf("Expected ACTION_NOT_FOUND, got %v", err)
	}
}

// TestClearPendingActions empties the store.
func TestClearPendingActions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.AddPendingAction(ctx, models.ActionAdd, models.AddPayload{}); err != nil {
			t.Fatalf("AddPendingAction failed: %v", err)
		}
	}

	if err := s.ClearPendingActions(ctx); err != nil {
		t.Fatalf("ClearPendingActions failed: %v", err)
	}

	actions, err := s.ListPendingActions(ctx)
	if err != nil {
		t.Fatalf("ListPendingActions failed: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("Expected empty store, got %d entries", len(actions))
	}
}

// TestGetPendingAction tests fetching one entry by id.
func TestGetPendingAction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	added, err := s.AddPendingAction(ctx, models.ActionReorder, models.ReorderPayload{PatientIDs: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("AddPendingAction failed: %v", err)
	}

	got, err := s.GetPendingAction(ctx, added.ID)
	if err != nil {
		t.Fatalf("GetPendingAction failed: %v", err)
	}
	if got.Type != models.ActionReorder {
		t.Errorf("Type = %s, want reorder", got.Type)
	}

	if _, err := s.GetPendingAction(ctx, added.ID+100); !apperrors.Is(err, apperrors.ErrActionNotFound) {
		t.Errorf("Expected ACTION_NOT_FOUND, got %v", err)
	}
}

// TestOpen_reopenKeepsActions verifies durability across reopen.
func TestOpen_reopenKeepsActions(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := s.AddPendingAction(ctx, models.ActionAdd, models.AddPayload{}); err != nil {
		t.Fatalf("AddPendingAction failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	actions, err := reopened.ListPendingActions(ctx)
	if err != nil {
		t.Fatalf("ListPendingActions failed: %v", err)
	}
	if len(actions) != 1 {
		t.Errorf("Expected 1 action after reopen, got %d", len(actions))
	}
}

// TestOpen_badDataDir surfaces initialization failures distinctly.
func TestOpen_badDataDir(t *testing.T) {
	dir := t.TempDir()
	// A file where the data directory should be.
	path := filepath.Join(dir, "occupied")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("Preparing fixture failed: %v", err)
	}

	_, err := Open(path)
	if !apperrors.Is(err, apperrors.ErrStoreOpen) {
		t.Errorf("Expected STORE_OPEN_FAILED, got %v", err)
	}
}
