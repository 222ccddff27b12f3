// Package syncengine replays pending actions against the remote API once
// connectivity is restored.
package syncengine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/careflow/patientqueue/internal/errors"
	"github.com/careflow/patientqueue/internal/logging"
	"github.com/careflow/patientqueue/internal/models"
)

// Status is the engine's current state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusFailed  Status = "failed"
)

// ActionStore is the subset of the pending-action store the engine drains.
type ActionStore interface {
	ListPendingActions(ctx context.Context) ([]models.PendingAction, error)
	RemovePendingAction(ctx context.Context, id int64) error
}

// Remote is the subset of the API client actions are replayed through.
type Remote interface {
	RegisterPatient(ctx context.Context, p models.Patient) error
	UpdatePatient(ctx context.Context, patientID string, update models.UpdatePayload) error
	RemovePatient(ctx context.Context, patientID string) error
	ReorderQueue(ctx context.Context, patientIDs []string) error
}

// Notifier surfaces sync outcomes to the user. May be nil.
type Notifier interface {
	Add(title, message string, ntype models.NotificationType) models.NotificationRecord
}

// Result summarizes one sync pass.
type Result struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Replayed  int
	Remaining int
	Error     string
}

// Engine drains the pending-action store in FIFO order, one action in
// flight at a time. An action is removed only after its remote call
// succeeds; the first failure halts the pass, leaving the failed and all
// later actions in place for the next trigger.
type Engine struct {
	store  ActionStore
	remote Remote
	feed   Notifier

	mu       sync.Mutex
	status   Status
	syncing  bool
	lastSync time.Time
	lastErr  error
}

// New creates an Engine.
func New(store ActionStore, remote Remote, feed Notifier) *Engine {
	return &Engine{
		store:  store,
		remote: remote,
		feed:   feed,
		status: StatusIdle,
	}
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// LastSync returns the completion time of the last successful pass, or
// the zero time if none succeeded yet.
func (e *Engine) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// LastError returns the error that ended the last pass, if any.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Sync performs one drain pass. A pass already in progress is rejected
// with SYNC_IN_PROGRESS.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}
	e.syncing = true
	e.status = StatusSyncing
	e.lastErr = nil
	e.mu.Unlock()

	result := &Result{StartTime: time.Now()}

	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)

		e.mu.Lock()
		e.syncing = false
		if e.lastErr != nil {
			e.status = StatusFailed
			result.Error = e.lastErr.Error()
		} else {
			e.status = StatusIdle
			e.lastSync = result.EndTime
		}
		e.mu.Unlock()
	}()

	actions, err := e.store.ListPendingActions(ctx)
	if err != nil {
		e.setErr(apperrors.Wrap(apperrors.ErrSyncFailed, "listing pending actions", err))
		return result, e.LastError()
	}

	if len(actions) == 0 {
		return result, nil
	}

	logging.Info("sync pass started", map[string]interface{}{"pending": len(actions)})

	for i, action := range actions {
		select {
		case <-ctx.Done():
			e.setErr(apperrors.Wrap(apperrors.ErrSyncFailed, "sync pass canceled", ctx.Err()))
			result.Remaining = len(actions) - i
			return result, e.LastError()
		default:
		}

		if err := e.replay(ctx, action); err != nil {
			// Halt the pass; this and all later actions stay queued.
			e.setErr(apperrors.Wrap(apperrors.ErrSyncFailed, "replaying action", err))
			result.Remaining = len(actions) - i

			logging.ErrorWithCode("sync pass halted", string(apperrors.ErrSyncFailed), err,
				map[string]interface{}{
					"action_id":   action.ID,
					"action_type": string(action.Type),
					"replayed":    result.Replayed,
					"remaining":   result.Remaining,
				})

			if e.feed != nil {
				e.feed.Add("Sync incomplete",
					"Some offline changes could not be sent. They will be retried automatically.",
					models.NotificationWarning)
			}
			return result, e.LastError()
		}

		if err := e.store.RemovePendingAction(ctx, action.ID); err != nil {
			// The remote call succeeded but the local delete failed; stop
			// here rather than risk replaying later actions out of order
			// next pass.
			e.setErr(apperrors.Wrap(apperrors.ErrSyncFailed, "removing replayed action", err))
			result.Remaining = len(actions) - i
			return result, e.LastError()
		}

		result.Replayed++
	}

	logging.Info("sync pass completed", map[string]interface{}{"replayed": result.Replayed})
	return result, nil
}

func (e *Engine) setErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

// replay dispatches one action to the remote endpoint matching its type.
func (e *Engine) replay(ctx context.Context, action models.PendingAction) error {
	switch action.Type {
	case models.ActionAdd:
		var payload models.AddPayload
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "decoding add payload", err)
		}
		return e.remote.RegisterPatient(ctx, payload.Patient)

	case models.ActionUpdate:
		var payload models.UpdatePayload
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "decoding update payload", err)
		}
		return e.remote.UpdatePatient(ctx, payload.PatientID, payload)

	case models.ActionRemove:
		var payload models.RemovePayload
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "decoding remove payload", err)
		}
		return e.remote.RemovePatient(ctx, payload.PatientID)

	case models.ActionReorder:
		var payload models.ReorderPayload
		if err := json.Unmarshal(action.Payload, &payload); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "decoding reorder payload", err)
		}
		return e.remote.ReorderQueue(ctx, payload.PatientIDs)

	default:
		return apperrors.New(apperrors.ErrInvalid, "unknown action type "+string(action.Type))
	}
}
