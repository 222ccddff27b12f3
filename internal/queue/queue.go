// Package queue provides the in-memory patient queue service.
//
// Mutations performed while online go straight to the remote API; while
// offline they are recorded as pending actions first and applied to the
// in-memory queue optimistically. Subscribers are notified after every
// successful mutation.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/careflow/patientqueue/internal/errors"
	"github.com/careflow/patientqueue/internal/logging"
	"github.com/careflow/patientqueue/internal/models"
)

// ConnectivitySource reports the last known online status.
type ConnectivitySource interface {
	Online() bool
}

// Remote is the subset of the API client the queue mutates through.
type Remote interface {
	RegisterPatient(ctx context.Context, p models.Patient) error
	UpdatePatient(ctx context.Context, patientID string, update models.UpdatePayload) error
	RemovePatient(ctx context.Context, patientID string) error
	ReorderQueue(ctx context.Context, patientIDs []string) error
}

// ActionRecorder records a mutation for later replay.
type ActionRecorder interface {
	AddPendingAction(ctx context.Context, actionType models.ActionType, payload interface{}) (*models.PendingAction, error)
}

// Service holds the ordered in-memory patient queue.
type Service struct {
	mu           sync.RWMutex
	patients     []*models.Patient
	connectivity ConnectivitySource
	remote       Remote
	recorder     ActionRecorder
	subs         map[int]func([]models.Patient)
	nextSubID    int
}

// New creates a queue Service with its collaborators injected.
func New(connectivity ConnectivitySource, remote Remote, recorder ActionRecorder) *Service {
	return &Service{
		connectivity: connectivity,
		remote:       remote,
		recorder:     recorder,
		subs:         make(map[int]func([]models.Patient)),
	}
}

// Subscribe registers a callback invoked with a snapshot after every
// mutation. The returned function unsubscribes it.
func (s *Service) Subscribe(cb func([]models.Patient)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = cb

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Snapshot returns a copy of the queue in its current order.
func (s *Service) Snapshot() []models.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() []models.Patient {
	out := make([]models.Patient, len(s.patients))
	for i, p := range s.patients {
		out[i] = *p
	}
	return out
}

// notify invokes all subscribers with a fresh snapshot. Callers must not
// hold the lock.
func (s *Service) notify() {
	s.mu.RLock()
	snapshot := s.snapshotLocked()
	cbs := make([]func([]models.Patient), 0, len(s.subs))
	for _, cb := range s.subs {
		cbs = append(cbs, cb)
	}
	s.mu.RUnlock()

	for _, cb := range cbs {
		cb(snapshot)
	}
}

// dispatch sends the mutation to the remote API when online, or records
// it as a pending action when offline. The pending action must be durably
// recorded before the in-memory queue is touched.
func (s *Service) dispatch(ctx context.Context, actionType models.ActionType, payload interface{}, send func(context.Context) error) error {
	if s.connectivity == nil || s.connectivity.Online() {
		return send(ctx)
	}

	if _, err := s.recorder.AddPendingAction(ctx, actionType, payload); err != nil {
		return err
	}

	logging.Debug("queued offline action", map[string]interface{}{"type": string(actionType)})
	return nil
}

// Register checks a new patient into the queue.
func (s *Service) Register(ctx context.Context, name, reason string, priority models.Priority) (*models.Patient, error) {
	if name == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "patient name must not be empty")
	}
	if !priority.Valid() {
		priority = models.PriorityMedium
	}

	patient := models.Patient{
		ID:          models.UUID(uuid.New().String()),
		Name:        name,
		Reason:      reason,
		CheckInTime: time.Now().UTC(),
		Priority:    priority,
		Status:      models.StatusWaiting,
	}

	err := s.dispatch(ctx, models.ActionAdd, models.AddPayload{Patient: patient}, func(ctx context.Context) error {
		return s.remote.RegisterPatient(ctx, patient)
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.patients = append(s.patients, &patient)
	s.mu.Unlock()

	s.notify()
	return &patient, nil
}

// MarkSeen marks a patient as seen by the doctor.
func (s *Service) MarkSeen(ctx context.Context, patientID string) error {
	return s.setStatus(ctx, patientID, models.StatusSeen)
}

// Skip marks a patient as skipped.
func (s *Service) Skip(ctx context.Context, patientID string) error {
	return s.setStatus(ctx, patientID, models.StatusSkipped)
}

func (s *Service) setStatus(ctx context.Context, patientID string, status models.PatientStatus) error {
	if _, ok := s.find(patientID); !ok {
		return apperrors.New(apperrors.ErrNotFound, "patient not in queue")
	}

	update := models.UpdatePayload{PatientID: patientID, Status: &status}
	err := s.dispatch(ctx, models.ActionUpdate, update, func(ctx context.Context) error {
		return s.remote.UpdatePatient(ctx, patientID, update)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, p := range s.patients {
		if p.ID.String() == patientID {
			p.Status = status
			break
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// SetPriority changes a patient's priority.
func (s *Service) SetPriority(ctx context.Context, patientID string, priority models.Priority) error {
	if !priority.Valid() {
		return apperrors.New(apperrors.ErrInvalid, "unknown priority "+string(priority))
	}
	if _, ok := s.find(patientID); !ok {
		return apperrors.New(apperrors.ErrNotFound, "patient not in queue")
	}

	update := models.UpdatePayload{PatientID: patientID, Priority: &priority}
	err := s.dispatch(ctx, models.ActionUpdate, update, func(ctx context.Context) error {
		return s.remote.UpdatePatient(ctx, patientID, update)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, p := range s.patients {
		if p.ID.String() == patientID {
			p.Priority = priority
			break
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// Remove takes a patient out of the queue entirely.
func (s *Service) Remove(ctx context.Context, patientID string) error {
	if _, ok := s.find(patientID); !ok {
		return apperrors.New(apperrors.ErrNotFound, "patient not in queue")
	}

	err := s.dispatch(ctx, models.ActionRemove, models.RemovePayload{PatientID: patientID}, func(ctx context.Context) error {
		return s.remote.RemovePatient(ctx, patientID)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	for i, p := range s.patients {
		if p.ID.String() == patientID {
			s.patients = append(s.patients[:i], s.patients[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// Reorder replaces the queue order. patientIDs must be a permutation of
// the current queue.
func (s *Service) Reorder(ctx context.Context, patientIDs []string) error {
	s.mu.RLock()
	current := make(map[string]*models.Patient, len(s.patients))
	for _, p := range s.patients {
		current[p.ID.String()] = p
	}
	s.mu.RUnlock()

	if len(patientIDs) != len(current) {
		return apperrors.New(apperrors.ErrInvalid, "reorder must include every queued patient")
	}
	for _, id := range patientIDs {
		if _, ok := current[id]; !ok {
			return apperrors.New(apperrors.ErrInvalid, "reorder references unknown patient "+id)
		}
	}

	err := s.dispatch(ctx, models.ActionReorder, models.ReorderPayload{PatientIDs: patientIDs}, func(ctx context.Context) error {
		return s.remote.ReorderQueue(ctx, patientIDs)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	reordered := make([]*models.Patient, 0, len(patientIDs))
	for _, id := range patientIDs {
		reordered = append(reordered, current[id])
	}
	s.patients = reordered
	s.mu.Unlock()

	s.notify()
	return nil
}

// Load replaces the in-memory queue with the given patients, e.g. from an
// initial server fetch. Subscribers are notified.
func (s *Service) Load(patients []models.Patient) {
	s.mu.Lock()
	s.patients = make([]*models.Patient, len(patients))
	for i := range patients {
		p := patients[i]
		s.patients[i] = &p
	}
	s.mu.Unlock()

	s.notify()
}

func (s *Service) find(patientID string) (*models.Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.patients {
		if p.ID.String() == patientID {
			return p, true
		}
	}
	return nil, false
}
