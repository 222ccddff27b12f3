// Package notify provides the session-local notification feed and the
// reconnecting WebSocket push client that feeds it.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/careflow/patientqueue/internal/errors"
	"github.com/careflow/patientqueue/internal/models"
)

// Feed is an append-only, session-scoped list of notification records.
// Only the read flag is mutable after append.
type Feed struct {
	mu      sync.RWMutex
	records []models.NotificationRecord
	subs    map[int]func(models.NotificationRecord)
	nextSub int
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		subs: make(map[int]func(models.NotificationRecord)),
	}
}

// Add appends a new unread record and notifies subscribers.
func (f *Feed) Add(title, message string, ntype models.NotificationType) models.NotificationRecord {
	if !ntype.Valid() {
		ntype = models.NotificationInfo
	}

	record := models.NotificationRecord{
		ID:        models.UUID(uuid.New().String()),
		Title:     title,
		Message:   message,
		Type:      ntype,
		Timestamp: time.Now().UTC(),
	}

	f.mu.Lock()
	f.records = append(f.records, record)
	cbs := make([]func(models.NotificationRecord), 0, len(f.subs))
	for _, cb := range f.subs {
		cbs = append(cbs, cb)
	}
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(record)
	}

	return record
}

// Subscribe registers a callback invoked with every appended record. The
// returned function unsubscribes it.
func (f *Feed) Subscribe(cb func(models.NotificationRecord)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextSub
	f.nextSub++
	f.subs[id] = cb

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// List returns all records in append order.
func (f *Feed) List() []models.NotificationRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]models.NotificationRecord, len(f.records))
	copy(out, f.records)
	return out
}

// MarkRead flags one record as read.
func (f *Feed) MarkRead(id models.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].Read = true
			return nil
		}
	}
	return apperrors.New(apperrors.ErrNotFound, "no notification with that id")
}

// MarkAllRead flags every record as read.
func (f *Feed) MarkAllRead() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.records {
		f.records[i].Read = true
	}
}

// UnreadCount returns how many records are unread.
func (f *Feed) UnreadCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	count := 0
	for i := range f.records {
		if !f.records[i].Read {
			count++
		}
	}
	return count
}
