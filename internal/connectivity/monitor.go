// Package connectivity tracks whether the remote API is reachable and
// drives sync triggers on online transitions.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/careflow/patientqueue/internal/logging"
)

// Probe checks reachability of the remote API. A nil return means online.
type Probe func(ctx context.Context) error

// Monitor derives an online/offline status from periodic probes (an
// explicit override is available for callers and tests), notifies
// subscribed listeners on every transition, and triggers the sync
// callback exactly once per offline-to-online transition. A periodic
// fallback sync timer can be started independently.
type Monitor struct {
	probe         Probe
	probeInterval time.Duration
	probeTimeout  time.Duration
	syncFn        func()

	mu         sync.Mutex
	online     bool
	listeners  map[int]func(bool)
	nextID     int
	stopCh     chan struct{}
	running    bool
	wg         sync.WaitGroup
	syncTicker *time.Ticker
	syncStopCh chan struct{}
}

// New creates a Monitor. syncFn is invoked (in its own goroutine) on every
// offline-to-online transition and on periodic-sync ticks; it may be nil.
func New(probe Probe, probeInterval time.Duration, syncFn func()) *Monitor {
	if probeInterval <= 0 {
		probeInterval = 15 * time.Second
	}

	return &Monitor{
		probe:         probe,
		probeInterval: probeInterval,
		probeTimeout:  probeInterval,
		syncFn:        syncFn,
		online:        true, // Assume online until a probe says otherwise.
		listeners:     make(map[int]func(bool)),
	}
}

// Start begins the probe loop. It is idempotent.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running || m.probe == nil {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx)

	logging.Info("connectivity monitor started", map[string]interface{}{
		"probe_interval": m.probeInterval.String(),
	})
}

// Stop halts the probe loop and the periodic sync timer and waits for
// them to finish.
func (m *Monitor) Stop() {
	m.StopPeriodicSync()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()

	logging.Info("connectivity monitor stopped", nil)
}

// Online returns the last known status.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a listener invoked with the new status on every
// transition. The returned function unsubscribes it.
func (m *Monitor) Subscribe(cb func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = cb

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// SetOnline overrides the status explicitly, applying the same transition
// handling as a probe result.
func (m *Monitor) SetOnline(online bool) {
	m.setStatus(online)
}

// StartPeriodicSync begins invoking the sync callback on a fixed interval
// as a fallback to transition-driven syncing. It is idempotent.
func (m *Monitor) StartPeriodicSync(interval time.Duration) {
	if interval <= 0 || m.syncFn == nil {
		return
	}

	m.mu.Lock()
	if m.syncTicker != nil {
		m.mu.Unlock()
		return
	}
	ticker := time.NewTicker(interval)
	stopCh := make(chan struct{})
	m.syncTicker = ticker
	m.syncStopCh = stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				if m.Online() {
					m.syncFn()
				}
			}
		}
	}()

	logging.Info("periodic sync started", map[string]interface{}{
		"interval": interval.String(),
	})
}

// StopPeriodicSync cancels the periodic sync timer.
func (m *Monitor) StopPeriodicSync() {
	m.mu.Lock()
	if m.syncTicker == nil {
		m.mu.Unlock()
		return
	}
	m.syncTicker.Stop()
	close(m.syncStopCh)
	m.syncTicker = nil
	m.syncStopCh = nil
	m.mu.Unlock()
}

// probeLoop probes on each tick and folds the result into the status.
func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	// Probe once immediately so startup does not wait a full interval.
	m.runProbe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runProbe(ctx)
		}
	}
}

func (m *Monitor) runProbe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	err := m.probe(probeCtx)
	m.setStatus(err == nil)
}

// setStatus applies a transition: listeners fire on change, and an
// offline-to-online transition triggers the sync callback once.
func (m *Monitor) setStatus(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	if wasOnline == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	cbs := make([]func(bool), 0, len(m.listeners))
	for _, cb := range m.listeners {
		cbs = append(cbs, cb)
	}
	m.mu.Unlock()

	logging.Info("connectivity status changed", map[string]interface{}{
		"was_online": wasOnline,
		"is_online":  online,
	})

	for _, cb := range cbs {
		cb(online)
	}

	if online && m.syncFn != nil {
		go m.syncFn()
	}
}
