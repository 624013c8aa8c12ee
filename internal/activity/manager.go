package activity

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"backend-runlink/internal/filter"
	"backend-runlink/internal/motion"
	"backend-runlink/internal/queue"
	"backend-runlink/internal/session"
	"backend-runlink/internal/stream"
	"backend-runlink/internal/syncer"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotOwner        = errors.New("session owned by another runner")
)

// Manager owns the live tracking sessions of this instance and hands
// finished records to the durable queue. Each session has a single logical
// owner (the authenticated runner); the manager only routes calls, the
// session serializes them.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	splitUnitM float64
	queue      *queue.Queue
	sync       *syncer.Coordinator
	hub        *stream.Hub
}

func NewManager(splitUnitM float64, q *queue.Queue, coord *syncer.Coordinator, hub *stream.Hub) *Manager {
	return &Manager{
		sessions:   map[string]*session.Session{},
		splitUnitM: splitUnitM,
		queue:      q,
		sync:       coord,
		hub:        hub,
	}
}

// StartSession creates and starts a session owned by runnerID.
func (m *Manager) StartSession(runnerID string) (session.Snapshot, error) {
	sess := session.New(session.Config{
		RunnerID:   runnerID,
		SplitUnitM: m.splitUnitM,
		Observer:   &hubObserver{hub: m.hub},
	})
	if err := sess.Start(); err != nil {
		return session.Snapshot{}, err
	}

	m.mu.Lock()
	m.sessions[sess.ID()] = sess
	m.mu.Unlock()

	return sess.Snapshot(), nil
}

// AddFix routes one raw fix to the session. Malformed fixes are dropped by
// the filter, fixes outside Active are dropped by the session; neither is
// an error here.
func (m *Manager) AddFix(sessionID, runnerID string, raw filter.RawFix) error {
	sess, err := m.owned(sessionID, runnerID)
	if err != nil {
		return err
	}
	sess.AddFix(raw)
	return nil
}

func (m *Manager) Pause(sessionID, runnerID string) error {
	sess, err := m.owned(sessionID, runnerID)
	if err != nil {
		return err
	}
	return sess.Pause()
}

func (m *Manager) Resume(sessionID, runnerID string) error {
	sess, err := m.owned(sessionID, runnerID)
	if err != nil {
		return err
	}
	return sess.Resume()
}

// Stop finalizes the session, durably enqueues the record, then kicks an
// asynchronous drain. The record counts as saved once Enqueue confirms;
// publication failing forever cannot lose it. The session is dropped from
// the live set once the record is durable, so snapshot lookups 404 after a
// stop and the map cannot grow with dead sessions.
func (m *Manager) Stop(ctx context.Context, sessionID, runnerID string, createdOffline bool) (session.Record, error) {
	sess, err := m.owned(sessionID, runnerID)
	if err != nil {
		return session.Record{}, err
	}

	rec, err := sess.Stop(createdOffline)
	if err != nil {
		return session.Record{}, err
	}

	if err := m.queue.Enqueue(ctx, rec); err != nil {
		return session.Record{}, err
	}

	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	go func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := m.sync.Drain(drainCtx); err != nil {
			log.Printf("post-stop drain: %v", err)
		}
	}()

	return rec, nil
}

func (m *Manager) Snapshot(sessionID string) (session.Snapshot, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return session.Snapshot{}, ErrSessionNotFound
	}
	return sess.Snapshot(), nil
}

// Sync drains the offline queue on demand.
func (m *Manager) Sync(ctx context.Context) (syncer.Report, error) {
	return m.sync.Drain(ctx)
}

// Pending lists the queued records awaiting publication.
func (m *Manager) Pending(ctx context.Context) ([]queue.Entry, error) {
	return m.queue.PeekPending(ctx)
}

func (m *Manager) owned(sessionID, runnerID string) (*session.Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.RunnerID() != runnerID {
		return nil, ErrNotOwner
	}
	return sess, nil
}

// hubObserver pushes live stats to the stream hub. Payload marshalling
// happens here, off the session's hot path only in the sense that a nil
// hub costs nothing.
type hubObserver struct {
	hub *stream.Hub
}

func (o *hubObserver) OnTransition(sessionID string, from, to session.State) {
	if o.hub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"type": "transition", "from": from, "to": to})
	o.hub.Broadcast(sessionID, payload)
}

func (o *hubObserver) OnSplit(sessionID string, sp motion.Split) {
	if o.hub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"type": "split", "split": sp})
	o.hub.Broadcast(sessionID, payload)
}

func (o *hubObserver) OnFix(sessionID string, snap session.Snapshot) {
	if o.hub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"type": "stats", "stats": snap})
	o.hub.Broadcast(sessionID, payload)
}
