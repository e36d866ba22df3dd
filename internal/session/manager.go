package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hperssn/gridcheck/internal/camera"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Builder creates the controller for a new session around its frame source.
type Builder func(cam Camera) (*Controller, error)

// Entry is one hosted session: the controller plus the frames its client
// pushes.
type Entry struct {
	ID         string
	Controller *Controller
	Frames     *camera.FrameBuffer
	CreatedAt  time.Time
}

type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Entry

	build Builder
	ttl   time.Duration
	log   *zap.Logger
}

func NewManager(build Builder, ttl time.Duration, log *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Entry),
		build:    build,
		ttl:      ttl,
		log:      log,
	}
}

// Create starts a session. An empty id gets a generated one.
func (m *Manager) Create(id string) (*Entry, error) {
	if id == "" {
		id = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; exists {
		return nil, ErrSessionExists
	}

	frames := camera.NewFrameBuffer()
	ctrl, err := m.build(frames)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		ID:         id,
		Controller: ctrl,
		Frames:     frames,
		CreatedAt:  time.Now(),
	}
	m.sessions[id] = e

	m.log.Info("session started", zap.String("session", id))
	return e, nil
}

// Get looks a session up and counts the lookup as activity.
func (m *Manager) Get(id string) (*Entry, bool) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()

	if ok {
		e.Controller.Touch()
	}
	return e, ok
}

// Remove tears the session down and forgets it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	e.Controller.Close()
	m.log.Info("session removed", zap.String("session", id))
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run sweeps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.Sweep(now)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep closes sessions with no activity since now minus the TTL and
// returns how many it removed. Sessions with an open subscription are kept.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.ttl)

	m.mu.Lock()
	var stale []*Entry
	for id, e := range m.sessions {
		if e.Controller.Subscribers() == 0 && e.Controller.LastActive().Before(cutoff) {
			stale = append(stale, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		e.Controller.Close()
		m.log.Info("session expired", zap.String("session", e.ID))
	}
	return len(stale)
}

// Close tears down every session.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := make([]*Entry, 0, len(m.sessions))
	for id, e := range m.sessions {
		entries = append(entries, e)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.Controller.Close()
	}
}
