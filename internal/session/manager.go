// Package session keeps interactive dashboard sessions in memory.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docdash/internal/config"
	"docdash/internal/domain"
	"docdash/internal/metrics"
	"docdash/internal/port"
)

// Defaults used when the config leaves limits unset.
const (
	DefaultMaxSessions = 100
	DefaultMaxAge      = 2 * time.Hour
)

// Manager holds sessions keyed by ID. Each session is handed to one
// operation at a time; sessions idle longer than maxAge are dropped.
type Manager struct {
	sessions    map[uuid.UUID]*state
	mu          sync.Mutex
	maxSessions int
	maxAge      time.Duration
	metrics     *metrics.PipelineMetrics
	logger      *zap.Logger
	now         func() time.Time
}

type state struct {
	session      *domain.Session
	busy         bool
	lastAccessed time.Time
}

var _ port.SessionStore = (*Manager)(nil)

// NewManager creates a session manager.
func NewManager(cfg *config.SessionConfig, m *metrics.PipelineMetrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	mgr := &Manager{
		sessions:    make(map[uuid.UUID]*state),
		maxSessions: DefaultMaxSessions,
		maxAge:      DefaultMaxAge,
		metrics:     m,
		logger:      logger.Named("session"),
		now:         time.Now,
	}
	if cfg != nil {
		if cfg.MaxSessions > 0 {
			mgr.maxSessions = cfg.MaxSessions
		}
		if cfg.MaxAge > 0 {
			mgr.maxAge = cfg.MaxAge
		}
	}
	return mgr
}

// Create starts an empty session. At capacity, the least recently used idle
// sessions are evicted first; if every session is busy it fails with
// domain.ErrSessionLimit.
func (m *Manager) Create() (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.maxSessions {
		m.evictLocked(len(m.sessions) - m.maxSessions + 1)
		if len(m.sessions) >= m.maxSessions {
			return nil, domain.ErrSessionLimit
		}
	}

	sess := domain.NewSession()
	m.sessions[sess.ID] = &state{session: sess, lastAccessed: m.now()}
	m.metrics.SetActiveSessions(len(m.sessions))
	m.logger.Debug("session created", zap.String("session_id", sess.ID.String()))
	return sess, nil
}

// Acquire marks the session busy until release is called.
func (m *Manager) Acquire(id uuid.UUID) (*domain.Session, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	if st.busy {
		return nil, nil, domain.ErrSessionBusy
	}
	st.busy = true
	st.lastAccessed = m.now()

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			st.busy = false
			st.lastAccessed = m.now()
			st.session.UpdatedAt = st.lastAccessed
		})
	}
	return st.session, release, nil
}

// Delete removes an idle session.
func (m *Manager) Delete(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if st.busy {
		return domain.ErrSessionBusy
	}
	delete(m.sessions, id)
	m.metrics.SetActiveSessions(len(m.sessions))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CleanupOldSessions drops idle sessions not accessed within maxAge and
// returns how many were removed. Busy sessions are never dropped.
func (m *Manager) CleanupOldSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.maxAge)
	removed := 0
	for id, st := range m.sessions {
		if st.busy || !st.lastAccessed.Before(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed++
		m.logger.Info("cleaned up aged session",
			zap.String("session_id", id.String()),
			zap.Duration("idle", m.now().Sub(st.lastAccessed).Round(time.Second)),
		)
	}
	if removed > 0 {
		m.metrics.SetActiveSessions(len(m.sessions))
	}
	return removed
}

// Run calls CleanupOldSessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupOldSessions()
		}
	}
}

// evictLocked removes up to n idle sessions, least recently used first.
func (m *Manager) evictLocked(n int) {
	idle := make([]uuid.UUID, 0, len(m.sessions))
	for id, st := range m.sessions {
		if !st.busy {
			idle = append(idle, id)
		}
	}
	sort.Slice(idle, func(i, j int) bool {
		return m.sessions[idle[i]].lastAccessed.Before(m.sessions[idle[j]].lastAccessed)
	})
	for i := 0; i < n && i < len(idle); i++ {
		delete(m.sessions, idle[i])
		m.logger.Info("evicted session at capacity", zap.String("session_id", idle[i].String()))
	}
	m.metrics.SetActiveSessions(len(m.sessions))
}
