// Package flow provides concrete implementations of state management.
package flow

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Alex3496/VetBot/internal/models"
)

// StateManagerOpts holds configuration for the in-memory state manager.
type StateManagerOpts struct {
	IdleTimeout time.Duration
	Clock       func() time.Time
}

// StateManagerOption configures an InMemoryStateManager.
type StateManagerOption func(*StateManagerOpts)

// WithIdleTimeout expires sessions that saw no turn for d. Zero disables expiry.
func WithIdleTimeout(d time.Duration) StateManagerOption {
	return func(o *StateManagerOpts) { o.IdleTimeout = d }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) StateManagerOption {
	return func(o *StateManagerOpts) { o.Clock = clock }
}

type senderLock struct {
	mu   sync.Mutex
	refs int
}

// InMemoryStateManager implements StateManager with process-local maps.
type InMemoryStateManager struct {
	mu          sync.Mutex
	sessions    map[string]*models.Session
	locks       map[string]*senderLock
	idleTimeout time.Duration
	now         func() time.Time
}

// NewInMemoryStateManager creates an empty session store.
func NewInMemoryStateManager(opts ...StateManagerOption) *InMemoryStateManager {
	cfg := StateManagerOpts{Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	slog.Debug("Creating InMemoryStateManager", "idleTimeout", cfg.IdleTimeout)
	return &InMemoryStateManager{
		sessions:    make(map[string]*models.Session),
		locks:       make(map[string]*senderLock),
		idleTimeout: cfg.IdleTimeout,
		now:         cfg.Clock,
	}
}

// expired must be called with m.mu held.
func (m *InMemoryStateManager) expired(s *models.Session, now time.Time) bool {
	return m.idleTimeout > 0 && now.Sub(s.UpdatedAt) >= m.idleTimeout
}

// Get returns a copy of the sender's session. Expired sessions are dropped on read.
func (m *InMemoryStateManager) Get(ctx context.Context, senderID string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[senderID]
	if !ok {
		return nil, nil
	}
	if m.expired(s, m.now()) {
		delete(m.sessions, senderID)
		slog.Debug("StateManager Get dropped idle session", "senderID", senderID, "flow", s.Flow)
		return nil, nil
	}
	return s.Clone(), nil
}

// Start replaces any existing session for the sender.
func (m *InMemoryStateManager) Start(ctx context.Context, senderID string, flow models.FlowType, step models.StateType) (*models.Session, error) {
	if senderID == "" {
		return nil, ErrInvalidSession
	}
	now := m.now()
	s := &models.Session{
		SenderID:  senderID,
		Flow:      flow,
		Step:      step,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	prev, replaced := m.sessions[senderID]
	m.sessions[senderID] = s
	m.mu.Unlock()
	if replaced {
		slog.Debug("StateManager Start replaced session", "senderID", senderID, "previousFlow", prev.Flow, "flow", flow)
	}
	slog.Debug("StateManager Start", "senderID", senderID, "flow", flow, "step", step)
	return s.Clone(), nil
}

// Save stores an updated copy of session and refreshes its idle clock.
func (m *InMemoryStateManager) Save(ctx context.Context, session *models.Session) error {
	if session == nil || session.SenderID == "" {
		return ErrInvalidSession
	}
	c := session.Clone()
	c.UpdatedAt = m.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}
	m.mu.Lock()
	m.sessions[c.SenderID] = c
	m.mu.Unlock()
	slog.Debug("StateManager Save", "senderID", c.SenderID, "flow", c.Flow, "step", c.Step)
	return nil
}

// Reset removes the sender's session.
func (m *InMemoryStateManager) Reset(ctx context.Context, senderID string) error {
	m.mu.Lock()
	_, ok := m.sessions[senderID]
	delete(m.sessions, senderID)
	m.mu.Unlock()
	if ok {
		slog.Debug("StateManager Reset", "senderID", senderID)
	}
	return nil
}

// Lock blocks until no other turn for senderID is running.
func (m *InMemoryStateManager) Lock(senderID string) func() {
	m.mu.Lock()
	l, ok := m.locks[senderID]
	if !ok {
		l = &senderLock{}
		m.locks[senderID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			m.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(m.locks, senderID)
			}
			m.mu.Unlock()
		})
	}
}

// Sweep drops idle sessions.
func (m *InMemoryStateManager) Sweep(now time.Time) int {
	if m.idleTimeout <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			dropped++
		}
	}
	if dropped > 0 {
		slog.Info("StateManager Sweep dropped idle sessions", "count", dropped, "remaining", len(m.sessions))
	}
	return dropped
}

// List returns all sessions ordered by sender id.
func (m *InMemoryStateManager) List(ctx context.Context) ([]models.Session, error) {
	m.mu.Lock()
	out := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SenderID < out[j].SenderID })
	return out, nil
}
