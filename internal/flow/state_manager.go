package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSessionTTL is the idle time after which a session is treated as empty.
const DefaultSessionTTL = 24 * time.Hour

type session struct {
	state   State
	data    Data
	touched time.Time
}

// InMemoryStateManager is a process-local StateManager. Sessions idle for longer than the TTL read as empty.
type InMemoryStateManager struct {
	mu       sync.Mutex
	sessions map[int64]*session
	ttl      time.Duration
	now      func() time.Time
}

// Compile-time check that InMemoryStateManager implements StateManager.
var _ StateManager = (*InMemoryStateManager)(nil)

// NewInMemoryStateManager creates a state manager. A non-positive ttl disables expiry.
func NewInMemoryStateManager(ttl time.Duration) *InMemoryStateManager {
	slog.Debug("Creating InMemoryStateManager", "ttl", ttl)
	return &InMemoryStateManager{
		sessions: make(map[int64]*session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// live returns the unexpired session for userID, optionally creating it. Caller holds mu.
func (m *InMemoryStateManager) live(userID int64, create bool) *session {
	now := m.now()
	s, ok := m.sessions[userID]
	if ok && m.ttl > 0 && now.Sub(s.touched) > m.ttl {
		slog.Debug("StateManager session expired", "user_id", userID, "state", s.state)
		delete(m.sessions, userID)
		s, ok = nil, false
	}
	if !ok {
		if !create {
			return nil
		}
		s = &session{data: Data{}}
		m.sessions[userID] = s
	}
	s.touched = now
	return s
}

func (m *InMemoryStateManager) State(ctx context.Context, userID int64) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.live(userID, false); s != nil {
		return s.state, nil
	}
	return StateNone, nil
}

func (m *InMemoryStateManager) SetState(ctx context.Context, userID int64, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.live(userID, true)
	if !ValidTransition(s.state, state) {
		slog.Warn("StateManager undeclared transition", "user_id", userID, "from", s.state, "to", state)
	}
	slog.Debug("StateManager SetState", "user_id", userID, "from", s.state, "to", state)
	s.state = state
	return nil
}

func (m *InMemoryStateManager) UpdateData(ctx context.Context, userID int64, partial Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.live(userID, true)
	for k, v := range partial {
		s.data[k] = v
	}
	return nil
}

func (m *InMemoryStateManager) Data(ctx context.Context, userID int64) (Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.live(userID, false); s != nil {
		return s.data.Clone(), nil
	}
	return Data{}, nil
}

func (m *InMemoryStateManager) Clear(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	slog.Debug("StateManager Clear", "user_id", userID)
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (m *InMemoryStateManager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.touched) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Session is a StateManager bound to one user, handed to handlers.
type Session struct {
	m      StateManager
	userID int64
}

// NewSession binds m to userID.
func NewSession(m StateManager, userID int64) *Session {
	return &Session{m: m, userID: userID}
}

// UserID returns the bound user identity.
func (s *Session) UserID() int64 { return s.userID }

func (s *Session) State(ctx context.Context) (State, error) { return s.m.State(ctx, s.userID) }

func (s *Session) Set(ctx context.Context, state State) error {
	return s.m.SetState(ctx, s.userID, state)
}

func (s *Session) Update(ctx context.Context, partial Data) error {
	return s.m.UpdateData(ctx, s.userID, partial)
}

func (s *Session) Data(ctx context.Context) (Data, error) { return s.m.Data(ctx, s.userID) }

func (s *Session) Clear(ctx context.Context) error { return s.m.Clear(ctx, s.userID) }

// Reset clears the session and enters state, as feature entry points do.
func (s *Session) Reset(ctx context.Context, state State) error {
	if err := s.Clear(ctx); err != nil {
		return err
	}
	if state == StateNone {
		return nil
	}
	return s.Set(ctx, state)
}
