package sfu

import (
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/pion/ion-ortc/pkg/stats"
)

const summaryDelay = 2 * time.Second

// SessionManager maps connection ids to sessions.
type SessionManager struct {
	mc *MediaContext

	mu       sync.RWMutex
	sessions map[string]*Session

	debounced func(f func())
}

// NewSessionManager returns a manager creating sessions on mc.
func NewSessionManager(mc *MediaContext) *SessionManager {
	return &SessionManager{
		mc:        mc,
		sessions:  make(map[string]*Session),
		debounced: debounce.New(summaryDelay),
	}
}

// OnConnect creates the session of a new connection. Notifications for the
// connection are sent through n.
func (m *SessionManager) OnConnect(connectionID string, n Notifier) (*Session, error) {
	m.mu.Lock()
	if _, ok := m.sessions[connectionID]; ok {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	s := newSession(connectionID, m.mc, n)
	s.broadcast = m.broadcast
	m.sessions[connectionID] = s
	s.setState(SessionActive)
	m.mu.Unlock()

	stats.Sessions.Inc()
	Logger.V(0).Info("session connected", "session_id", connectionID)
	m.debounced(m.logSummary)
	return s, nil
}

// OnDisconnect closes the session of a connection. It is idempotent.
func (m *SessionManager) OnDisconnect(connectionID string) {
	m.mu.RLock()
	s, ok := m.sessions[connectionID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.close()

	m.mu.Lock()
	if cur, ok := m.sessions[connectionID]; ok && cur == s {
		delete(m.sessions, connectionID)
		stats.Sessions.Dec()
	}
	m.mu.Unlock()
	m.debounced(m.logSummary)
}

// GetSession returns the session of a connection, or nil.
func (m *SessionManager) GetSession(connectionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[connectionID]
}

// Sessions returns the live sessions.
func (m *SessionManager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Close disconnects every session.
func (m *SessionManager) Close() {
	var wg sync.WaitGroup
	for _, s := range m.Sessions() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m.OnDisconnect(id)
		}(s.ID())
	}
	wg.Wait()
}

func (m *SessionManager) broadcast(from, method string, params interface{}) {
	for _, s := range m.Sessions() {
		if s.ID() == from {
			continue
		}
		s.notify(method, params)
	}
}

func (m *SessionManager) logSummary() {
	var transports, producers, consumers int
	sessions := m.Sessions()
	for _, s := range sessions {
		t, p, c := s.Counts()
		transports += t
		producers += p
		consumers += c
	}
	Logger.V(0).Info("sessions", "sessions", len(sessions), "transports", transports,
		"producers", producers, "consumers", consumers, "registered_producers", m.mc.producers.len())
}
