package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atendai/zapagent/internal/domain"
)

// clientEventBuffer bounds the per-session callback queue. Events keep
// their delivery order while the session is live; events arriving after a
// terminal transition are dropped.
const clientEventBuffer = 32

type liveSession struct {
	state  domain.Session
	client ProtocolClient
	events chan ClientEvent
	closed bool
}

// Manager owns the session table: at most one live session per user ID at
// any instant. All access goes through StartAuth, Logout and Lookup.
type Manager struct {
	factory ClientFactory

	mu       sync.Mutex
	sessions map[string]*liveSession

	subMu       sync.Mutex
	subscribers map[chan domain.Event]struct{}
}

// NewManager creates a session manager using the given client factory.
func NewManager(factory ClientFactory) *Manager {
	return &Manager{
		factory:     factory,
		sessions:    make(map[string]*liveSession),
		subscribers: make(map[chan domain.Event]struct{}),
	}
}

// StartAuth begins authentication for userID. If a session already exists
// the call is a no-op: two protocol clients must never coexist for one
// identity, since they race over the same credential slot. Initialization
// failures are returned synchronously and leave no session behind.
func (m *Manager) StartAuth(ctx context.Context, userID string) error {
	m.mu.Lock()
	if _, exists := m.sessions[userID]; exists {
		m.mu.Unlock()
		slog.Info("session: start-auth ignored, session already exists", "user_id", userID)
		return nil
	}
	ls := &liveSession{
		state: domain.Session{
			UserID:    userID,
			State:     domain.StateInitializing,
			StartedAt: time.Now(),
		},
		events: make(chan ClientEvent, clientEventBuffer),
	}
	m.sessions[userID] = ls
	m.mu.Unlock()

	client, err := m.factory.New(userID, func(ev ClientEvent) {
		m.deliver(userID, ls, ev)
	})
	if err != nil {
		m.remove(userID, ls)
		return fmt.Errorf("create protocol client: %w", err)
	}

	m.mu.Lock()
	ls.client = client
	m.mu.Unlock()

	go m.run(userID, ls)

	if err := client.Connect(ctx); err != nil {
		m.remove(userID, ls)
		return fmt.Errorf("connect protocol client: %w", err)
	}

	// A concurrent Logout may have removed the entry while the factory and
	// connect ran outside the lock. The fresh client must not survive it:
	// left untracked it would coexist with the next StartAuth's client on
	// the same credential slot.
	m.mu.Lock()
	current := m.sessions[userID] == ls
	m.mu.Unlock()
	if !current {
		if err := client.Logout(ctx); err != nil {
			slog.Warn("session: teardown of client orphaned by logout failed", "user_id", userID, "error", err)
		}
		return fmt.Errorf("session for user %s was logged out during initialization", userID)
	}

	slog.Info("session: authentication started", "user_id", userID)
	return nil
}

// Logout invalidates the credential and destroys the session. It is
// unconditionally successful from the caller's perspective: provider-side
// failures are logged, local state is always cleared.
func (m *Manager) Logout(ctx context.Context, userID string) {
	m.mu.Lock()
	ls, exists := m.sessions[userID]
	m.mu.Unlock()
	if !exists {
		return
	}

	if ls.client != nil {
		if err := ls.client.Logout(ctx); err != nil {
			slog.Warn("session: provider logout failed", "user_id", userID, "error", err)
		}
	}

	m.remove(userID, ls)
	m.publish(domain.Event{
		Kind:   domain.EventSessionDisconnected,
		UserID: userID,
		Reason: "logout",
	})
	slog.Info("session: logged out", "user_id", userID)
}

// Lookup returns a snapshot of the session for userID.
func (m *Manager) Lookup(userID string) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ls, exists := m.sessions[userID]
	if !exists {
		return domain.Session{}, false
	}
	return ls.state, true
}

// Send delivers a text message through userID's authenticated session.
func (m *Manager) Send(ctx context.Context, userID, to, text string) error {
	m.mu.Lock()
	ls, exists := m.sessions[userID]
	var client ProtocolClient
	var state domain.SessionState
	if exists {
		client = ls.client
		state = ls.state.State
	}
	m.mu.Unlock()

	if !exists || client == nil {
		return fmt.Errorf("no session for user %s", userID)
	}
	if state != domain.StateAuthenticated {
		return fmt.Errorf("session for user %s is %s, not authenticated", userID, state)
	}
	return client.Send(ctx, to, text)
}

// Subscribe registers an event listener. The returned cancel func must be
// called to release it. Slow subscribers drop events rather than block
// session processing.
func (m *Manager) Subscribe() (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, clientEventBuffer)
	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		delete(m.subscribers, ch)
		m.subMu.Unlock()
	}
	return ch, cancel
}

// deliver queues a client callback for in-order processing. The queue is
// written under the table lock so it is never raced with removal; events
// arriving after the session reached a terminal state are dropped.
func (m *Manager) deliver(userID string, ls *liveSession, ev ClientEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ls.closed {
		slog.Debug("session: dropping event after terminal state", "user_id", userID)
		return
	}
	select {
	case ls.events <- ev:
	default:
		slog.Warn("session: event queue full, dropping event", "user_id", userID)
	}
}

// run applies client events to the session state machine, one at a time,
// in delivery order. It exits on a terminal transition.
func (m *Manager) run(userID string, ls *liveSession) {
	for ev := range ls.events {
		switch v := ev.(type) {
		case QRCode:
			m.transition(ls, func(s *domain.Session) {
				s.State = domain.StateAwaitingScan
				s.QRPayload = v.Code
			})
			m.publish(domain.Event{Kind: domain.EventQRIssued, UserID: userID, QR: v.Code})
			slog.Info("session: qr issued", "user_id", userID)

		case Ready:
			m.transition(ls, func(s *domain.Session) {
				s.State = domain.StateAuthenticated
				s.QRPayload = ""
			})
			m.publish(domain.Event{Kind: domain.EventSessionReady, UserID: userID})
			slog.Info("session: authenticated", "user_id", userID)

		case Disconnected:
			m.transition(ls, func(s *domain.Session) {
				s.State = domain.StateDisconnected
				s.LastError = v.Reason
			})
			m.publish(domain.Event{Kind: domain.EventSessionDisconnected, UserID: userID, Reason: v.Reason})
			m.remove(userID, ls)
			slog.Info("session: disconnected", "user_id", userID, "reason", v.Reason)
			return

		case AuthFailed:
			m.transition(ls, func(s *domain.Session) {
				s.State = domain.StateAuthFailed
				s.LastError = v.Message
			})
			m.publish(domain.Event{Kind: domain.EventAuthFailed, UserID: userID, Msg: v.Message})
			m.remove(userID, ls)
			slog.Warn("session: authentication failed", "user_id", userID, "message", v.Message)
			return
		}
	}
}

func (m *Manager) transition(ls *liveSession, apply func(*domain.Session)) {
	m.mu.Lock()
	apply(&ls.state)
	m.mu.Unlock()
}

// remove closes the given session's queue and drops its table entry. The
// pointer check keeps a stale goroutine from tearing down a successor
// session registered under the same user ID.
func (m *Manager) remove(userID string, ls *liveSession) {
	m.mu.Lock()
	if !ls.closed {
		ls.closed = true
		close(ls.events)
	}
	if cur, exists := m.sessions[userID]; exists && cur == ls {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
}

func (m *Manager) publish(ev domain.Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			slog.Warn("session: subscriber slow, dropping event", "user_id", ev.UserID, "kind", string(ev.Kind))
		}
	}
}
