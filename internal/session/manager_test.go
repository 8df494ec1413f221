package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atendai/zapagent/internal/domain"
)

type fakeClient struct {
	mu         sync.Mutex
	connectErr error
	logoutErr  error
	loggedOut  bool
	sent       [][2]string
}

func (c *fakeClient) Connect(ctx context.Context) error {
	return c.connectErr
}

func (c *fakeClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	c.loggedOut = true
	c.mu.Unlock()
	return c.logoutErr
}

func (c *fakeClient) Send(ctx context.Context, to, text string) error {
	c.mu.Lock()
	c.sent = append(c.sent, [2]string{to, text})
	c.mu.Unlock()
	return nil
}

type fakeFactory struct {
	mu      sync.Mutex
	created int
	newErr  error
	clients map[string]*fakeClient
	emits   map[string]func(ClientEvent)

	connectErr error
	logoutErr  error

	// newHook, when set, runs at the top of New before any state changes.
	newHook func()
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		clients: make(map[string]*fakeClient),
		emits:   make(map[string]func(ClientEvent)),
	}
}

func (f *fakeFactory) New(userID string, emit func(ClientEvent)) (ProtocolClient, error) {
	if f.newHook != nil {
		f.newHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	if f.newErr != nil {
		return nil, f.newErr
	}
	client := &fakeClient{connectErr: f.connectErr, logoutErr: f.logoutErr}
	f.clients[userID] = client
	f.emits[userID] = emit
	return client, nil
}

func (f *fakeFactory) emit(userID string, ev ClientEvent) {
	f.mu.Lock()
	emit := f.emits[userID]
	f.mu.Unlock()
	emit(ev)
}

func (f *fakeFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func nextEvent(t *testing.T, events <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}
	}
}

func TestStartAuth_CreatesSession(t *testing.T) {
	f := newFakeFactory()
	m := NewManager(f)

	if err := m.StartAuth(context.Background(), "u1"); err != nil {
		t.Fatalf("StartAuth failed: %v", err)
	}

	s, ok := m.Lookup("u1")
	if !ok {
		t.Fatal("expected session for u1")
	}
	if s.State != domain.StateInitializing {
		t.Errorf("expected state initializing, got %s", s.State)
	}
}

func TestStartAuth_Idempotent(t *testing.T) {
	f := newFakeFactory()
	m := NewManager(f)

	if err := m.StartAuth(context.Background(), "u1"); err != nil {
		t.Fatalf("first StartAuth failed: %v", err)
	}
	if err := m.StartAuth(context.Background(), "u1"); err != nil {
		t.Fatalf("second StartAuth should be a no-op, got: %v", err)
	}

	if got := f.createdCount(); got != 1 {
		t.Errorf("expected 1 client created, got %d", got)
	}
}

func TestStartAuth_ConcurrentSingleClient(t *testing.T) {
	f := newFakeFactory()
	m := NewManager(f)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.StartAuth(context.Background(), "u1")
		}()
	}
	wg.Wait()

	if got := f.createdCount(); got != 1 {
		t.Errorf("expected exactly 1 client for concurrent StartAuth, got %d", got)
	}
}

func TestStartAuth_FactoryErrorLeavesNoSession(t *testing.T) {
	f := newFakeFactory()
	f.newErr = errors.New("boom")
	m := NewManager(f)

	if err := m.StartAuth(context.Background(), "u1"); err == nil {
		t.Fatal("expected error from StartAuth")
	}
	if _, ok := m.Lookup("u1"); ok {
		t.Error("expected no lingering session after init failure")
	}
	// A later attempt must be able to start fresh.
	f.mu.Lock()
	f.newErr = nil
	f.mu.Unlock()
	if err := m.StartAuth(context.Background(), "u1"); err != nil {
		t.Fatalf("retry after failure should succeed: %v", err)
	}
}

func TestStartAuth_ConnectErrorLeavesNoSession(t *testing.T) {
	f := newFakeFactory()
	f.connectErr = errors.New("dial refused")
	m := NewManager(f)

	if err := m.StartAuth(context.Background(), "u1"); err == nil {
		t.Fatal("expected error from StartAuth")
	}
	if _, ok := m.Lookup("u1"); ok {
		t.Error("expected no lingering session after connect failure")
	}
}

func TestStartAuth_LogoutDuringInitTearsDownClient(t *testing.T) {
	f := newFakeFactory()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f.newHook = func() {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	}
	m := NewManager(f)

	errs := make(chan error, 1)
	go func() { errs <- m.StartAuth(context.Background(), "u1") }()

	// Logout lands while the factory is still constructing the client.
	<-entered
	m.Logout(context.Background(), "u1")
	close(release)

	if err := <-errs; err == nil {
		t.Fatal("expected StartAuth to fail when logged out mid-initialization")
	}
	if _, ok := m.Lookup("u1"); ok {
		t.Error("expected no session after mid-init logout")
	}

	// The client built during the removed session must not stay live.
	f.mu.Lock()
	first := f.clients["u1"]
	f.mu.Unlock()
	waitFor(t, "orphaned client teardown", func() bool {
		first.mu.Lock()
		defer first.mu.Unlock()
		return first.loggedOut
	})

	// A fresh StartAuth gets its own client; exactly one is live per user.
	if err := m.StartAuth(context.Background(), "u1"); err != nil {
		t.Fatalf("StartAuth after logout should succeed: %v", err)
	}
	if _, ok := m.Lookup("u1"); !ok {
		t.Error("expected a live session after restart")
	}
	if got := f.createdCount(); got != 2 {
		t.Errorf("expected 2 clients created in total, got %d", got)
	}
}

func TestLifecycle_QRThenReady(t *testing.T) {
	f := newFakeFactory()
	m := NewManager(f)
	events, cancel := m.Subscribe()
	defer cancel()

	if err := m.StartAuth(context.Background(), "u1"); err != nil {
		t.Fatalf("StartAuth failed: %v", err)
	}

	f.emit("u1", QRCode{Code: "ABC"})

	ev := nextEvent(t, events)
	if ev.Kind != domain.EventQRIssued || ev.UserID != "u1" || ev.QR != "ABC" {
		t.Errorf("unexpected event: %+v", ev)
	}
	s, _ := m.Lookup("u1")
	if s.State != domain.StateAwaitingScan || s.QRPayload != "ABC" {
		t.Errorf("expected awaiting_scan with qr ABC, got %s %q", s.State, s.QRPayload)
	}

	f.emit("u1", Ready{})

	ev = nextEvent(t, events)
	if ev.Kind != domain.EventSessionReady || ev.UserID != "u1" {
		t.Errorf("unexpected event: %+v", ev)
	}
	waitFor(t, "authenticated state", func() bool {
		s, ok := m.Lookup("u1")
		return ok && s.State == domain.StateAuthenticated
	})
	s, _ = m.Lookup("u1")
	if s.QRPayload != "" {
		t.Errorf("expected qr payload cleared after ready, got %q", s.QRPayload)
	}
}

func TestLifecycle_DisconnectedDestroysSession(t *testing.T) {
	f := newFakeFactory()
	m := NewManager(f)
	events, cancel := m.Subscribe()
	defer cancel()

	if err := m.StartAuth(context.Background(), "u1"); err != nil {
		t.Fatalf("StartAuth failed: %v", err)
	}
	f.emit("u1", Disconnected{Reason: "stream closed"})

	ev := nextEvent(t, events)
	if ev.Kind != domain.EventSessionDisconnected || ev.Reason != "stream closed" {
		t.Errorf("unexpected event: %+v", ev)
	}
	waitFor(t, "session removal", func() bool {
		_, ok := m.Lookup("u1")
		return !ok
	})
}

func TestLifecycle_AuthFailureDestroysSession(t *testing.T) {
	f := newFakeFactory()
	m := NewManager(f)
	events, cancel := m.Subscribe()
	defer cancel()

	if err := m.StartAuth(context.Background(), "u1"); err != nil {
		t.Fatalf("StartAuth failed: %v", err)
	}
	f.emit("u1", AuthFailed{Message: "credentials rejected"})

	ev := nextEvent(t, events)
	if ev.Kind != domain.EventAuthFailed || ev.Msg != "credentials rejected" {
		t.Errorf("unexpected event: %+v", ev)
	}
	waitFor(t, "session removal", func() bool {
		_, ok := m.Lookup("u1")
		return !ok
	})
}

func TestLogout_AlwaysClearsLocalState(t *testing.T) {
	f := newFakeFactory()
	f.logoutErr = errors.New("provider unavailable")
	m := NewManager(f)

	if err := m.StartAuth(context.Background(), "u1"); err != nil {
		t.Fatalf("StartAuth failed: %v", err)
	}
	f.emit("u1", Ready{})
	waitFor(t, "authenticated state", func() bool {
		s, ok := m.Lookup("u1")
		return ok && s.State == domain.StateAuthenticated
	})

	m.Logout(context.Background(), "u1")

	if _, ok := m.Lookup("u1"); ok {
		t.Error("expected session cleared even when provider logout fails")
	}
	f.mu.Lock()
	client := f.clients["u1"]
	f.mu.Unlock()
	client.mu.Lock()
	loggedOut := client.loggedOut
	client.mu.Unlock()
	if !loggedOut {
		t.Error("expected provider logout to be attempted")
	}
}

func TestSend_RequiresAuthenticatedSession(t *testing.T) {
	f := newFakeFactory()
	m := NewManager(f)

	if err := m.Send(context.Background(), "u1", "5551", "oi"); err == nil {
		t.Error("expected error sending without a session")
	}

	if err := m.StartAuth(context.Background(), "u1"); err != nil {
		t.Fatalf("StartAuth failed: %v", err)
	}
	if err := m.Send(context.Background(), "u1", "5551", "oi"); err == nil {
		t.Error("expected error sending before authentication")
	}

	f.emit("u1", Ready{})
	waitFor(t, "authenticated state", func() bool {
		s, ok := m.Lookup("u1")
		return ok && s.State == domain.StateAuthenticated
	})

	if err := m.Send(context.Background(), "u1", "5551", "oi"); err != nil {
		t.Errorf("send after authentication failed: %v", err)
	}
	f.mu.Lock()
	client := f.clients["u1"]
	f.mu.Unlock()
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.sent) != 1 || client.sent[0] != [2]string{"5551", "oi"} {
		t.Errorf("unexpected sends: %v", client.sent)
	}
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	f := newFakeFactory()
	m := NewManager(f)
	events, cancel := m.Subscribe()

	if err := m.StartAuth(context.Background(), "u1"); err != nil {
		t.Fatalf("StartAuth failed: %v", err)
	}
	cancel()

	f.emit("u1", QRCode{Code: "ABC"})
	select {
	case ev := <-events:
		t.Errorf("expected no event after cancel, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
