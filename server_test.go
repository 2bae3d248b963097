package etp

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// mockTransport records what a server asks of its transport. Tests drive
// connection events through the bound listener.
type mockTransport struct {
	mu           sync.Mutex
	listener     TransportListener
	started      bool
	stopped      bool
	startErr     error
	sent         map[string][][]byte
	disconnected map[string]string
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		sent:         make(map[string][][]byte),
		disconnected: make(map[string]string),
	}
}

func (m *mockTransport) Bind(l TransportListener) { m.listener = l }

func (m *mockTransport) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *mockTransport) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *mockTransport) Send(connID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[connID] = append(m.sent[connID], data)
	return nil
}

func (m *mockTransport) Disconnect(connID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected[connID] = reason
	return nil
}

func (m *mockTransport) sentTo(connID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent[connID])
}

func (m *mockTransport) reason(connID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.disconnected[connID]
	return r, ok
}

const testVersion = "test.energistics.org"

func testVersionDef() Version {
	return Version{
		Name:   testVersion,
		Binary: mockCodec{},
		Core:   func() ProtocolHandler { return newCoreHandler() },
	}
}

func newTestServer(t *testing.T) (*Server, *mockTransport) {
	t.Helper()
	tr := newMockTransport()
	srv, err := NewServer(tr, []Version{testVersionDef()},
		ServerLoggerOption(NopLogger()),
		ApplicationOption("etp-test", "1.0"))
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := srv.Register(testVersion, func() ProtocolHandler { return newEchoHandler() }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return srv, tr
}

func TestNewServer(t *testing.T) {
	srv, tr := newTestServer(t)

	if tr.listener != TransportListener(srv) {
		t.Error("server not bound to its transport")
	}
	if v := srv.Versions(); len(v) != 1 || v[0] != testVersion {
		t.Errorf("Versions = %v", v)
	}
	if srv.ApplicationName() != "etp-test" || srv.ApplicationVersion() != "1.0" {
		t.Errorf("application = %s %s", srv.ApplicationName(), srv.ApplicationVersion())
	}
	if srv.IsRunning() {
		t.Error("server running before Start")
	}
}

func TestNewServer_Errors(t *testing.T) {
	v := testVersionDef()
	noCodec := v
	noCodec.Binary = nil
	noCore := v
	noCore.Core = nil

	tests := []struct {
		name      string
		transport Transport
		versions  []Version
		want      error
	}{
		{"nil transport", nil, []Version{v}, ErrInvalidTransport},
		{"no versions", newMockTransport(), nil, ErrUnsupportedVersion},
		{"no core", newMockTransport(), []Version{noCore}, ErrUnsupportedVersion},
		{"no codec", newMockTransport(), []Version{noCodec}, ErrInvalidCodec},
		{"duplicate", newMockTransport(), []Version{v, v}, ErrUnsupportedVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.transport, tt.versions)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestServer_Register(t *testing.T) {
	srv, _ := newTestServer(t)

	if err := srv.Register("other"); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("unknown version = %v, want ErrUnsupportedVersion", err)
	}
	if err := srv.Register(testVersion, func() ProtocolHandler { return newEchoHandler() }); !errors.Is(err, ErrDuplicateHandler) {
		t.Errorf("duplicate protocol = %v, want ErrDuplicateHandler", err)
	}
	if err := srv.Register(testVersion, func() ProtocolHandler { return newCoreHandler() }); !errors.Is(err, ErrDuplicateHandler) {
		t.Errorf("core protocol = %v, want ErrDuplicateHandler", err)
	}
}

func TestServer_SessionLifecycle(t *testing.T) {
	srv, tr := newTestServer(t)

	var connected, closed []*Session
	srv.OnSessionConnected(func(s *Session) { connected = append(connected, s) })
	srv.OnSessionClosed(func(s *Session) { closed = append(closed, s) })

	tr.listener.OnConnected(ConnInfo{ID: "c1", Subprotocol: testVersion, Encoding: EncodingBinary, RemoteAddr: "10.0.0.1:5000"})

	sess := srv.Session("c1")
	if sess == nil {
		t.Fatal("no session for c1")
	}
	if len(connected) != 1 || connected[0] != sess {
		t.Errorf("connected = %v", connected)
	}
	info := sess.Info()
	if info.ApplicationName != "etp-test" || info.Subprotocol != testVersion || info.RemoteAddr != "10.0.0.1:5000" {
		t.Errorf("info = %+v", info)
	}
	if len(sess.Handlers()) != 2 {
		t.Errorf("handlers = %d, want core and echo", len(sess.Handlers()))
	}

	tr.listener.OnDataReceived("c1", echoRequestFrame(t, 1, "over the wire"))
	if tr.sentTo("c1") != 1 {
		t.Errorf("frames sent to c1 = %d, want 1", tr.sentTo("c1"))
	}

	tr.listener.OnDisconnected("c1", "peer left")
	if srv.Session("c1") != nil {
		t.Error("session kept after disconnect")
	}
	if sess.State() != StateClosed || sess.CloseReason() != "peer left" {
		t.Errorf("session %s with reason %q", sess.State(), sess.CloseReason())
	}
	if len(closed) != 1 || closed[0] != sess {
		t.Errorf("closed = %v", closed)
	}

	tr.listener.OnDisconnected("c1", "again")
	if len(closed) != 1 {
		t.Errorf("closed fired %d times, want 1", len(closed))
	}
}

func TestServer_HandlersArePerSession(t *testing.T) {
	srv, tr := newTestServer(t)

	tr.listener.OnConnected(ConnInfo{ID: "a", Subprotocol: testVersion})
	tr.listener.OnConnected(ConnInfo{ID: "b", Subprotocol: testVersion})

	ha, _ := srv.Session("a").Handler(testProtocol)
	hb, _ := srv.Session("b").Handler(testProtocol)
	if ha == nil || hb == nil || ha == hb {
		t.Fatal("sessions share a handler instance")
	}
	if ha.Session() != srv.Session("a") || hb.Session() != srv.Session("b") {
		t.Error("handler attached to the wrong session")
	}
	if n := len(srv.Sessions()); n != 2 {
		t.Errorf("Sessions = %d, want 2", n)
	}
}

func TestServer_FallbackVersion(t *testing.T) {
	srv, tr := newTestServer(t)

	tr.listener.OnConnected(ConnInfo{ID: "c1"})

	sess := srv.Session("c1")
	if sess == nil {
		t.Fatal("connection without sub-protocol rejected")
	}
	if sess.Info().Subprotocol != testVersion || sess.Info().Encoding != EncodingBinary {
		t.Errorf("info = %+v", sess.Info())
	}
}

func TestServer_RejectsConnection(t *testing.T) {
	srv, tr := newTestServer(t)

	tests := []struct {
		name string
		info ConnInfo
	}{
		{"unknown version", ConnInfo{ID: "v", Subprotocol: "etp99.energistics.org"}},
		{"no json codec", ConnInfo{ID: "j", Subprotocol: testVersion, Encoding: EncodingJSON}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr.listener.OnConnected(tt.info)
			if srv.Session(tt.info.ID) != nil {
				t.Error("session created")
			}
			if _, ok := tr.reason(tt.info.ID); !ok {
				t.Error("connection not disconnected")
			}
		})
	}
}

func TestServer_DataForUnknownConnection(t *testing.T) {
	_, tr := newTestServer(t)
	tr.listener.OnDataReceived("ghost", []byte{1, 2, 3})
	if tr.sentTo("ghost") != 0 {
		t.Error("server answered an unknown connection")
	}
}

func TestServer_SessionCloseDisconnects(t *testing.T) {
	srv, tr := newTestServer(t)
	tr.listener.OnConnected(ConnInfo{ID: "c1"})

	if err := srv.Session("c1").Close("no more"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if reason, ok := tr.reason("c1"); !ok || reason != "no more" {
		t.Errorf("disconnect reason = %q, %v", reason, ok)
	}
}

func TestServer_ReplacedConnection(t *testing.T) {
	srv, tr := newTestServer(t)

	tr.listener.OnConnected(ConnInfo{ID: "c1"})
	old := srv.Session("c1")
	tr.listener.OnConnected(ConnInfo{ID: "c1"})

	if srv.Session("c1") == old {
		t.Fatal("session not replaced")
	}
	if old.State() != StateClosed || old.CloseReason() != "connection replaced" {
		t.Errorf("old session %s with reason %q", old.State(), old.CloseReason())
	}
}

func TestServer_ClosedListenersSeeClosedSession(t *testing.T) {
	srv, tr := newTestServer(t)

	type seen struct {
		state  SessionState
		reason string
	}
	var got []seen
	srv.OnSessionClosed(func(s *Session) { got = append(got, seen{s.State(), s.CloseReason()}) })

	tr.listener.OnConnected(ConnInfo{ID: "c1"})
	tr.listener.OnDisconnected("c1", "peer left")

	tr.listener.OnConnected(ConnInfo{ID: "c2"})
	tr.listener.OnConnected(ConnInfo{ID: "c2"})

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	want := []seen{
		{StateClosed, "peer left"},
		{StateClosed, "connection replaced"},
		{StateClosed, "server stopping"},
	}
	if len(got) != len(want) {
		t.Fatalf("closed fired %d times, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("listener %d saw %s with reason %q, want %s with %q",
				i, got[i].state, got[i].reason, want[i].state, want[i].reason)
		}
	}
}

func TestServer_StartStop(t *testing.T) {
	srv, tr := newTestServer(t)

	var closed int
	srv.OnSessionClosed(func(*Session) { closed++ })

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !srv.IsRunning() || !tr.started {
		t.Fatal("server not running after Start")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Errorf("second Start failed: %v", err)
	}

	tr.listener.OnConnected(ConnInfo{ID: "a"})
	tr.listener.OnConnected(ConnInfo{ID: "b"})
	sessions := srv.Sessions()

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if srv.IsRunning() || !tr.stopped {
		t.Error("server still running after Stop")
	}
	if len(srv.Sessions()) != 0 {
		t.Errorf("sessions left: %d", len(srv.Sessions()))
	}
	for _, s := range sessions {
		if s.State() != StateClosed || s.CloseReason() != "server stopping" {
			t.Errorf("session %s is %s with reason %q", s.ID(), s.State(), s.CloseReason())
		}
	}
	if closed != 2 {
		t.Errorf("closed fired %d times, want 2", closed)
	}

	if err := srv.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestServer_StartError(t *testing.T) {
	srv, tr := newTestServer(t)
	tr.startErr = errors.New("address in use")

	if err := srv.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded")
	}
	if srv.IsRunning() {
		t.Error("server running after a failed Start")
	}
}

func TestServer_Serve(t *testing.T) {
	srv, tr := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := srv.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
	if !tr.started || !tr.stopped {
		t.Error("Serve did not start and stop the transport")
	}
}
