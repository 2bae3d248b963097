package etp

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Server turns transport connections into sessions. Every connection gets
// a session with the control handler of its version plus one fresh
// instance of each handler registered for that version.
type Server struct {
	transport   Transport
	logger      Logger
	appName     string
	appVersion  string
	sessionOpts []Option

	versions map[string]Version
	fallback string // version used when a connection names no sub-protocol

	mu       sync.Mutex
	running  bool
	sessions map[string]*Session
	handlers map[string][]HandlerFactory

	obsMu       sync.RWMutex
	onConnected []func(*Session)
	onClosed    []func(*Session)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server and, unless a session
// option overrides it, for its sessions.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// ApplicationOption sets the application name and version the server
// reports to its peers.
func ApplicationOption(name, version string) ServerOption {
	return func(s *Server) {
		s.appName = name
		s.appVersion = version
	}
}

// SessionOptions sets options applied to every session the server creates.
func SessionOptions(opts ...Option) ServerOption {
	return func(s *Server) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// NewServer creates a server speaking versions over transport. The first
// version is used for connections that do not name a sub-protocol.
func NewServer(transport Transport, versions []Version, opts ...ServerOption) (*Server, error) {
	if transport == nil {
		return nil, ErrInvalidTransport
	}
	if len(versions) == 0 {
		return nil, errors.Wrap(ErrUnsupportedVersion, "no versions configured")
	}

	s := &Server{
		transport: transport,
		logger:    slog.Default(),
		versions:  make(map[string]Version, len(versions)),
		sessions:  make(map[string]*Session),
		handlers:  make(map[string][]HandlerFactory),
	}
	for _, v := range versions {
		if v.Name == "" || v.Core == nil {
			return nil, errors.Wrapf(ErrUnsupportedVersion, "version %q is incomplete", v.Name)
		}
		if v.Binary == nil && v.JSON == nil {
			return nil, errors.Wrapf(ErrInvalidCodec, "version %q", v.Name)
		}
		if _, dup := s.versions[v.Name]; dup {
			return nil, errors.Wrapf(ErrUnsupportedVersion, "version %q listed twice", v.Name)
		}
		s.versions[v.Name] = v
		if s.fallback == "" {
			s.fallback = v.Name
		}
	}

	for _, opt := range opts {
		opt(s)
	}
	s.sessionOpts = append([]Option{LoggerOption(s.logger)}, s.sessionOpts...)

	transport.Bind(s)
	return s, nil
}

// Register adds handler factories for version. Each new session of that
// version gets one handler from every factory. Two handlers for the same
// protocol are rejected here, before any session exists.
func (s *Server) Register(version string, factories ...HandlerFactory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[version]; !ok {
		return errors.Wrapf(ErrUnsupportedVersion, "%q", version)
	}
	all := append(append([]HandlerFactory(nil), s.handlers[version]...), factories...)
	if err := validateFactories(all); err != nil {
		return err
	}
	s.handlers[version] = all
	return nil
}

// Versions returns the supported sub-protocol names, sorted.
func (s *Server) Versions() []string {
	out := make([]string, 0, len(s.versions))
	for name := range s.versions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ApplicationName returns the application name reported to peers.
func (s *Server) ApplicationName() string { return s.appName }

// ApplicationVersion returns the application version reported to peers.
func (s *Server) ApplicationVersion() string { return s.appVersion }

// OnSessionConnected adds a listener for new sessions.
func (s *Server) OnSessionConnected(fn func(*Session)) {
	s.obsMu.Lock()
	s.onConnected = append(s.onConnected, fn)
	s.obsMu.Unlock()
}

// OnSessionClosed adds a listener for closed sessions. It fires once per session.
func (s *Server) OnSessionClosed(fn func(*Session)) {
	s.obsMu.Lock()
	s.onClosed = append(s.onClosed, fn)
	s.obsMu.Unlock()
}

// Start starts the transport.
func (s *Server) Start(ctx context.Context) error {
	if s.IsRunning() {
		return nil
	}
	s.logger.Info("server starting", "versions", s.Versions())
	if err := s.transport.Start(ctx); err != nil {
		return errors.Wrap(err, "etp: start transport")
	}
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	s.logger.Info("server started")
	return nil
}

// Serve starts the server and blocks until ctx is canceled, then stops it.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := s.Stop(); err != nil {
		return err
	}
	return ctx.Err()
}

// Stop closes every live session, then stops the transport.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	sessions := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	s.logger.Info("server stopping", "sessions", len(sessions))
	for _, sess := range sessions {
		_ = sess.Close("server stopping")
		s.notifyClosed(sess)
	}

	if err := s.transport.Stop(); err != nil {
		return errors.Wrap(err, "etp: stop transport")
	}
	s.logger.Info("server stopped")
	return nil
}

// IsRunning reports whether the server has been started and not stopped.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Session returns the session of connection connID.
func (s *Server) Session(connID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[connID]
}

// Sessions returns the live sessions.
func (s *Server) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// OnConnected implements TransportListener.
func (s *Server) OnConnected(info ConnInfo) {
	s.logger.Debug("connection opened", "conn", info.ID, "subprotocol", info.Subprotocol,
		"encoding", info.Encoding, "remote_addr", info.RemoteAddr)

	sess, err := s.newSession(info)
	if err != nil {
		s.logger.Warn("connection rejected", "conn", info.ID, "error", err)
		_ = s.transport.Disconnect(info.ID, err.Error())
		return
	}

	s.mu.Lock()
	old := s.sessions[info.ID]
	s.sessions[info.ID] = sess
	s.mu.Unlock()

	if old != nil {
		_ = old.Close("connection replaced")
		s.notifyClosed(old)
	}

	s.obsMu.RLock()
	listeners := s.onConnected
	s.obsMu.RUnlock()
	for _, fn := range listeners {
		fn(sess)
	}
}

// OnDataReceived implements TransportListener.
func (s *Server) OnDataReceived(connID string, data []byte) {
	sess := s.Session(connID)
	if sess == nil {
		s.logger.Debug("data for unknown connection dropped", "conn", connID, "bytes", len(data))
		return
	}
	_ = sess.OnDataReceived(data)
}

// OnDisconnected implements TransportListener.
func (s *Server) OnDisconnected(connID string, reason string) {
	s.mu.Lock()
	sess, ok := s.sessions[connID]
	delete(s.sessions, connID)
	s.mu.Unlock()

	if !ok {
		return
	}
	s.logger.Debug("connection closed", "conn", connID, "reason", reason)
	_ = sess.Close(reason)
	s.notifyClosed(sess)
}

func (s *Server) newSession(info ConnInfo) (*Session, error) {
	name := info.Subprotocol
	if name == "" {
		name = s.fallback
	}
	v, ok := s.versions[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "%q", info.Subprotocol)
	}
	if info.Encoding == "" {
		info.Encoding = EncodingBinary
	}
	codec := v.codec(info.Encoding)
	if codec == nil {
		return nil, errors.Wrapf(ErrInvalidCodec, "%s encoding for %q", info.Encoding, v.Name)
	}
	info.Subprotocol = v.Name
	info.ApplicationName = s.appName
	info.ApplicationVersion = s.appVersion

	s.mu.Lock()
	factories := s.handlers[v.Name]
	s.mu.Unlock()

	sess, err := NewSession(info, connSender{transport: s.transport, connID: info.ID}, codec, v.Core(), s.sessionOpts...)
	if err != nil {
		return nil, err
	}
	for _, f := range factories {
		if err := sess.Register(f()); err != nil {
			_ = sess.Close(err.Error())
			return nil, err
		}
	}
	return sess, nil
}

// notifyClosed runs the OnSessionClosed listeners for a session that has
// already been closed.
func (s *Server) notifyClosed(sess *Session) {
	s.obsMu.RLock()
	listeners := s.onClosed
	s.obsMu.RUnlock()
	for _, fn := range listeners {
		fn(sess)
	}
}
