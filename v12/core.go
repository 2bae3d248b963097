package v12

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Zereker/etp"
)

// ErrSessionRejected is returned by CoreClient.WaitOpen when the server
// closed the session instead of opening it.
var ErrSessionRejected = errors.New("v12: session rejected")

// core holds what the server and client Core handlers share: Ping, Pong
// and CloseSession work the same in both directions.
type core struct {
	*etp.Handler

	// OnCloseSession fires when the peer closes the session. Unless
	// canceled, the session is closed afterwards.
	OnCloseSession etp.Hook[CloseSession, struct{}]
	// OnPing fires for every Ping. Unless canceled a Pong carrying the
	// Context time is sent back.
	OnPing etp.Hook[Ping, Pong]
	// OnPong fires for every Pong.
	OnPong etp.Hook[Pong, struct{}]
}

func newCore(role, counterpart string) *core {
	c := &core{Handler: etp.NewHandler(ProtocolCore, role, counterpart)}
	etp.Handle(c.Handler, CoreCloseSession, "CloseSession", &c.OnCloseSession, nil, c.respondCloseSession)
	etp.Handle(c.Handler, CorePing, "Ping", &c.OnPing, newPong, c.respondPing)
	etp.Handle(c.Handler, CorePong, "Pong", &c.OnPong, nil, nil)
	return c
}

func newPong() Pong { return Pong{CurrentDateTime: now()} }

func now() int64 { return time.Now().UnixMicro() }

// Ping asks the peer for a Pong.
func (c *core) Ping() (int64, error) {
	return c.Request(CorePing, Ping{CurrentDateTime: now()})
}

// CloseSession tells the peer the session ends, then closes it.
func (c *core) CloseSession(reason string) error {
	s := c.Session()
	if s == nil {
		return etp.ErrHandlerDetached
	}
	if _, err := c.Send(CoreCloseSession, 0, etp.FinalPart, CloseSession{Reason: reason}); err != nil &&
		!errors.Is(err, etp.ErrSessionClosed) {
		c.Logger().Warn("close session not sent", "session", s.ID(), "error", err)
	}
	return s.Close(reason)
}

func (c *core) respondCloseSession(ev *etp.Event[CloseSession, struct{}]) error {
	s := c.Session()
	if s == nil {
		return nil
	}
	reason := ev.Message.Reason
	if reason == "" {
		reason = "closed by peer"
	}
	return s.Close(reason)
}

func (c *core) respondPing(ev *etp.Event[Ping, Pong]) error {
	_, err := c.Send(CorePong, ev.Header.MessageID, etp.FinalPart, ev.Context)
	return err
}

// CoreServer is the server side Core handler. It answers RequestSession
// with OpenSession, granting the requested protocols the session has a
// handler for in the requested role.
type CoreServer struct {
	*core

	// OnRequestSession fires for every RequestSession. Listeners may fill
	// the OpenSession context; fields left empty are filled in before it
	// is sent. Canceling leaves answering to the listener.
	OnRequestSession etp.Hook[RequestSession, OpenSession]

	mu         sync.RWMutex
	sessionID  string
	client     RequestSession
	negotiated []SupportedProtocol
}

// NewCoreServer returns the Core handler for the server side of a session.
func NewCoreServer() *CoreServer {
	c := &CoreServer{core: newCore(RoleServer, RoleClient)}
	etp.Handle(c.Handler, CoreRequestSession, "RequestSession", &c.OnRequestSession, nil, c.respondRequestSession)
	return c
}

// SessionID returns the id sent in OpenSession, empty before that.
func (c *CoreServer) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Client returns the RequestSession the client sent.
func (c *CoreServer) Client() RequestSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// Negotiated returns the protocols granted in OpenSession.
func (c *CoreServer) Negotiated() []SupportedProtocol {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]SupportedProtocol(nil), c.negotiated...)
}

// OpenSession sends an OpenSession answering the request with id correlationID.
func (c *CoreServer) OpenSession(open OpenSession, correlationID int64) (int64, error) {
	id, err := c.Send(CoreOpenSession, correlationID, etp.FinalPart, open)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.sessionID = open.SessionID
	c.negotiated = append([]SupportedProtocol(nil), open.SupportedProtocols...)
	c.mu.Unlock()
	return id, nil
}

func (c *CoreServer) respondRequestSession(ev *etp.Event[RequestSession, OpenSession]) error {
	s := c.Session()
	if s == nil {
		return etp.ErrHandlerDetached
	}
	c.mu.Lock()
	c.client = ev.Message
	c.mu.Unlock()

	open := ev.Context
	if open.SupportedProtocols == nil {
		open.SupportedProtocols = Negotiate(ev.Message.RequestedProtocols, s)
	}
	if len(open.SupportedProtocols) == 0 {
		if _, err := c.ProtocolException(etp.ErrorCodeNoSupportedProtocols,
			"none of the requested protocols is supported", ev.Header.MessageID); err != nil {
			return err
		}
		return s.Close("no supported protocols")
	}
	if open.SessionID == "" {
		open.SessionID = uuid.NewString()
	}
	if open.ServerInstanceID == "" {
		open.ServerInstanceID = serverInstanceID
	}
	if open.ApplicationName == "" {
		open.ApplicationName = s.Info().ApplicationName
	}
	if open.ApplicationVersion == "" {
		open.ApplicationVersion = s.Info().ApplicationVersion
	}
	if open.CurrentDateTime == 0 {
		open.CurrentDateTime = now()
	}

	_, err := c.OpenSession(open, ev.Header.MessageID)
	if err == nil {
		c.Logger().Info("etp session opened", "session", s.ID(), "session_id", open.SessionID,
			"client", ev.Message.ApplicationName, "protocols", len(open.SupportedProtocols))
	}
	return err
}

// serverInstanceID identifies this process to clients.
var serverInstanceID = uuid.NewString()

// Negotiate returns the requested protocols s can serve: those with a
// registered handler whose role is the requested one. The result is
// sorted by protocol number.
func Negotiate(requested []SupportedProtocol, s *etp.Session) []SupportedProtocol {
	out := make([]SupportedProtocol, 0, len(requested))
	seen := make(map[int32]bool, len(requested))
	for _, rp := range requested {
		if rp.Protocol == ProtocolCore || seen[rp.Protocol] {
			continue
		}
		h, ok := s.Handler(rp.Protocol)
		if !ok || h.Role() != rp.Role {
			continue
		}
		seen[rp.Protocol] = true
		out = append(out, SupportedProtocol{
			Protocol:             rp.Protocol,
			ProtocolVersion:      Version12,
			Role:                 h.Role(),
			ProtocolCapabilities: map[string]string{},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Protocol < out[j].Protocol })
	return out
}

// CoreClient is the client side Core handler.
type CoreClient struct {
	*core

	// OnOpenSession fires when the server opens the session.
	OnOpenSession etp.Hook[OpenSession, struct{}]

	once   sync.Once
	opened chan struct{}

	mu   sync.RWMutex
	open OpenSession
}

// NewCoreClient returns the Core handler for the client side of a session.
func NewCoreClient() *CoreClient {
	c := &CoreClient{core: newCore(RoleClient, RoleServer), opened: make(chan struct{})}
	c.OnOpenSession.Listen(c.recordOpen)
	etp.Handle(c.Handler, CoreOpenSession, "OpenSession", &c.OnOpenSession, nil, nil)
	return c
}

// RequestSession sends req. When req names no protocols, every handler
// registered in the session is requested, with the server in the
// handler's counterpart role.
func (c *CoreClient) RequestSession(req RequestSession) (int64, error) {
	s := c.Session()
	if s == nil {
		return 0, etp.ErrHandlerDetached
	}
	if req.RequestedProtocols == nil {
		req.RequestedProtocols = RequestedProtocols(s)
	}
	if req.ApplicationName == "" {
		req.ApplicationName = s.Info().ApplicationName
	}
	if req.ApplicationVersion == "" {
		req.ApplicationVersion = s.Info().ApplicationVersion
	}
	if req.ClientInstanceID == "" {
		req.ClientInstanceID = uuid.NewString()
	}
	if req.CurrentDateTime == 0 {
		req.CurrentDateTime = now()
	}
	return c.Request(CoreRequestSession, req)
}

// RequestedProtocols lists the feature handlers of s as protocols to
// request, each with the role the server is to play.
func RequestedProtocols(s *etp.Session) []SupportedProtocol {
	var out []SupportedProtocol
	for _, h := range s.Handlers() {
		if h.Protocol() == ProtocolCore {
			continue
		}
		out = append(out, SupportedProtocol{
			Protocol:             h.Protocol(),
			ProtocolVersion:      Version12,
			Role:                 h.CounterpartRole(),
			ProtocolCapabilities: map[string]string{},
		})
	}
	return out
}

// WaitOpen blocks until OpenSession arrives, the session closes or ctx is done.
func (c *CoreClient) WaitOpen(ctx context.Context) (OpenSession, error) {
	s := c.Session()
	if s == nil {
		return OpenSession{}, etp.ErrHandlerDetached
	}
	closed := make(chan struct{})
	var closeOnce sync.Once
	s.OnClose(func(string) { closeOnce.Do(func() { close(closed) }) })
	if !s.IsOpen() {
		closeOnce.Do(func() { close(closed) })
	}

	select {
	case <-c.opened:
		return c.Opened(), nil
	case <-closed:
		select {
		case <-c.opened:
			return c.Opened(), nil
		default:
		}
		return OpenSession{}, errors.Wrap(ErrSessionRejected, s.CloseReason())
	case <-ctx.Done():
		return OpenSession{}, ctx.Err()
	}
}

// Opened returns the OpenSession the server sent, zero before it arrived.
func (c *CoreClient) Opened() OpenSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// SessionID returns the id the server assigned, empty before OpenSession.
func (c *CoreClient) SessionID() string {
	return c.Opened().SessionID
}

func (c *CoreClient) recordOpen(ev *etp.Event[OpenSession, struct{}]) {
	c.mu.Lock()
	c.open = ev.Message
	c.mu.Unlock()
	c.once.Do(func() { close(c.opened) })
}
