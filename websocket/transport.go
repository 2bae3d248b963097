package websocket

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	xws "golang.org/x/net/websocket"

	"github.com/Zereker/etp"
)

// ErrNoSubprotocol is returned by the handshake when the client offers only
// sub-protocols the transport does not speak.
var ErrNoSubprotocol = errors.New("websocket: no supported sub-protocol offered")

// Transport is the server side etp.Transport. It accepts WebSocket
// connections on one HTTP endpoint and negotiates one sub-protocol and an
// encoding for each.
type Transport struct {
	addr         string
	subprotocols []string
	opts         options

	listener etp.TransportListener
	nextID   atomic.Int64

	mu      sync.Mutex
	server  *http.Server
	ln      net.Listener
	conns   map[string]*Conn
	closing bool
	stopped chan struct{}
	wg      sync.WaitGroup
}

// NewTransport returns a transport that will listen on addr and accept the
// given sub-protocols. A client naming no sub-protocol is accepted too; the
// server then uses its default version.
func NewTransport(addr string, subprotocols []string, opt ...Option) *Transport {
	return &Transport{
		addr:         addr,
		subprotocols: subprotocols,
		opts:         newOptions(opt...),
		conns:        make(map[string]*Conn),
	}
}

// Bind implements etp.Transport.
func (t *Transport) Bind(l etp.TransportListener) {
	t.listener = l
}

// Handler returns the HTTP handler serving the WebSocket endpoint, for
// mounting on an existing server instead of calling Start.
func (t *Transport) Handler() http.Handler {
	return xws.Server{
		Handshake: t.handshake,
		Handler:   t.serve,
	}
}

// Start implements etp.Transport. It listens on the configured address and
// serves in the background until Stop.
func (t *Transport) Start(ctx context.Context) error {
	if t.listener == nil {
		return errors.New("websocket: transport not bound")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server != nil {
		return nil
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", t.addr)
	if err != nil {
		return errors.Wrapf(err, "websocket: listen on %s", t.addr)
	}
	mux := http.NewServeMux()
	mux.Handle(t.opts.path, t.Handler())

	t.ln = ln
	t.closing = false
	t.stopped = make(chan struct{})
	t.server = &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	server, stopped := t.server, t.stopped
	go func() {
		defer close(stopped)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.opts.logger.Error("websocket server failed", "addr", ln.Addr().String(), "error", err)
		}
	}()

	t.opts.logger.Info("websocket transport listening", "addr", ln.Addr().String(), "path", t.opts.path,
		"subprotocols", t.subprotocols)
	return nil
}

// Addr returns the address the transport listens on, nil before Start.
func (t *Transport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return nil
	}
	return t.ln.Addr()
}

// Stop implements etp.Transport. It stops accepting connections, closes
// the live ones and waits for their loops to end.
func (t *Transport) Stop() error {
	t.mu.Lock()
	server, stopped := t.server, t.stopped
	t.server, t.ln = nil, nil
	t.closing = true
	conns := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	for _, c := range conns {
		_ = c.Close("server stopping")
	}

	var err error
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.opts.shutdownTimeout)
		defer cancel()
		err = server.Shutdown(ctx)
		<-stopped
	}
	t.wg.Wait()
	return err
}

// Send implements etp.Transport.
func (t *Transport) Send(connID string, data []byte) error {
	c, err := t.conn(connID)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Disconnect implements etp.Transport.
func (t *Transport) Disconnect(connID string, reason string) error {
	c, err := t.conn(connID)
	if err != nil {
		return nil
	}
	return c.Close(reason)
}

// Conns returns the number of live connections.
func (t *Transport) Conns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *Transport) conn(connID string) (*Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[connID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownConnection, "%q", connID)
	}
	return c, nil
}

// handshake picks the first offered sub-protocol the transport speaks and
// rejects the connection when none matches. Origins are not checked.
func (t *Transport) handshake(cfg *xws.Config, req *http.Request) error {
	if len(cfg.Protocol) == 0 {
		return nil
	}
	for _, offered := range cfg.Protocol {
		for _, p := range t.subprotocols {
			if strings.EqualFold(strings.TrimSpace(offered), p) {
				cfg.Protocol = []string{p}
				return nil
			}
		}
	}
	t.opts.logger.Warn("websocket handshake rejected", "remote_addr", req.RemoteAddr, "offered", cfg.Protocol)
	return ErrNoSubprotocol
}

// serve runs one accepted connection. The HTTP handler must not return
// before the connection is done.
func (t *Transport) serve(raw *xws.Conn) {
	req := raw.Request()
	info := etp.ConnInfo{
		ID:         fmt.Sprintf("ws-%d", t.nextID.Add(1)),
		Encoding:   encodingOf(req.Header.Get(EncodingHeader)),
		RemoteAddr: req.RemoteAddr,
	}
	if protocols := raw.Config().Protocol; len(protocols) > 0 {
		info.Subprotocol = protocols[0]
	}

	c := newConn(raw, info, t.opts)
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		_ = raw.Close()
		return
	}
	t.conns[info.ID] = c
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	t.listener.OnConnected(info)
	reason := c.Run(req.Context(), func(data []byte) {
		t.listener.OnDataReceived(info.ID, data)
	})

	t.mu.Lock()
	delete(t.conns, info.ID)
	t.mu.Unlock()
	t.listener.OnDisconnected(info.ID, reason)
}

// encodingOf maps the encoding header to an encoding; anything but json
// means binary.
func encodingOf(header string) string {
	if strings.EqualFold(strings.TrimSpace(header), etp.EncodingJSON) {
		return etp.EncodingJSON
	}
	return etp.EncodingBinary
}
