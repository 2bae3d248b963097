// Package websocket carries ETP frames over WebSocket connections, one
// frame per WebSocket message. It provides the server side etp.Transport
// and a client Dial.
package websocket

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	xws "golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/etp"
)

// EncodingHeader is the handshake header naming the encoding of a connection.
const EncodingHeader = "etp-encoding"

// Errors returned by connection operations.
var (
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("websocket: connection closed")
	// ErrBufferFull is returned when the send buffer stayed full for the
	// whole write timeout. The peer is not reading fast enough.
	ErrBufferFull = errors.New("websocket: send buffer full")
	// ErrUnknownConnection is returned for a connection id the transport does not know.
	ErrUnknownConnection = errors.New("websocket: unknown connection")
)

// Conn is one WebSocket connection carrying ETP frames. It has a read loop
// delivering every received frame and a write loop draining a buffered
// send channel, so sends never block on the network.
type Conn struct {
	raw    *xws.Conn
	info   etp.ConnInfo
	logger etp.Logger
	opts   options

	sendMsg chan []byte
	closed  atomic.Bool
	done    chan struct{}

	mu     sync.Mutex
	reason string
}

func newConn(raw *xws.Conn, info etp.ConnInfo, opts options) *Conn {
	raw.MaxPayloadBytes = opts.maxPayloadBytes
	return &Conn{
		raw:     raw,
		info:    info,
		logger:  opts.logger,
		opts:    opts,
		sendMsg: make(chan []byte, opts.bufferSize),
		done:    make(chan struct{}),
	}
}

// Info returns the connection description.
func (c *Conn) Info() etp.ConnInfo { return c.info }

// RemoteAddr returns the address of the peer.
func (c *Conn) RemoteAddr() string { return c.info.RemoteAddr }

// Run starts the read and write loops and blocks until either fails, the
// connection is closed or ctx is canceled. onFrame is called for every
// received frame, one at a time. Run returns the reason the connection
// ended.
func (c *Conn) Run(ctx context.Context, onFrame func([]byte)) string {
	if c.closed.Load() {
		return c.closeReason("")
	}
	c.logger.Debug("connection established", "conn", c.info.ID, "addr", c.info.RemoteAddr,
		"subprotocol", c.info.Subprotocol, "encoding", c.info.Encoding)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	group, child := errgroup.WithContext(ctx)
	group.Go(func() error {
		return c.readLoop(child, onFrame)
	})
	group.Go(func() error {
		return c.writeLoop(child)
	})

	err := group.Wait()
	c.closed.Store(true)
	_ = c.raw.Close()

	reason := "connection closed"
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, io.EOF):
		reason = "connection closed by peer"
	default:
		reason = err.Error()
	}
	reason = c.closeReason(reason)
	c.logger.Debug("connection closed", "conn", c.info.ID, "addr", c.info.RemoteAddr, "reason", reason)
	return reason
}

// Send queues a frame, waiting at most the write timeout for buffer space.
// It implements etp.Sender.
func (c *Conn) Send(data []byte) error {
	return c.WriteTimeout(data, c.opts.writeTimeout)
}

// Write queues a frame without blocking.
//
// Returns:
//   - nil: frame was queued (not yet sent)
//   - ErrBufferFull: send buffer is full, frame was NOT queued
//   - ErrConnectionClosed: connection is closed
func (c *Conn) Write(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.sendMsg <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues a frame, blocking until there is buffer space, the
// connection closes or ctx is canceled.
func (c *Conn) WriteBlocking(ctx context.Context, data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.sendMsg <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues a frame, waiting at most timeout for buffer space.
func (c *Conn) WriteTimeout(data []byte, timeout time.Duration) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.sendMsg <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-timer.C:
		return ErrBufferFull
	}
}

// Close closes the connection after the frames already queued are written.
// It implements etp.Sender and is safe to call more than once.
func (c *Conn) Close(reason string) error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	c.reason = reason
	c.mu.Unlock()
	close(c.done)
	return nil
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// closeReason returns the reason given to Close, or fallback.
func (c *Conn) closeReason(fallback string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reason != "" {
		return c.reason
	}
	return fallback
}

// readLoop receives frames until the connection fails.
func (c *Conn) readLoop(ctx context.Context, onFrame func([]byte)) error {
	for {
		var data []byte
		if err := xws.Message.Receive(c.raw, &data); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "websocket: read")
		}
		onFrame(data)
	}
}

// writeLoop writes queued frames until ctx is done. The frames still
// queued then are written before the connection is closed, which also
// ends readLoop.
func (c *Conn) writeLoop(ctx context.Context) error {
	defer c.raw.Close()
	for {
		select {
		case <-ctx.Done():
			c.flush()
			return ctx.Err()
		case data := <-c.sendMsg:
			if err := c.write(data); err != nil {
				return err
			}
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case data := <-c.sendMsg:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// write sends one frame with a deadline.
func (c *Conn) write(data []byte) error {
	_ = c.raw.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))

	var err error
	if c.info.Encoding == etp.EncodingJSON {
		err = xws.Message.Send(c.raw, string(data))
	} else {
		err = xws.Message.Send(c.raw, data)
	}
	if err != nil {
		c.logger.Debug("write error", "conn", c.info.ID, "addr", c.info.RemoteAddr, "error", err)
		return errors.Wrap(err, "websocket: write")
	}
	return nil
}
