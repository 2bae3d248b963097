package etp

import "context"

// Encodings a connection may negotiate.
const (
	EncodingBinary = "binary"
	EncodingJSON   = "json"
)

// ConnInfo describes one transport connection.
type ConnInfo struct {
	// ID identifies the connection within its transport.
	ID string
	// Subprotocol is the negotiated WebSocket sub-protocol, which names the ETP version.
	Subprotocol string
	// Encoding is EncodingBinary or EncodingJSON.
	Encoding   string
	RemoteAddr string

	// ApplicationName and ApplicationVersion describe the local application.
	ApplicationName    string
	ApplicationVersion string
}

// Sender is a session's view of its connection.
type Sender interface {
	// Send writes one frame.
	Send(data []byte) error
	// Close closes the connection. It must be safe to call more than once.
	Close(reason string) error
}

// TransportListener receives connection events from a Transport. Events
// for one connection arrive one at a time; events for different
// connections may arrive concurrently.
type TransportListener interface {
	OnConnected(info ConnInfo)
	OnDataReceived(connID string, data []byte)
	OnDisconnected(connID string, reason string)
}

// Transport accepts connections and moves frames for a Server.
type Transport interface {
	// Bind sets the listener that receives connection events. It is called
	// once, before Start.
	Bind(l TransportListener)
	// Start begins accepting connections.
	Start(ctx context.Context) error
	// Stop stops accepting connections and closes the live ones.
	Stop() error
	// Send writes one frame to the connection connID.
	Send(connID string, data []byte) error
	// Disconnect closes the connection connID.
	Disconnect(connID string, reason string) error
}

// Version binds a WebSocket sub-protocol name to the codecs and the
// control handler used for sessions speaking it.
type Version struct {
	Name   string
	Binary Codec
	JSON   Codec
	Core   HandlerFactory
}

// codec returns the codec for encoding.
func (v Version) codec(encoding string) Codec {
	if encoding == EncodingJSON {
		return v.JSON
	}
	return v.Binary
}

// connSender writes to one connection of a Transport.
type connSender struct {
	transport Transport
	connID    string
}

func (c connSender) Send(data []byte) error {
	return c.transport.Send(c.connID, data)
}

func (c connSender) Close(reason string) error {
	return c.transport.Disconnect(c.connID, reason)
}
