package websocket

import (
	"net/http"
	"time"

	"github.com/Zereker/etp"
)

// options holds the configuration for connections and transports.
type options struct {
	logger etp.Logger

	bufferSize      int           // size of the buffered send channel
	maxPayloadBytes int           // maximum size of a single frame
	writeTimeout    time.Duration // how long Send waits for buffer space
	shutdownTimeout time.Duration // how long Stop waits for the HTTP server

	path     string // server: URL path the endpoint is served on
	encoding string // client: encoding asked for in the handshake
	origin   string // client: Origin header
	header   http.Header
}

// Option is a function that configures connection options.
type Option func(*options)

// Default configuration values.
const (
	defaultBufferSize      = 64
	defaultMaxPayloadBytes = 16 * 1024 * 1024
	defaultWriteTimeout    = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultPath            = "/"
	defaultOrigin          = "http://localhost/"
)

func newOptions(opt ...Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)
	return opts
}

// checkOptions sets default values for options.
func checkOptions(opts *options) {
	if opts.logger == nil {
		opts.logger = etp.NopLogger()
	}
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}
	if opts.maxPayloadBytes <= 0 {
		opts.maxPayloadBytes = defaultMaxPayloadBytes
	}
	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}
	if opts.shutdownTimeout <= 0 {
		opts.shutdownTimeout = defaultShutdownTimeout
	}
	if opts.path == "" {
		opts.path = defaultPath
	}
	if opts.encoding == "" {
		opts.encoding = etp.EncodingBinary
	}
	if opts.origin == "" {
		opts.origin = defaultOrigin
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, nothing is logged.
func LoggerOption(logger etp.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
// A larger buffer allows more frames to be queued before Send waits.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// MaxPayloadOption returns an Option that sets the maximum frame size.
// Larger frames close the connection.
func MaxPayloadOption(size int) Option {
	return func(o *options) {
		o.maxPayloadBytes = size
	}
}

// WriteTimeoutOption returns an Option that sets how long a send waits for
// buffer space before failing with ErrBufferFull.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// ShutdownTimeoutOption returns an Option that bounds how long Stop waits
// for the HTTP server to shut down.
func ShutdownTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = timeout
	}
}

// PathOption returns an Option that sets the URL path a Transport serves.
func PathOption(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// EncodingOption returns an Option that sets the encoding a client asks
// for: etp.EncodingBinary or etp.EncodingJSON.
func EncodingOption(encoding string) Option {
	return func(o *options) {
		o.encoding = encoding
	}
}

// OriginOption returns an Option that sets the Origin header a client sends.
func OriginOption(origin string) Option {
	return func(o *options) {
		o.origin = origin
	}
}

// HeaderOption returns an Option that adds handshake headers a client
// sends, e.g. Authorization.
func HeaderOption(header http.Header) Option {
	return func(o *options) {
		if o.header == nil {
			o.header = make(http.Header)
		}
		for k, v := range header {
			o.header[k] = append(o.header[k], v...)
		}
	}
}
