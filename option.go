package etp

// ErrorAction defines the action to take when a session reports an error.
type ErrorAction int

const (
	// Continue keeps the session open; the offending frame is dropped.
	Continue ErrorAction = iota
	// Disconnect closes the session.
	Disconnect
)

// options holds the configuration for a session.
type options struct {
	logger Logger

	// onError is called for every error a session reports.
	// Returns Disconnect to close the session, Continue to keep it open.
	// Frame decode errors close the session whatever it returns.
	onError func(error) ErrorAction

	strictCorrelation    bool
	maxParts             int   // parts per multi-part exchange, 0 for no limit
	maxMessageID         int64 // largest id handed out before exhaustion
	wrapMessageIDs       bool
	compressionThreshold int // compress bodies of at least this many bytes, 0 disables
}

// Option is a function that configures session options.
type Option func(*options)

// checkOptions sets default values for session options.
func checkOptions(opts *options) {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
	if opts.onError == nil {
		opts.onError = func(error) ErrorAction { return Continue }
	}
	if opts.maxParts < 0 {
		opts.maxParts = 0
	}
	if opts.compressionThreshold < 0 {
		opts.compressionThreshold = 0
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// OnErrorOption returns an Option that sets the error callback.
// The callback is invoked for decode, dispatch and correlation errors.
// Return Disconnect to close the session, or Continue to drop the frame.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// StrictCorrelationOption returns an Option that rejects messages whose
// correlation id matches neither a pending multi-part message nor a request
// sent with SendRequest. By default such messages start a new exchange.
func StrictCorrelationOption(strict bool) Option {
	return func(o *options) {
		o.strictCorrelation = strict
	}
}

// MaxPartsOption returns an Option that limits the number of parts one
// multi-part message may have before it is dropped.
func MaxPartsOption(n int) Option {
	return func(o *options) {
		o.maxParts = n
	}
}

// MaxMessageIDOption returns an Option that sets the largest message id
// the session hands out.
func MaxMessageIDOption(max int64) Option {
	return func(o *options) {
		o.maxMessageID = max
	}
}

// WrapMessageIDsOption returns an Option that restarts message ids at 1
// once the largest id was used, instead of failing.
func WrapMessageIDsOption(wrap bool) Option {
	return func(o *options) {
		o.wrapMessageIDs = wrap
	}
}

// CompressionOption returns an Option that gzip compresses outgoing bodies
// of at least threshold bytes. Sessions using the JSON encoding never
// compress.
func CompressionOption(threshold int) Option {
	return func(o *options) {
		o.compressionThreshold = threshold
	}
}
