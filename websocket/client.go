package websocket

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
	xws "golang.org/x/net/websocket"

	"github.com/Zereker/etp"
)

var clientIDs atomic.Int64

// Dial opens a client connection to url offering subprotocol. The returned
// Conn is an etp.Sender; hand it to a session and call Serve.
func Dial(ctx context.Context, url, subprotocol string, opt ...Option) (*Conn, error) {
	opts := newOptions(opt...)

	cfg, err := xws.NewConfig(url, opts.origin)
	if err != nil {
		return nil, errors.Wrapf(err, "websocket: dial %s", url)
	}
	if subprotocol != "" {
		cfg.Protocol = []string{subprotocol}
	}
	for k, v := range opts.header {
		cfg.Header[k] = append(cfg.Header[k], v...)
	}
	cfg.Header.Set(EncodingHeader, opts.encoding)

	raw, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "websocket: dial %s", url)
	}

	info := etp.ConnInfo{
		ID:          "client-" + strconv.FormatInt(clientIDs.Add(1), 10),
		Subprotocol: subprotocol,
		Encoding:    opts.encoding,
		RemoteAddr:  cfg.Location.Host,
	}
	if len(raw.Config().Protocol) > 0 {
		info.Subprotocol = raw.Config().Protocol[0]
	}
	opts.logger.Info("websocket connected", "url", url, "subprotocol", info.Subprotocol, "encoding", info.Encoding)
	return newConn(raw, info, opts), nil
}

// Serve runs the connection for session s until either closes or ctx is
// canceled. Every received frame goes to s; when the connection ends s is
// closed with the reason.
func (c *Conn) Serve(ctx context.Context, s *etp.Session) error {
	reason := c.Run(ctx, func(data []byte) {
		_ = s.OnDataReceived(data)
	})
	_ = s.Close(reason)
	return ctx.Err()
}
