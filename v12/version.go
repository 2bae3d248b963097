package v12

import (
	"github.com/pkg/errors"

	"github.com/Zereker/etp"
	"github.com/Zereker/etp/avrocodec"
	"github.com/Zereker/etp/jsoncodec"
)

// NewVersion returns ETP 1.2 as served by a server: both encodings and
// a CoreServer for every session.
func NewVersion() (etp.Version, error) {
	bin, err := avrocodec.New(Schemas())
	if err != nil {
		return etp.Version{}, errors.Wrap(err, "v12: build binary codec")
	}
	return etp.Version{
		Name:   SubProtocol,
		Binary: bin,
		JSON:   jsoncodec.New(),
		Core:   func() etp.ProtocolHandler { return NewCoreServer() },
	}, nil
}

// ServerHandlers returns factories for the handlers a server plays: store
// and channel producer.
func ServerHandlers() []etp.HandlerFactory {
	return []etp.HandlerFactory{
		func() etp.ProtocolHandler { return NewStoreHandler() },
		func() etp.ProtocolHandler { return NewProducerHandler() },
	}
}

// ClientHandlers returns factories for the handlers a client plays:
// customer and channel consumer.
func ClientHandlers() []etp.HandlerFactory {
	return []etp.HandlerFactory{
		func() etp.ProtocolHandler { return NewCustomerHandler() },
		func() etp.ProtocolHandler { return NewConsumerHandler() },
	}
}

// Codec returns the codec for encoding.
func Codec(encoding string) (etp.Codec, error) {
	switch encoding {
	case "", etp.EncodingBinary:
		return avrocodec.New(Schemas())
	case etp.EncodingJSON:
		return jsoncodec.New(), nil
	default:
		return nil, errors.Wrapf(etp.ErrInvalidCodec, "encoding %q", encoding)
	}
}

// NewClientSession builds the client end of a session over sender: a
// CoreClient plus the given handlers. The caller sends RequestSession
// once the connection is up.
func NewClientSession(info etp.ConnInfo, sender etp.Sender, handlers []etp.ProtocolHandler, opts ...etp.Option) (*etp.Session, *CoreClient, error) {
	if info.Subprotocol == "" {
		info.Subprotocol = SubProtocol
	}
	codec, err := Codec(info.Encoding)
	if err != nil {
		return nil, nil, err
	}
	core := NewCoreClient()
	s, err := etp.NewSession(info, sender, codec, core, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Register(handlers...); err != nil {
		_ = s.Close(err.Error())
		return nil, nil, err
	}
	return s, core, nil
}
