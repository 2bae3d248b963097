package etp

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

// mockCodec encodes headers as fixed 28 byte big-endian records and bodies
// as JSON.
type mockCodec struct{}

const mockHeaderLen = 28

func (mockCodec) Name() string { return EncodingBinary }

func (mockCodec) EncodeHeader(h MessageHeader) ([]byte, error) {
	buf := make([]byte, mockHeaderLen)
	binary.BigEndian.PutUint32(buf[0:], uint32(h.Protocol))
	binary.BigEndian.PutUint32(buf[4:], uint32(h.MessageType))
	binary.BigEndian.PutUint64(buf[8:], uint64(h.CorrelationID))
	binary.BigEndian.PutUint64(buf[16:], uint64(h.MessageID))
	binary.BigEndian.PutUint32(buf[24:], uint32(h.MessageFlags))
	return buf, nil
}

func (mockCodec) DecodeHeader(frame []byte) (MessageHeader, []byte, error) {
	if len(frame) < mockHeaderLen {
		return MessageHeader{}, nil, errors.New("short header")
	}
	return MessageHeader{
		Protocol:      int32(binary.BigEndian.Uint32(frame[0:])),
		MessageType:   int32(binary.BigEndian.Uint32(frame[4:])),
		CorrelationID: int64(binary.BigEndian.Uint64(frame[8:])),
		MessageID:     int64(binary.BigEndian.Uint64(frame[16:])),
		MessageFlags:  MessageFlags(binary.BigEndian.Uint32(frame[24:])),
	}, frame[mockHeaderLen:], nil
}

func (mockCodec) EncodeBody(_ MessageKey, v any) ([]byte, error) {
	return json.Marshal(v)
}

func (mockCodec) DecodeBody(_ MessageKey, data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// jsonMockCodec is mockCodec reporting the JSON encoding.
type jsonMockCodec struct{ mockCodec }

func (jsonMockCodec) Name() string { return EncodingJSON }

// mockSender records the frames a session writes.
type mockSender struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	closes int
	reason string
	err    error
}

func (s *mockSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sender closed")
	}
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *mockSender) Close(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.closed = true
	s.reason = reason
	return nil
}

func (s *mockSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// header decodes the header of the i-th frame written.
func (s *mockSender) header(t *testing.T, i int) (MessageHeader, []byte) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.frames) {
		t.Fatalf("frame %d not written, have %d", i, len(s.frames))
	}
	h, body, err := mockCodec{}.DecodeHeader(s.frames[i])
	if err != nil {
		t.Fatalf("decode frame %d: %v", i, err)
	}
	return h, body
}

const (
	testProtocol     int32 = 7
	typeEchoRequest  int32 = 1
	typeEchoResponse int32 = 2
	typeChunk        int32 = 3
)

type echoRequest struct {
	Text string `json:"text"`
}

type echoResponse struct {
	Text string `json:"text"`
}

type chunk struct {
	Seq int `json:"seq"`
}

// echoHandler answers every echo request with a response carrying the
// request text, unless a listener changes the response or cancels it.
type echoHandler struct {
	*Handler

	OnRequest  Hook[echoRequest, echoResponse]
	OnResponse Hook[echoResponse, struct{}]
	OnChunk    Hook[chunk, struct{}]
}

func newEchoHandler() *echoHandler {
	h := &echoHandler{Handler: NewHandler(testProtocol, "echoer", "caller")}
	Handle(h.Handler, typeEchoRequest, "EchoRequest", &h.OnRequest, nil, h.respond)
	Handle(h.Handler, typeEchoResponse, "EchoResponse", &h.OnResponse, nil, nil)
	Handle(h.Handler, typeChunk, "Chunk", &h.OnChunk, nil, nil)
	return h
}

func (h *echoHandler) respond(ev *Event[echoRequest, echoResponse]) error {
	if ev.Context.Text == "" {
		ev.Context.Text = ev.Message.Text
	}
	_, err := h.Send(typeEchoResponse, ev.Header.MessageID, FinalPart, ev.Context)
	return err
}

type coreHandler struct {
	*Handler
}

func newCoreHandler() *coreHandler {
	return &coreHandler{Handler: NewHandler(CoreProtocol, "server", "client")}
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *mockSender, *echoHandler) {
	t.Helper()
	sender := &mockSender{}
	opts = append([]Option{LoggerOption(NopLogger())}, opts...)
	s, err := NewSession(ConnInfo{ID: "test", Encoding: EncodingBinary}, sender, mockCodec{}, newCoreHandler(), opts...)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	echo := newEchoHandler()
	if err := s.Register(echo); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return s, sender, echo
}

// frame builds an inbound frame.
func frame(t *testing.T, h MessageHeader, body any) []byte {
	t.Helper()
	c := mockCodec{}
	head, err := c.EncodeHeader(h)
	if err != nil {
		t.Fatal(err)
	}
	if body == nil {
		return head
	}
	data, err := c.EncodeBody(h.Key(), body)
	if err != nil {
		t.Fatal(err)
	}
	return joinFrame(c, head, data)
}
