package etp

import (
	"encoding/json"
	"errors"
	"testing"
)

func decodeBody[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode body %q: %v", data, err)
	}
	return v
}

func echoRequestFrame(t *testing.T, id int64, text string) []byte {
	return frame(t, MessageHeader{
		Protocol:     testProtocol,
		MessageType:  typeEchoRequest,
		MessageID:    id,
		MessageFlags: FinalPart,
	}, echoRequest{Text: text})
}

func TestHandler_AutoResponse(t *testing.T) {
	s, sender, echo := newTestSession(t)

	var seen []string
	echo.OnRequest.Listen(func(ev *Event[echoRequest, echoResponse]) {
		seen = append(seen, ev.Message.Text)
	})

	if err := s.OnDataReceived(echoRequestFrame(t, 4, "hi")); err != nil {
		t.Fatalf("OnDataReceived failed: %v", err)
	}
	if len(seen) != 1 || seen[0] != "hi" {
		t.Errorf("listener saw %v", seen)
	}
	if sender.count() != 1 {
		t.Fatalf("frames sent = %d, want 1", sender.count())
	}

	h, body := sender.header(t, 0)
	want := MessageHeader{Protocol: testProtocol, MessageType: typeEchoResponse, CorrelationID: 4, MessageID: 1, MessageFlags: FinalPart}
	if h != want {
		t.Errorf("header = %s, want %s", h, want)
	}
	if got := decodeBody[echoResponse](t, body); got.Text != "hi" {
		t.Errorf("response text = %q, want hi", got.Text)
	}
}

func TestHandler_ListenerFillsContext(t *testing.T) {
	s, sender, echo := newTestSession(t)
	echo.OnRequest.Listen(func(ev *Event[echoRequest, echoResponse]) {
		ev.Context.Text = "filled"
	})

	_ = s.OnDataReceived(echoRequestFrame(t, 2, "hi"))

	_, body := sender.header(t, 0)
	if got := decodeBody[echoResponse](t, body); got.Text != "filled" {
		t.Errorf("response text = %q, want filled", got.Text)
	}
}

func TestHandler_CancelSuppressesResponse(t *testing.T) {
	s, sender, echo := newTestSession(t)
	echo.OnRequest.Listen(func(ev *Event[echoRequest, echoResponse]) {
		ev.Cancel = true
		if _, err := echo.ProtocolException(ErrorCodeNotFound, "nothing to echo", ev.Header.MessageID); err != nil {
			t.Errorf("ProtocolException failed: %v", err)
		}
	})

	_ = s.OnDataReceived(echoRequestFrame(t, 6, "hi"))

	if sender.count() != 1 {
		t.Fatalf("frames sent = %d, want only the exception", sender.count())
	}
	h, body := sender.header(t, 0)
	if h.MessageType != MessageTypeProtocolException || h.CorrelationID != 6 {
		t.Errorf("header = %s, want an exception correlated to 6", h)
	}
	if got := decodeBody[ProtocolException](t, body); got.ErrorCode != ErrorCodeNotFound {
		t.Errorf("error code = %d", got.ErrorCode)
	}
}

func TestHandler_OverrideRunsAfterListeners(t *testing.T) {
	s, sender, echo := newTestSession(t)
	echo.OnRequest.Listen(func(ev *Event[echoRequest, echoResponse]) {
		ev.Context.Text = "listener"
	})
	echo.OnRequest.Override(func(ev *Event[echoRequest, echoResponse]) {
		ev.Context.Text += "+reaction"
	})

	_ = s.OnDataReceived(echoRequestFrame(t, 2, "hi"))

	_, body := sender.header(t, 0)
	if got := decodeBody[echoResponse](t, body); got.Text != "listener+reaction" {
		t.Errorf("response text = %q", got.Text)
	}
}

func TestHandler_UnknownMessageType(t *testing.T) {
	s, sender, echo := newTestSession(t)

	var got []Unknown
	echo.OnUnknown(func(u Unknown) { got = append(got, u) })

	err := s.OnDataReceived(frame(t, MessageHeader{
		Protocol: testProtocol, MessageType: 99, MessageID: 1, MessageFlags: FinalPart,
	}, map[string]int{"x": 1}))
	if err != nil {
		t.Fatalf("OnDataReceived failed: %v", err)
	}
	if len(got) != 1 || got[0].Header.MessageType != 99 || string(got[0].Raw) != `{"x":1}` {
		t.Errorf("unknown = %+v", got)
	}
	if sender.count() != 0 {
		t.Errorf("frames sent = %d, want 0", sender.count())
	}
	if !s.IsOpen() {
		t.Error("session closed by an unknown message type")
	}
	if echo.Supports(99) || !echo.Supports(typeChunk) {
		t.Error("Supports reports the wrong routes")
	}
	if echo.MessageName(99) != "Unknown" || echo.MessageName(typeEchoRequest) != "EchoRequest" {
		t.Error("MessageName reports the wrong names")
	}
}

func TestHandler_ProtocolExceptionHook(t *testing.T) {
	s, _, echo := newTestSession(t)

	var got []ProtocolException
	echo.OnProtocolException.Listen(func(ev *Event[ProtocolException, struct{}]) {
		got = append(got, ev.Message)
	})

	_ = s.OnDataReceived(frame(t, MessageHeader{
		Protocol: testProtocol, MessageType: MessageTypeProtocolException, MessageID: 1, CorrelationID: 3, MessageFlags: FinalPart,
	}, ProtocolException{ErrorCode: ErrorCodeInvalidArgument, ErrorMessage: "bad"}))

	if len(got) != 1 || got[0].ErrorCode != ErrorCodeInvalidArgument || got[0].ErrorMessage != "bad" {
		t.Errorf("exceptions = %+v", got)
	}
}

func TestHandler_Acknowledge(t *testing.T) {
	s, sender, echo := newTestSession(t)

	id, err := echo.Acknowledge(12)
	if err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	h, body := sender.header(t, 0)
	if h.MessageID != id || h.CorrelationID != 12 || h.MessageType != MessageTypeAcknowledge {
		t.Errorf("header = %s", h)
	}
	if h.MessageFlags != FinalPart|NoData {
		t.Errorf("flags = %s, want FinalPart|NoData", h.MessageFlags)
	}
	if len(body) != 0 {
		t.Errorf("body = %q, want empty", body)
	}

	var acks int
	echo.OnAcknowledge.Listen(func(*Event[Acknowledge, struct{}]) { acks++ })
	_ = s.OnDataReceived(frame(t, MessageHeader{
		Protocol: testProtocol, MessageType: MessageTypeAcknowledge, MessageID: 1, CorrelationID: id, MessageFlags: FinalPart | NoData,
	}, nil))
	if acks != 1 {
		t.Errorf("acks = %d, want 1", acks)
	}
}

func TestHandler_Detached(t *testing.T) {
	h := newEchoHandler()

	if h.Session() != nil {
		t.Error("detached handler has a session")
	}
	if _, err := h.Send(typeChunk, 0, FinalPart, chunk{}); !errors.Is(err, ErrHandlerDetached) {
		t.Errorf("Send = %v, want ErrHandlerDetached", err)
	}
	if _, err := h.Request(typeEchoRequest, echoRequest{}); !errors.Is(err, ErrHandlerDetached) {
		t.Errorf("Request = %v, want ErrHandlerDetached", err)
	}
	if _, err := h.SendMessage(MessageHeader{}, nil); !errors.Is(err, ErrHandlerDetached) {
		t.Errorf("SendMessage = %v, want ErrHandlerDetached", err)
	}
	if _, err := h.NewMultiPartWriter(typeChunk, 0).Write(chunk{}); !errors.Is(err, ErrHandlerDetached) {
		t.Errorf("writer = %v, want ErrHandlerDetached", err)
	}
}

func TestHandler_InUse(t *testing.T) {
	s1, _, echo := newTestSession(t)
	s2, err := NewSession(ConnInfo{ID: "other"}, &mockSender{}, mockCodec{}, newCoreHandler(), LoggerOption(NopLogger()))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if err := s2.Register(echo); !errors.Is(err, ErrHandlerInUse) {
		t.Errorf("Register = %v, want ErrHandlerInUse", err)
	}
	if echo.Session() != s1 {
		t.Error("handler moved to the second session")
	}
	if _, ok := s2.Handler(testProtocol); ok {
		t.Error("second session registered the handler")
	}
}

func TestHandler_CreateMessageHeader(t *testing.T) {
	_, _, echo := newTestSession(t)

	h, err := echo.CreateMessageHeader(typeChunk, 5, FlagNone)
	if err != nil {
		t.Fatalf("CreateMessageHeader failed: %v", err)
	}
	want := MessageHeader{Protocol: testProtocol, MessageType: typeChunk, CorrelationID: 5, MessageID: 1, MessageFlags: FinalPart}
	if h != want {
		t.Errorf("header = %s, want %s", h, want)
	}
}

func TestMultiPartWriter_Unsolicited(t *testing.T) {
	_, sender, echo := newTestSession(t)

	w := echo.NewMultiPartWriter(typeChunk, 0)
	for i := 0; i < 2; i++ {
		if _, err := w.Write(chunk{Seq: i}); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}
	last, err := w.Close(chunk{Seq: 2})
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := w.Close(nil); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("second Close = %v, want ErrWriterClosed", err)
	}

	if w.FirstID() != 1 {
		t.Errorf("FirstID = %d, want 1", w.FirstID())
	}
	wantCorr := []int64{0, 1, 1}
	wantFlags := []MessageFlags{MultiPart, MultiPart, MultiPartAndFinalPart}
	for i := 0; i < 3; i++ {
		h, body := sender.header(t, i)
		if h.MessageID != int64(i+1) || h.CorrelationID != wantCorr[i] || h.MessageFlags != wantFlags[i] {
			t.Errorf("part %d header = %s", i, h)
		}
		if got := decodeBody[chunk](t, body); got.Seq != i {
			t.Errorf("part %d seq = %d", i, got.Seq)
		}
	}
	if last != 3 {
		t.Errorf("last id = %d, want 3", last)
	}
}

func TestMultiPartWriter_Answer(t *testing.T) {
	_, sender, echo := newTestSession(t)

	w := echo.NewMultiPartWriter(typeChunk, 9)
	_, _ = w.Write(chunk{Seq: 0})
	if _, err := w.Close(nil); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if h, _ := sender.header(t, i); h.CorrelationID != 9 {
			t.Errorf("part %d correlation = %d, want 9", i, h.CorrelationID)
		}
	}
	if h, body := sender.header(t, 1); h.MessageFlags != MultiPartAndFinalPart|NoData || len(body) != 0 {
		t.Errorf("final part = %s with %d body bytes", h, len(body))
	}
}

func TestHandler_OnComplete(t *testing.T) {
	s, _, echo := newTestSession(t)

	var (
		parts     []int
		exchanges []*Exchange
	)
	echo.OnChunk.Listen(func(ev *Event[chunk, struct{}]) { parts = append(parts, ev.Message.Seq) })
	echo.OnComplete(func(ex *Exchange) { exchanges = append(exchanges, ex) })

	headers := []MessageHeader{
		{Protocol: testProtocol, MessageType: typeChunk, MessageID: 40, MessageFlags: MultiPart},
		{Protocol: testProtocol, MessageType: typeChunk, MessageID: 41, CorrelationID: 40, MessageFlags: MultiPart},
		{Protocol: testProtocol, MessageType: typeChunk, MessageID: 42, CorrelationID: 40, MessageFlags: MultiPartAndFinalPart},
	}
	for i, h := range headers {
		if err := s.OnDataReceived(frame(t, h, chunk{Seq: i})); err != nil {
			t.Fatalf("part %d: %v", i, err)
		}
		if i < 2 && len(exchanges) != 0 {
			t.Fatalf("exchange completed after part %d", i)
		}
	}

	if len(parts) != 3 {
		t.Errorf("parts delivered = %v, want 3", parts)
	}
	if len(exchanges) != 1 {
		t.Fatalf("exchanges = %d, want 1", len(exchanges))
	}
	got := Bodies[chunk](exchanges[0])
	for i, c := range got {
		if c.Seq != i {
			t.Errorf("part %d out of order: %d", i, c.Seq)
		}
	}
	if exchanges[0].Key.CorrelationID != 40 {
		t.Errorf("exchange key = %+v", exchanges[0].Key)
	}
}

func TestHandler_OnClose(t *testing.T) {
	s, _, echo := newTestSession(t)

	var reasons []string
	echo.OnClose(func(reason string) { reasons = append(reasons, reason) })

	_ = s.Close("done")
	_ = s.Close("again")

	if len(reasons) != 1 || reasons[0] != "done" {
		t.Errorf("reasons = %v, want [done]", reasons)
	}
}
