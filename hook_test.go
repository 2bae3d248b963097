package etp

import "testing"

func TestHook_ListenersThenReaction(t *testing.T) {
	var (
		hook  Hook[echoRequest, echoResponse]
		order []string
	)
	hook.Listen(func(ev *Event[echoRequest, echoResponse]) {
		order = append(order, "first")
		ev.Context.Text = ev.Message.Text + "!"
	})
	hook.Listen(func(ev *Event[echoRequest, echoResponse]) {
		order = append(order, "second")
	})
	hook.Override(func(ev *Event[echoRequest, echoResponse]) {
		order = append(order, "react:"+ev.Context.Text)
	})
	hook.Listen(nil)

	if hook.Len() != 2 {
		t.Errorf("Len() = %d, want 2", hook.Len())
	}

	ev := hook.fire(MessageHeader{MessageID: 3}, echoRequest{Text: "hi"}, echoResponse{})
	want := []string{"first", "second", "react:hi!"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if ev.Header.MessageID != 3 || ev.Context.Text != "hi!" || ev.Cancel {
		t.Errorf("event = %+v", ev)
	}
}

func TestHook_OverrideReplaces(t *testing.T) {
	var (
		hook  Hook[chunk, struct{}]
		calls []int
	)
	hook.Override(func(*Event[chunk, struct{}]) { calls = append(calls, 1) })
	hook.Override(func(*Event[chunk, struct{}]) { calls = append(calls, 2) })
	hook.fire(MessageHeader{}, chunk{}, struct{}{})

	if len(calls) != 1 || calls[0] != 2 {
		t.Errorf("calls = %v, want [2]", calls)
	}

	hook.Override(nil)
	hook.fire(MessageHeader{}, chunk{}, struct{}{})
	if len(calls) != 1 {
		t.Errorf("nil reaction still called: %v", calls)
	}
}

func TestHook_Cancel(t *testing.T) {
	var hook Hook[chunk, struct{}]
	hook.Listen(func(ev *Event[chunk, struct{}]) { ev.Cancel = true })

	if ev := hook.fire(MessageHeader{}, chunk{}, struct{}{}); !ev.Cancel {
		t.Error("Cancel set by listener was lost")
	}
}
