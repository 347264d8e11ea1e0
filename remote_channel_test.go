package main

import (
	"encoding/json"
	"testing"
	"time"
)

// newTestChannel wires a RemoteChannel over one end of a loopback pair and
// hands back the console end plus a capture channel for its traffic.
func newTestChannel(t *testing.T) (*RemoteChannel, *LoopbackTransport, chan []byte) {
	t.Helper()
	local, console := NewLoopbackPair()
	ch := NewRemoteChannel(local)

	got := make(chan []byte, 16)
	console.OnReceive(func(msg []byte) { got <- msg })
	if err := console.Start(); err != nil {
		t.Fatalf("console start: %v", err)
	}
	ch.Start()
	t.Cleanup(func() {
		ch.Stop()
		console.Stop()
	})
	return ch, console, got
}

func waitEnvelope(t *testing.T, got chan []byte) typeEnvelope {
	t.Helper()
	select {
	case raw := <-got:
		var env typeEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("no envelope within a second")
		return typeEnvelope{}
	}
}

// TestLoopbackRoundTrip verifies both directions of the in-process link.
func TestLoopbackRoundTrip(t *testing.T) {
	ch, console, got := newTestChannel(t)

	cmds := make(chan string, 1)
	ch.OnCommand(func(cmd string, _ json.RawMessage) { cmds <- cmd })

	ch.Send(MsgPresetList, []string{"alpha", "beta"})
	env := waitEnvelope(t, got)
	if env.Type != MsgPresetList {
		t.Fatalf("type = %q, expected %q", env.Type, MsgPresetList)
	}

	console.Send([]byte(`{"command":"requestState","data":{}}`))
	select {
	case cmd := <-cmds:
		if cmd != "requestState" {
			t.Fatalf("command = %q, expected requestState", cmd)
		}
	case <-time.After(time.Second):
		t.Fatalf("command never dispatched")
	}
}

// TestDispatchPrecedence verifies a mixed envelope is treated as a command,
// not a negotiation message.
func TestDispatchPrecedence(t *testing.T) {
	ch, console, _ := newTestChannel(t)

	cmds := make(chan string, 1)
	types := make(chan string, 1)
	ch.OnCommand(func(cmd string, _ json.RawMessage) { cmds <- cmd })
	ch.OnMessage(func(typ string, _ json.RawMessage) { types <- typ })

	console.Send([]byte(`{"command":"blackScreen","type":"webrtcMidiConnect"}`))
	select {
	case cmd := <-cmds:
		if cmd != "blackScreen" {
			t.Fatalf("command = %q, expected blackScreen", cmd)
		}
	case typ := <-types:
		t.Fatalf("dispatched as type %q, expected command path", typ)
	case <-time.After(time.Second):
		t.Fatalf("envelope never dispatched")
	}
}

// TestStatusEnvelope verifies the operator notification shape.
func TestStatusEnvelope(t *testing.T) {
	ch, _, got := newTestChannel(t)

	ch.Status(StatusError, "stream unreachable")
	env := waitEnvelope(t, got)
	if env.Type != MsgStatusMessage {
		t.Fatalf("type = %q, expected %q", env.Type, MsgStatusMessage)
	}

	raw, _ := json.Marshal(env.Data)
	var p statusPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal status payload: %v", err)
	}
	if p.Level != StatusError || p.Message != "stream unreachable" {
		t.Fatalf("payload = %+v", p)
	}
}

// TestMalformedEnvelopeIgnored verifies garbage does not wedge dispatch.
func TestMalformedEnvelopeIgnored(t *testing.T) {
	ch, console, _ := newTestChannel(t)

	cmds := make(chan string, 1)
	ch.OnCommand(func(cmd string, _ json.RawMessage) { cmds <- cmd })

	console.Send([]byte(`{not json`))
	console.Send([]byte(`{"command":"requestState"}`))
	select {
	case cmd := <-cmds:
		if cmd != "requestState" {
			t.Fatalf("command = %q, expected requestState", cmd)
		}
	case <-time.After(time.Second):
		t.Fatalf("valid envelope after garbage never dispatched")
	}
}
