// remote_transport.go - Remote channel transports

package main

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// RemoteTransport moves opaque envelope bytes between the engine and the
// operator console. Transports are tried in preference order; every started
// transport carries the same traffic.
type RemoteTransport interface {
	Name() string
	Start() error
	Stop()
	Send(msg []byte) error
	OnReceive(fn func(msg []byte))
	Connected() bool
}

// LoopbackTransport is the in-process preferred transport: a buffered
// channel pair shared with a console running in the same process.
type LoopbackTransport struct {
	mu      sync.Mutex
	out     chan []byte
	in      chan []byte
	recv    func([]byte)
	stop    chan struct{}
	started bool
}

// NewLoopbackPair returns the two ends of an in-process duplex link.
func NewLoopbackPair() (*LoopbackTransport, *LoopbackTransport) {
	a := make(chan []byte, 64)
	b := make(chan []byte, 64)
	return &LoopbackTransport{out: a, in: b}, &LoopbackTransport{out: b, in: a}
}

func (t *LoopbackTransport) Name() string { return "loopback" }

func (t *LoopbackTransport) Start() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.stop = make(chan struct{})
	stop := t.stop
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-stop:
				return
			case msg, ok := <-t.in:
				if !ok {
					return
				}
				t.mu.Lock()
				recv := t.recv
				t.mu.Unlock()
				if recv != nil {
					recv(msg)
				}
			}
		}
	}()
	return nil
}

func (t *LoopbackTransport) Stop() {
	t.mu.Lock()
	if t.started {
		t.started = false
		close(t.stop)
	}
	t.mu.Unlock()
}

// Send never blocks; a full console queue drops the oldest style of
// traffic (state updates) rather than stalling the engine.
func (t *LoopbackTransport) Send(msg []byte) error {
	select {
	case t.out <- msg:
	default:
	}
	return nil
}

func (t *LoopbackTransport) OnReceive(fn func([]byte)) {
	t.mu.Lock()
	t.recv = fn
	t.mu.Unlock()
}

func (t *LoopbackTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Reconnect backoff bounds for the websocket fallback.
const (
	wsBackoffInitial = 1 * time.Second
	wsBackoffMax     = 30 * time.Second
)

// WebsocketTransport dials a known console URL and reconnects with
// exponential backoff. Messages sent while disconnected are dropped; the
// operator re-issues commands, the engine rebroadcasts state at 10 Hz
// anyway.
type WebsocketTransport struct {
	mu   sync.Mutex
	log  *logrus.Entry
	url  string
	conn *websocket.Conn
	recv func([]byte)
	stop chan struct{}
}

func NewWebsocketTransport(url string) *WebsocketTransport {
	return &WebsocketTransport{
		log: componentLog("remote").WithField("transport", "websocket"),
		url: url,
	}
}

func (t *WebsocketTransport) Name() string { return "websocket" }

func (t *WebsocketTransport) Start() error {
	t.mu.Lock()
	if t.stop != nil {
		t.mu.Unlock()
		return nil
	}
	t.stop = make(chan struct{})
	stop := t.stop
	t.mu.Unlock()

	go t.dialLoop(stop)
	return nil
}

func (t *WebsocketTransport) dialLoop(stop chan struct{}) {
	backoff := wsBackoffInitial
	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(t.url, nil)
		if err != nil {
			t.log.WithField("backoff", backoff).Debugf("dial: %v", err)
			select {
			case <-stop:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > wsBackoffMax {
				backoff = wsBackoffMax
			}
			continue
		}

		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		t.log.Info("console connected")
		backoff = wsBackoffInitial

		t.readLoop(conn, stop)

		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
		}
		t.mu.Unlock()
	}
}

func (t *WebsocketTransport) readLoop(conn *websocket.Conn, stop chan struct{}) {
	for {
		select {
		case <-stop:
			conn.Close()
			return
		default:
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}
		t.mu.Lock()
		recv := t.recv
		t.mu.Unlock()
		if recv != nil {
			recv(msg)
		}
	}
}

func (t *WebsocketTransport) Stop() {
	t.mu.Lock()
	stop := t.stop
	t.stop = nil
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	if conn != nil {
		conn.Close()
	}
}

func (t *WebsocketTransport) Send(msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil // disconnected; not queued
	}
	return t.conn.WriteMessage(websocket.TextMessage, msg)
}

func (t *WebsocketTransport) OnReceive(fn func([]byte)) {
	t.mu.Lock()
	t.recv = fn
	t.mu.Unlock()
}

func (t *WebsocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// DataChannelTransport rides the "control" data channel of the peer
// connection the operator console established for virtual MIDI.
type DataChannelTransport struct {
	mu   sync.Mutex
	log  *logrus.Entry
	dc   *webrtc.DataChannel
	recv func([]byte)
}

func NewDataChannelTransport() *DataChannelTransport {
	return &DataChannelTransport{
		log: componentLog("remote").WithField("transport", "datachannel"),
	}
}

// Bind attaches an opened data channel. Called from the WebRTC MIDI
// source's control-channel hook.
func (t *DataChannelTransport) Bind(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.dc = dc
	t.mu.Unlock()

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.Lock()
		recv := t.recv
		t.mu.Unlock()
		if recv != nil {
			recv(msg.Data)
		}
	})
	dc.OnClose(func() {
		t.mu.Lock()
		if t.dc == dc {
			t.dc = nil
		}
		t.mu.Unlock()
		t.log.Info("control channel closed")
	})
	t.log.Info("control channel bound")
}

func (t *DataChannelTransport) Name() string { return "datachannel" }
func (t *DataChannelTransport) Start() error { return nil }

func (t *DataChannelTransport) Stop() {
	t.mu.Lock()
	dc := t.dc
	t.dc = nil
	t.mu.Unlock()
	if dc != nil {
		dc.Close()
	}
}

func (t *DataChannelTransport) Send(msg []byte) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	if dc == nil {
		return nil
	}
	return dc.SendText(string(msg))
}

func (t *DataChannelTransport) OnReceive(fn func([]byte)) {
	t.mu.Lock()
	t.recv = fn
	t.mu.Unlock()
}

func (t *DataChannelTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dc != nil
}
