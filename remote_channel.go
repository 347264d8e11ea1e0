// remote_channel.go - Duplex envelope channel to the operator console

package main

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Envelope types sent to the console.
const (
	MsgStateUpdate        = "stateUpdate"
	MsgPresetList         = "presetList"
	MsgStreamStats        = "streamStats"
	MsgStatusMessage      = "statusMessage"
	MsgMediaFeedSuccess   = "mediaFeedSuccess"
	MsgMediaFeedError     = "mediaFeedError"
	MsgWebRTCMidiAnswer   = "webrtcMidiAnswer"
	MsgWebRTCMidiRoles    = "webrtcMidiActiveRoles"
	MsgWebRTCConnected    = "webrtcEndpointConnected"
	MsgWebRTCDisconnected = "webrtcEndpointDisconnected"
)

// typeEnvelope is the engine-to-console message shape, also used by the
// console for peer negotiation messages.
type typeEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// commandEnvelope is the console-to-engine message shape.
type commandEnvelope struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// statusPayload carries operator-visible notifications.
type statusPayload struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// RemoteChannel multiplexes the transports: loopback preferred, websocket
// fallback, and the console-initiated data channel. All carry the same
// envelopes; incoming traffic from any transport is dispatched identically.
type RemoteChannel struct {
	mu         sync.Mutex
	log        *logrus.Entry
	transports []RemoteTransport

	onCommand func(cmd string, data json.RawMessage)
	onMessage func(typ string, data json.RawMessage)
}

func NewRemoteChannel(transports ...RemoteTransport) *RemoteChannel {
	c := &RemoteChannel{
		log:        componentLog("remote"),
		transports: transports,
	}
	for _, t := range transports {
		t.OnReceive(c.dispatch)
	}
	return c
}

// Start brings every transport up. Transport failures are logged, not
// fatal; the channel works with whichever transports come alive.
func (c *RemoteChannel) Start() {
	for _, t := range c.transports {
		if err := t.Start(); err != nil {
			c.log.Warnf("transport %s: %v", t.Name(), err)
		}
	}
}

// Stop tears every transport down.
func (c *RemoteChannel) Stop() {
	for _, t := range c.transports {
		t.Stop()
	}
}

// OnCommand registers the {command, data} handler.
func (c *RemoteChannel) OnCommand(fn func(cmd string, data json.RawMessage)) {
	c.mu.Lock()
	c.onCommand = fn
	c.mu.Unlock()
}

// OnMessage registers the handler for console-originated {type, data}
// envelopes (peer negotiation).
func (c *RemoteChannel) OnMessage(fn func(typ string, data json.RawMessage)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

func (c *RemoteChannel) dispatch(raw []byte) {
	var probe struct {
		Command string          `json:"command"`
		Type    string          `json:"type"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		c.log.Debugf("malformed envelope: %v", err)
		return
	}

	c.mu.Lock()
	onCommand := c.onCommand
	onMessage := c.onMessage
	c.mu.Unlock()

	switch {
	case probe.Command != "":
		if onCommand != nil {
			onCommand(probe.Command, probe.Data)
		}
	case probe.Type != "":
		if onMessage != nil {
			onMessage(probe.Type, probe.Data)
		}
	}
}

// Send broadcasts a typed envelope on every transport.
func (c *RemoteChannel) Send(typ string, data interface{}) {
	raw, err := json.Marshal(typeEnvelope{Type: typ, Data: data})
	if err != nil {
		c.log.Warnf("marshal %s: %v", typ, err)
		return
	}
	for _, t := range c.transports {
		if err := t.Send(raw); err != nil {
			c.log.Debugf("send on %s: %v", t.Name(), err)
		}
	}
}

// Status sends an operator notification at the given level.
func (c *RemoteChannel) Status(level, message string) {
	c.Send(MsgStatusMessage, statusPayload{Message: message, Level: level})
}

// Connected reports whether any transport currently has a console.
func (c *RemoteChannel) Connected() bool {
	for _, t := range c.transports {
		if t.Connected() {
			return true
		}
	}
	return false
}
