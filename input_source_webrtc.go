// input_source_webrtc.go - Remote MIDI over a WebRTC data channel

package main

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// WebRTC MIDI roles: which sinks the remote bytes feed.
const (
	WebRTCRoleControl = "control" // timebase, bus notes, sysex
	WebRTCRoleSynth   = "synth"   // soft synth only
	WebRTCRoleBoth    = "both"
)

// Data channel labels the remote peer may open.
const (
	webrtcMIDIChannel    = "midi"
	webrtcControlChannel = "control"
)

// WebRTCMIDISource accepts a remote peer's offer and receives raw MIDI
// bytes over an unordered data channel. The bytes run through the same
// decoder as a physical port; the configured role decides whether they act
// as the control surface, the synth feed, or both.
type WebRTCMIDISource struct {
	mu   sync.Mutex
	log  *logrus.Entry
	id   string
	bus  *InputManager
	tb   *Timebase
	dec  *MIDIDecoder
	role string

	synth   func() *SoftSynth
	onSysEx func(t time.Time, ev SysExEvent)

	pc        *webrtc.PeerConnection
	connected bool
	held      map[int]int

	// onStateChange reports connection state for the webrtcMidiState
	// broadcast messages.
	onStateChange func(state string)

	// onControlChannel receives the "control" data channel when the peer
	// opens one; the remote channel uses it as a transport fallback.
	onControlChannel func(dc *webrtc.DataChannel)
}

func NewWebRTCMIDISource(tb *Timebase, synth func() *SoftSynth, onSysEx func(time.Time, SysExEvent)) *WebRTCMIDISource {
	s := &WebRTCMIDISource{
		log:     componentLog("webrtc"),
		tb:      tb,
		role:    WebRTCRoleControl,
		synth:   synth,
		onSysEx: onSysEx,
		held:    make(map[int]int),
	}
	s.dec = NewMIDIDecoder(s)
	return s
}

func (s *WebRTCMIDISource) ID() string       { return s.id }
func (s *WebRTCMIDISource) Kind() SourceKind { return SourceKindWebRTCMIDI }

func (s *WebRTCMIDISource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *WebRTCMIDISource) Attach(bus *InputManager, id string) {
	s.mu.Lock()
	s.bus = bus
	s.id = id
	s.mu.Unlock()
}

// SetRole selects which sinks remote bytes feed. Changing the role flushes
// held notes so nothing sticks on the sink losing the feed.
func (s *WebRTCMIDISource) SetRole(role string) {
	switch role {
	case WebRTCRoleControl, WebRTCRoleSynth, WebRTCRoleBoth:
	default:
		return
	}
	s.Flush()
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()
}

// Role returns the active role.
func (s *WebRTCMIDISource) Role() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// OnStateChange registers the connection state hook.
func (s *WebRTCMIDISource) OnStateChange(fn func(state string)) {
	s.mu.Lock()
	s.onStateChange = fn
	s.mu.Unlock()
}

// OnControlChannel registers the control data channel hook.
func (s *WebRTCMIDISource) OnControlChannel(fn func(dc *webrtc.DataChannel)) {
	s.mu.Lock()
	s.onControlChannel = fn
	s.mu.Unlock()
}

// AcceptOffer tears down any existing peer, answers the remote offer and
// returns the local description (with ICE gathering complete) as JSON.
func (s *WebRTCMIDISource) AcceptOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, &EngineError{Operation: "webrtc midi", Details: "malformed offer", Err: err}
	}

	s.closePeer()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		return nil, &EngineError{Operation: "webrtc midi", Details: "peer connection", Err: err}
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		switch dc.Label() {
		case webrtcMIDIChannel:
			dc.OnMessage(func(msg webrtc.DataChannelMessage) {
				s.dec.Feed(time.Now(), msg.Data)
			})
		case webrtcControlChannel:
			s.mu.Lock()
			hook := s.onControlChannel
			s.mu.Unlock()
			if hook != nil {
				hook(dc)
			}
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.mu.Lock()
		s.connected = state == webrtc.PeerConnectionStateConnected
		hook := s.onStateChange
		s.mu.Unlock()
		s.log.WithField("state", state.String()).Info("webrtc midi peer state")
		if hook != nil {
			hook(state.String())
		}
		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			s.Flush()
		}
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, &EngineError{Operation: "webrtc midi", Details: "remote description", Err: err}
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, &EngineError{Operation: "webrtc midi", Details: "create answer", Err: err}
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, &EngineError{Operation: "webrtc midi", Details: "local description", Err: err}
	}
	<-gathered

	s.mu.Lock()
	s.pc = pc
	s.mu.Unlock()

	return json.Marshal(pc.LocalDescription())
}

func (s *WebRTCMIDISource) closePeer() {
	s.mu.Lock()
	pc := s.pc
	s.pc = nil
	s.connected = false
	s.mu.Unlock()
	if pc != nil {
		pc.Close()
	}
	s.Flush()
}

// Flush releases held notes on every sink the current role feeds.
func (s *WebRTCMIDISource) Flush() {
	s.mu.Lock()
	bus := s.bus
	role := s.role
	held := s.held
	s.held = make(map[int]int)
	s.mu.Unlock()

	if bus != nil && role != WebRTCRoleSynth {
		for note, ch := range held {
			bus.Emit(EventNote, NoteEvent{Note: note, Velocity: 0, Channel: ch, Source: SourceMIDI})
		}
	}
	if role != WebRTCRoleControl {
		if syn := s.synth(); syn != nil {
			syn.FlushNotes()
		}
	}
}

func (s *WebRTCMIDISource) Close() error {
	s.closePeer()
	return nil
}

// MIDIMessages implementation. Control messages only act in control roles;
// notes fan out per the role.

func (s *WebRTCMIDISource) controlRole() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role != WebRTCRoleSynth
}

func (s *WebRTCMIDISource) synthRole() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role != WebRTCRoleControl
}

func (s *WebRTCMIDISource) Clock(t time.Time) {
	if s.controlRole() {
		s.tb.OnClock(t)
	}
}

func (s *WebRTCMIDISource) Start(t time.Time) {
	if s.controlRole() {
		s.tb.OnStart(t)
	}
}

func (s *WebRTCMIDISource) Continue(t time.Time) {
	if s.controlRole() {
		s.tb.OnContinue(t)
	}
}

func (s *WebRTCMIDISource) Stop(t time.Time) {
	if s.controlRole() {
		s.tb.OnStop(t)
	}
}

func (s *WebRTCMIDISource) SongPosition(t time.Time, sixteenths int) {
	if s.controlRole() {
		s.tb.OnSongPosition(t, sixteenths)
	}
}

func (s *WebRTCMIDISource) NoteOn(t time.Time, channel, note, velocity int) {
	s.mu.Lock()
	bus := s.bus
	role := s.role
	s.held[note] = channel
	s.mu.Unlock()

	if role != WebRTCRoleSynth && bus != nil {
		bus.Emit(EventNote, NoteEvent{Note: note, Velocity: velocity, Channel: channel, Source: SourceMIDI})
	}
	if role != WebRTCRoleControl {
		if syn := s.synth(); syn != nil {
			syn.NoteOn(channel, note, velocity)
		}
	}
}

func (s *WebRTCMIDISource) NoteOff(t time.Time, channel, note int) {
	s.mu.Lock()
	bus := s.bus
	role := s.role
	delete(s.held, note)
	s.mu.Unlock()

	if role != WebRTCRoleSynth && bus != nil {
		bus.Emit(EventNote, NoteEvent{Note: note, Velocity: 0, Channel: channel, Source: SourceMIDI})
	}
	if role != WebRTCRoleControl {
		if syn := s.synth(); syn != nil {
			syn.NoteOff(channel, note)
		}
	}
}

func (s *WebRTCMIDISource) ControlChange(t time.Time, channel, controller int, value float64) {
	if !s.controlRole() {
		return
	}
	s.mu.Lock()
	bus := s.bus
	s.mu.Unlock()
	if bus != nil {
		bus.Emit(EventControl, ControlEvent{ID: controller, Value: value, Channel: channel})
	}
}

func (s *WebRTCMIDISource) SysEx(t time.Time, manufacturerID uint32, payload []byte) {
	if !s.controlRole() {
		return
	}
	s.mu.Lock()
	bus := s.bus
	hook := s.onSysEx
	s.mu.Unlock()

	ev := SysExEvent{ManufacturerID: manufacturerID, Payload: append([]byte(nil), payload...)}
	if bus != nil {
		bus.Emit(EventSysEx, ev)
	}
	if hook != nil {
		hook(t, ev)
	}
}
