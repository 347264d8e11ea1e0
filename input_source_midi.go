// input_source_midi.go - Physical MIDI inputs via rtmidi

package main

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// MIDIPortManager owns the rtmidi driver and hands out ports by name. The
// engine creates exactly one; every MIDI source and the reactive output
// share it so device enumeration stays consistent.
type MIDIPortManager struct {
	mu  sync.Mutex
	drv *rtmididrv.Driver
	log *logrus.Entry
}

func NewMIDIPortManager() (*MIDIPortManager, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, &EngineError{Operation: "midi init", Details: ErrDeviceAcquisitionFailed, Err: err}
	}
	return &MIDIPortManager{drv: drv, log: componentLog("midi")}, nil
}

// Inputs lists the available input port names.
func (m *MIDIPortManager) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ins, err := m.drv.Ins()
	if err != nil {
		m.log.Warnf("list inputs: %v", err)
		return nil
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names
}

// Outputs lists the available output port names.
func (m *MIDIPortManager) Outputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	outs, err := m.drv.Outs()
	if err != nil {
		m.log.Warnf("list outputs: %v", err)
		return nil
	}
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		names = append(names, out.String())
	}
	return names
}

// openInput opens the named input port.
func (m *MIDIPortManager) openInput(name string) (drivers.In, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ins, err := m.drv.Ins()
	if err != nil {
		return nil, err
	}
	for _, in := range ins {
		if in.String() == name {
			if err := in.Open(); err != nil {
				return nil, err
			}
			return in, nil
		}
	}
	return nil, &EngineError{Operation: "midi connect", Details: "input not found: " + name}
}

// openOutput opens the named output port.
func (m *MIDIPortManager) openOutput(name string) (drivers.Out, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outs, err := m.drv.Outs()
	if err != nil {
		return nil, err
	}
	for _, out := range outs {
		if out.String() == name {
			if err := out.Open(); err != nil {
				return nil, err
			}
			return out, nil
		}
	}
	return nil, &EngineError{Operation: "midi connect", Details: "output not found: " + name}
}

// Close shuts the driver down; all ports die with it.
func (m *MIDIPortManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drv != nil {
		m.drv.Close()
		m.drv = nil
	}
}

// midiListenConfig keeps SysEx intact and lets the raw decoder see every
// byte; framing and running status are the decoder's job, not the driver's.
var midiListenConfig = drivers.ListenConfig{
	TimeCode:        true,
	ActiveSense:     false,
	SysEx:           true,
	SysExBufferSize: 1024,
}

// MIDIControlSource is the clock-and-notes input: transport and song
// position feed the timebase, notes and CCs feed the bus, SysEx feeds the
// remote-control vocabulary. One physical port at a time.
type MIDIControlSource struct {
	mu   sync.Mutex
	mgr  *MIDIPortManager
	log  *logrus.Entry
	id   string
	bus  *InputManager
	tb   *Timebase
	port drivers.In
	stop func()
	dec  *MIDIDecoder

	// onSysEx is the vocabulary hook; gated upstream by sysexEnable.
	onSysEx func(t time.Time, ev SysExEvent)

	held map[int]int // note -> channel, for flush
	name string
}

func NewMIDIControlSource(mgr *MIDIPortManager, tb *Timebase, onSysEx func(time.Time, SysExEvent)) *MIDIControlSource {
	s := &MIDIControlSource{
		mgr:     mgr,
		log:     componentLog("midi").WithField("role", "control"),
		tb:      tb,
		onSysEx: onSysEx,
		held:    make(map[int]int),
	}
	s.dec = NewMIDIDecoder(s)
	return s
}

func (s *MIDIControlSource) ID() string       { return s.id }
func (s *MIDIControlSource) Kind() SourceKind { return SourceKindMIDI }

func (s *MIDIControlSource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// DeviceName returns the connected port name, empty when disconnected.
func (s *MIDIControlSource) DeviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *MIDIControlSource) Attach(bus *InputManager, id string) {
	s.mu.Lock()
	s.bus = bus
	s.id = id
	s.mu.Unlock()
}

// Connect opens the named input, replacing any existing connection. Held
// notes from the previous device are flushed first so nothing sticks.
func (s *MIDIControlSource) Connect(name string) error {
	s.Disconnect()

	port, err := s.mgr.openInput(name)
	if err != nil {
		return &EngineError{Operation: "midi connect", Details: ErrDeviceAcquisitionFailed, Err: err}
	}
	stop, err := port.Listen(func(msg []byte, _ int32) {
		s.dec.Feed(time.Now(), msg)
	}, midiListenConfig)
	if err != nil {
		port.Close()
		return &EngineError{Operation: "midi connect", Details: "listen failed", Err: err}
	}

	s.mu.Lock()
	s.port = port
	s.stop = stop
	s.name = name
	s.mu.Unlock()
	s.log.WithField("device", name).Info("midi input connected")
	return nil
}

// Disconnect closes the current port and flushes held notes.
func (s *MIDIControlSource) Disconnect() {
	s.mu.Lock()
	stop, port := s.stop, s.port
	s.stop, s.port, s.name = nil, nil, ""
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if port != nil {
		port.Close()
	}
	s.Flush()
}

// Flush emits note-off for every held note.
func (s *MIDIControlSource) Flush() {
	s.mu.Lock()
	bus := s.bus
	held := s.held
	s.held = make(map[int]int)
	s.mu.Unlock()

	if bus == nil {
		return
	}
	for note, ch := range held {
		bus.Emit(EventNote, NoteEvent{Note: note, Velocity: 0, Channel: ch, Source: SourceMIDI})
	}
}

func (s *MIDIControlSource) Close() error {
	s.Disconnect()
	return nil
}

// MIDIMessages implementation: decoder callbacks below run on the driver's
// listen goroutine.

func (s *MIDIControlSource) Clock(t time.Time)    { s.tb.OnClock(t) }
func (s *MIDIControlSource) Start(t time.Time)    { s.tb.OnStart(t) }
func (s *MIDIControlSource) Continue(t time.Time) { s.tb.OnContinue(t) }
func (s *MIDIControlSource) Stop(t time.Time)     { s.tb.OnStop(t) }

func (s *MIDIControlSource) SongPosition(t time.Time, sixteenths int) {
	s.tb.OnSongPosition(t, sixteenths)
}

func (s *MIDIControlSource) NoteOn(t time.Time, channel, note, velocity int) {
	s.mu.Lock()
	bus := s.bus
	s.held[note] = channel
	s.mu.Unlock()
	if bus != nil {
		bus.Emit(EventNote, NoteEvent{Note: note, Velocity: velocity, Channel: channel, Source: SourceMIDI})
	}
}

func (s *MIDIControlSource) NoteOff(t time.Time, channel, note int) {
	s.mu.Lock()
	bus := s.bus
	delete(s.held, note)
	s.mu.Unlock()
	if bus != nil {
		bus.Emit(EventNote, NoteEvent{Note: note, Velocity: 0, Channel: channel, Source: SourceMIDI})
	}
}

func (s *MIDIControlSource) ControlChange(t time.Time, channel, controller int, value float64) {
	s.mu.Lock()
	bus := s.bus
	s.mu.Unlock()
	if bus != nil {
		bus.Emit(EventControl, ControlEvent{ID: controller, Value: value, Channel: channel})
	}
}

func (s *MIDIControlSource) SysEx(t time.Time, manufacturerID uint32, payload []byte) {
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

// MIDISynthSource is the second logical MIDI input: a separately selectable
// port whose notes drive the soft synth. Clock and transport bytes on this
// port are ignored so a synth feed can never fight the control device over
// the timebase.
type MIDISynthSource struct {
	mu   sync.Mutex
	mgr  *MIDIPortManager
	log  *logrus.Entry
	id   string
	bus  *InputManager
	port drivers.In
	stop func()
	dec  *MIDIDecoder
	name string

	// synth resolves lazily; the synth only exists after a user gesture.
	synth func() *SoftSynth
}

func NewMIDISynthSource(mgr *MIDIPortManager, synth func() *SoftSynth) *MIDISynthSource {
	s := &MIDISynthSource{
		mgr:   mgr,
		log:   componentLog("midi").WithField("role", "synth"),
		synth: synth,
	}
	s.dec = NewMIDIDecoder(s)
	return s
}

func (s *MIDISynthSource) ID() string       { return s.id }
func (s *MIDISynthSource) Kind() SourceKind { return SourceKindMIDISynth }

func (s *MIDISynthSource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil
}

// DeviceName returns the connected port name, empty when disconnected.
func (s *MIDISynthSource) DeviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *MIDISynthSource) Attach(bus *InputManager, id string) {
	s.mu.Lock()
	s.bus = bus
	s.id = id
	s.mu.Unlock()
}

// Connect opens the named input for the synth feed.
func (s *MIDISynthSource) Connect(name string) error {
	s.Disconnect()

	port, err := s.mgr.openInput(name)
	if err != nil {
		return &EngineError{Operation: "midi synth connect", Details: ErrDeviceAcquisitionFailed, Err: err}
	}
	stop, err := port.Listen(func(msg []byte, _ int32) {
		s.dec.Feed(time.Now(), msg)
	}, midiListenConfig)
	if err != nil {
		port.Close()
		return &EngineError{Operation: "midi synth connect", Details: "listen failed", Err: err}
	}

	s.mu.Lock()
	s.port = port
	s.stop = stop
	s.name = name
	s.mu.Unlock()
	s.log.WithField("device", name).Info("synth input connected")
	return nil
}

// Disconnect closes the port and silences the synth.
func (s *MIDISynthSource) Disconnect() {
	s.mu.Lock()
	stop, port := s.stop, s.port
	s.stop, s.port, s.name = nil, nil, ""
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if port != nil {
		port.Close()
	}
	s.Flush()
}

// Flush releases everything the synth is sounding.
func (s *MIDISynthSource) Flush() {
	if syn := s.synth(); syn != nil {
		syn.FlushNotes()
	}
}

func (s *MIDISynthSource) Close() error {
	s.Disconnect()
	return nil
}

func (s *MIDISynthSource) Clock(time.Time)                 {}
func (s *MIDISynthSource) Start(time.Time)                 {}
func (s *MIDISynthSource) Continue(time.Time)              {}
func (s *MIDISynthSource) Stop(time.Time)                  {}
func (s *MIDISynthSource) SongPosition(time.Time, int)     {}
func (s *MIDISynthSource) SysEx(time.Time, uint32, []byte) {}

func (s *MIDISynthSource) NoteOn(t time.Time, channel, note, velocity int) {
	if syn := s.synth(); syn != nil {
		syn.NoteOn(channel, note, velocity)
	}
}

func (s *MIDISynthSource) NoteOff(t time.Time, channel, note int) {
	if syn := s.synth(); syn != nil {
		syn.NoteOff(channel, note)
	}
}

func (s *MIDISynthSource) ControlChange(time.Time, int, int, float64) {}
