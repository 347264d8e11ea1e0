// midi_output.go - Reactive MIDI output port

package main

import (
	"sync"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// ReactiveMIDIOutput mirrors the engine's reactive events to a physical MIDI
// out: auto-frequency notes go out verbatim and detected beats can fire a
// configurable kick note. External gear then follows the analyzed signal.
type ReactiveMIDIOutput struct {
	mu  sync.Mutex
	mgr *MIDIPortManager
	log *logrus.Entry

	port    drivers.Out
	name    string
	enabled bool
	channel int
	kickOn  bool
	kick    int

	held map[int]bool
}

func NewReactiveMIDIOutput(mgr *MIDIPortManager) *ReactiveMIDIOutput {
	return &ReactiveMIDIOutput{
		mgr:     mgr,
		log:     componentLog("midi").WithField("role", "output"),
		channel: 0,
		kick:    36,
		held:    make(map[int]bool),
	}
}

// Subscribe wires the output to the bus. Only audio-derived notes are
// forwarded; echoing physical MIDI input back out would loop.
func (o *ReactiveMIDIOutput) Subscribe(bus *InputManager) {
	bus.On(EventNote, func(payload interface{}) {
		ev, ok := payload.(NoteEvent)
		if !ok || ev.Source != SourceAudioFreq {
			return
		}
		if ev.Velocity > 0 {
			o.NoteOn(ev.Note, ev.Velocity)
		} else {
			o.NoteOff(ev.Note)
		}
	})
	bus.On(EventBeat, func(payload interface{}) {
		ev, ok := payload.(BeatEvent)
		if !ok || ev.Source == SourceMIDI {
			return
		}
		o.Kick(ev.Intensity)
	})
}

// Connect opens the named output port. Held notes on a previous port are
// released there first.
func (o *ReactiveMIDIOutput) Connect(name string) error {
	o.ReleaseAll()

	o.mu.Lock()
	old := o.port
	o.port = nil
	o.mu.Unlock()
	if old != nil {
		old.Close()
	}

	port, err := o.mgr.openOutput(name)
	if err != nil {
		return &EngineError{Operation: "midi output connect", Details: ErrDeviceAcquisitionFailed, Err: err}
	}
	o.mu.Lock()
	o.port = port
	o.name = name
	o.mu.Unlock()
	o.log.WithField("device", name).Info("midi output connected")
	return nil
}

// Disconnect releases held notes and closes the port.
func (o *ReactiveMIDIOutput) Disconnect() {
	o.ReleaseAll()
	o.mu.Lock()
	port := o.port
	o.port = nil
	o.name = ""
	o.mu.Unlock()
	if port != nil {
		port.Close()
	}
}

// DeviceName reports the connected output port.
func (o *ReactiveMIDIOutput) DeviceName() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.name
}

// SetEnabled toggles forwarding. Disabling releases held notes so nothing
// sticks on the external device.
func (o *ReactiveMIDIOutput) SetEnabled(on bool) {
	o.mu.Lock()
	o.enabled = on
	o.mu.Unlock()
	if !on {
		o.ReleaseAll()
	}
}

// SetChannel selects the output channel (0..15).
func (o *ReactiveMIDIOutput) SetChannel(ch int) {
	o.mu.Lock()
	if ch >= 0 && ch <= 15 {
		o.channel = ch
	}
	o.mu.Unlock()
}

// SetBeatKick configures the beat-to-note mapping.
func (o *ReactiveMIDIOutput) SetBeatKick(on bool, note int) {
	o.mu.Lock()
	o.kickOn = on
	if note >= 0 && note <= 127 {
		o.kick = note
	}
	o.mu.Unlock()
}

func (o *ReactiveMIDIOutput) NoteOn(note, velocity int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.enabled || o.port == nil {
		return
	}
	if err := o.port.Send([]byte{byte(midiNoteOn | o.channel), byte(note), byte(velocity)}); err != nil {
		o.log.Warnf("send note on: %v", err)
		return
	}
	o.held[note] = true
}

func (o *ReactiveMIDIOutput) NoteOff(note int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.port == nil {
		return
	}
	// Note-offs go out even while disabled so a mid-note disable cannot
	// strand the external device.
	if err := o.port.Send([]byte{byte(midiNoteOff | o.channel), byte(note), 0}); err != nil {
		o.log.Warnf("send note off: %v", err)
		return
	}
	delete(o.held, note)
}

// Kick fires the beat note as an immediate on/off pair. It is gated only by
// its own toggle; frequency forwarding may be off.
func (o *ReactiveMIDIOutput) Kick(intensity float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.kickOn || o.port == nil {
		return
	}
	vel := 64 + int(intensity*63)
	if err := o.port.Send([]byte{byte(midiNoteOn | o.channel), byte(o.kick), byte(vel)}); err != nil {
		o.log.Warnf("send kick: %v", err)
		return
	}
	if err := o.port.Send([]byte{byte(midiNoteOff | o.channel), byte(o.kick), 0}); err != nil {
		o.log.Warnf("send kick off: %v", err)
	}
}

// ReleaseAll sends note-off for everything currently held.
func (o *ReactiveMIDIOutput) ReleaseAll() {
	o.mu.Lock()
	port := o.port
	ch := o.channel
	held := o.held
	o.held = make(map[int]bool)
	o.mu.Unlock()

	if port == nil {
		return
	}
	for note := range held {
		port.Send([]byte{byte(midiNoteOff | ch), byte(note), 0})
	}
}

// Close disconnects the port.
func (o *ReactiveMIDIOutput) Close() {
	o.Disconnect()
}
