// events.go - Typed events and input source contracts for the Lumen Engine

package main

// EventKind discriminates the payloads carried on the input bus.
type EventKind string

const (
	EventBeat      EventKind = "beat"
	EventNote      EventKind = "note"
	EventControl   EventKind = "control"
	EventTransport EventKind = "transport"
	EventFrequency EventKind = "frequency"
	EventSysEx     EventKind = "sysex"

	// EventAny subscribes to everything; payloads arrive wrapped in an
	// EventEnvelope so the handler can tell the kinds apart.
	EventAny EventKind = "*"
)

// EventSource identifies where a payload originated. Consumers that need to
// disambiguate (the routing matrix, the beat engine) filter on this rather
// than on the emitting device.
type EventSource string

const (
	SourceAudio     EventSource = "audio"
	SourceMedia     EventSource = "media"
	SourceMIDI      EventSource = "midi"
	SourceMIDISPP   EventSource = "midi-spp"
	SourceMIDISynth EventSource = "midi-synth"
	SourceAudioFreq EventSource = "audio-frequency"
)

// BeatEvent is emitted on detected (audio) or counted (MIDI clock) beats.
type BeatEvent struct {
	Intensity float64     // 0..1
	Phase     float64     // 0..1, position within the beat
	Source    EventSource // audio, media, midi, midi-spp
}

// NoteEvent carries note on/off. Velocity 0 denotes note-off.
type NoteEvent struct {
	Note     int // 0..127
	Velocity int // 0..127
	Channel  int // 0..15
	Source   EventSource
}

// ControlEvent is a normalized MIDI CC.
type ControlEvent struct {
	ID      int     // controller number 0..127
	Value   float64 // 0..1
	Channel int     // 0..15
}

// TransportState enumerates the transport sub-kinds.
type TransportState string

const (
	TransportPlay     TransportState = "play"
	TransportStop     TransportState = "stop"
	TransportContinue TransportState = "continue"
	TransportSPP      TransportState = "spp"
	TransportBPM      TransportState = "bpm"
)

// TransportEvent carries clock-derived tempo and song position changes.
type TransportEvent struct {
	State    TransportState
	BPM      float64 // set when State == TransportBPM
	Position int     // sixteenth notes, set when State == TransportSPP
	Source   EventSource
}

// BandEnergies holds the six fixed analysis bands, each normalized to 0..1.
type BandEnergies struct {
	Sub     float64 `json:"sub"`     // 20-60 Hz
	Bass    float64 `json:"bass"`    // 60-250 Hz
	LowMid  float64 `json:"lowMid"`  // 250-500 Hz
	Mid     float64 `json:"mid"`     // 500-2k Hz
	HighMid float64 `json:"highMid"` // 2k-4k Hz
	High    float64 `json:"high"`    // 4k-20k Hz
}

// Zero reports whether every band is silent.
func (b BandEnergies) Zero() bool {
	return b.Sub == 0 && b.Bass == 0 && b.LowMid == 0 &&
		b.Mid == 0 && b.HighMid == 0 && b.High == 0
}

// FrequencyEvent is the per-frame spectral snapshot that drives visuals.
type FrequencyEvent struct {
	Bands  BandEnergies
	RMS    float64 // 0..1
	Source EventSource
}

// SysExEvent carries a system-exclusive payload with delimiters stripped.
type SysExEvent struct {
	ManufacturerID uint32 // single byte or 3-byte extended id
	Payload        []byte
}

// EventEnvelope wraps a payload for wildcard subscribers and for the wire.
type EventEnvelope struct {
	Type EventKind   `json:"type"`
	Data interface{} `json:"data"`
}

// SourceKind enumerates the input source variants.
type SourceKind string

const (
	SourceKindMIDI       SourceKind = "midi"
	SourceKindMIDISynth  SourceKind = "midi-synth"
	SourceKindWebRTCMIDI SourceKind = "webrtc-midi"
	SourceKindAudio      SourceKind = "audio"
	SourceKindOSC        SourceKind = "osc"
)

// InputSource is the minimal contract a source must satisfy to be registered
// with the InputManager. Sources emit through the bus they are attached to;
// Flush must emit note-off for every note the source is still holding.
type InputSource interface {
	ID() string
	Kind() SourceKind
	Active() bool

	// Attach gives the source its bus and source id; called on register.
	Attach(bus *InputManager, id string)
	// Flush releases held notes. Called on unregister and on rebinds.
	Flush()
	// Close releases device handles. The source may not emit afterwards.
	Close() error
}
