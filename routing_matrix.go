// routing_matrix.go - Reactive input routing policy

package main

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Audio input selections.
const (
	AudioInputMicrophone   = "microphone"
	AudioInputMediaFeed    = "media-feed"
	AudioInputProgramMedia = "program-media"
)

// Reactive input selections.
const (
	ReactiveAudio = "audio"
	ReactiveMIDI  = "midi"
)

// RoutingMatrix owns the (audioInputSource, reactiveInputSource) pair and is
// the only component allowed to bind or unbind the analysis graph. It also
// decides which frequency stream the active renderer accepts, which is what
// keeps exactly one source driving the visuals at any instant.
type RoutingMatrix struct {
	mu  sync.Mutex
	log *logrus.Entry

	engine *AudioEngine
	bus    *InputManager
	mic    *MicrophoneSource

	mediaFeed    *MediaElement
	programMedia *MediaElement

	audioInput string
	reactive   string
	audible    bool
	monitoring bool

	// synthFactory builds the soft synth on first demand; only a direct
	// user action may invoke it.
	synthFactory func() *SoftSynth

	// onZeroBands is the one-shot UI feedback broadcast fired at the start
	// of every transition.
	onZeroBands func()
}

func NewRoutingMatrix(engine *AudioEngine, bus *InputManager, mic *MicrophoneSource, synthFactory func() *SoftSynth) *RoutingMatrix {
	m := &RoutingMatrix{
		log:          componentLog("routing"),
		engine:       engine,
		bus:          bus,
		mic:          mic,
		audioInput:   AudioInputMicrophone,
		reactive:     ReactiveAudio,
		synthFactory: synthFactory,
	}
	return m
}

// OnZeroBands registers the transition feedback hook.
func (m *RoutingMatrix) OnZeroBands(fn func()) {
	m.mu.Lock()
	m.onZeroBands = fn
	m.mu.Unlock()
}

// Subscribe wires beat events to the synth kick. Beats detected on the
// synth's own signal do not retrigger the kick.
func (m *RoutingMatrix) Subscribe(bus *InputManager) {
	bus.On(EventBeat, func(payload interface{}) {
		ev, ok := payload.(BeatEvent)
		if !ok || ev.Source == SourceMIDISynth {
			return
		}
		if syn := m.engine.Synth(); syn != nil {
			syn.TriggerBeatKick(ev.Intensity)
		}
	})
}

// AudioInput returns the current audio input selection.
func (m *RoutingMatrix) AudioInput() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioInput
}

// ReactiveInput returns the current reactive selection.
func (m *RoutingMatrix) ReactiveInput() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reactive
}

// Audible reports the user-facing output toggle.
func (m *RoutingMatrix) Audible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audible
}

// SetAudioInput switches the audio source. Setting the current value again
// is a no-op: no rebind, no note flood.
func (m *RoutingMatrix) SetAudioInput(sel string, userAction bool) error {
	switch sel {
	case AudioInputMicrophone, AudioInputMediaFeed, AudioInputProgramMedia:
	default:
		return &EngineError{Operation: "audio input", Details: "unknown selection: " + sel}
	}
	m.mu.Lock()
	if m.audioInput == sel {
		m.mu.Unlock()
		return nil
	}
	m.audioInput = sel
	m.mu.Unlock()
	return m.transition(userAction)
}

// SetReactiveInput switches between audio-driven and MIDI-synth-driven
// visuals. Idempotent under the same value.
func (m *RoutingMatrix) SetReactiveInput(sel string, userAction bool) error {
	switch sel {
	case ReactiveAudio, ReactiveMIDI:
	default:
		return &EngineError{Operation: "reactive input", Details: "unknown selection: " + sel}
	}
	m.mu.Lock()
	if m.reactive == sel {
		m.mu.Unlock()
		return nil
	}
	m.reactive = sel
	m.mu.Unlock()
	return m.transition(userAction)
}

// SetProgramMedia hands the matrix the media element owned by the current
// program mode (nil when the mode has none). If program-media is the active
// selection the graph is rebound to the new element.
func (m *RoutingMatrix) SetProgramMedia(elem *MediaElement) {
	m.mu.Lock()
	same := m.programMedia == elem
	m.programMedia = elem
	active := m.audioInput == AudioInputProgramMedia
	m.mu.Unlock()
	if active && !same {
		m.transition(false)
	}
}

// MediaFeed returns the feed element, creating it on first use. The element
// is permanent: loads replace its content, never the element, so the
// bind-once rule holds across any number of feed loads.
func (m *RoutingMatrix) MediaFeed() *MediaElement {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mediaFeed == nil {
		m.mediaFeed = NewMediaElement("feed")
	}
	return m.mediaFeed
}

// ReleaseMediaFeed disconnects the feed element but keeps it (and its
// binding id) for later reuse.
func (m *RoutingMatrix) ReleaseMediaFeed() {
	m.mu.Lock()
	feed := m.mediaFeed
	m.mu.Unlock()
	if feed != nil {
		feed.Disconnect()
	}
}

// EnsureSynth returns the soft synth, creating it only on a direct user
// action. Restored preferences advertise the synth but never build it.
func (m *RoutingMatrix) EnsureSynth(userAction bool) *SoftSynth {
	if syn := m.engine.Synth(); syn != nil {
		return syn
	}
	if !userAction {
		return nil
	}
	syn := m.synthFactory()
	m.engine.SetSynth(syn)
	m.log.Info("soft synth created")
	return syn
}

// transition executes the routing switch: zero-band feedback, note flush,
// unbind, rebind, then re-applied audibility. The order is fixed; every
// caller goes through here.
func (m *RoutingMatrix) transition(userAction bool) error {
	m.mu.Lock()
	audioInput := m.audioInput
	reactive := m.reactive
	feed := m.mediaFeed
	program := m.programMedia
	zeroHook := m.onZeroBands
	m.mu.Unlock()

	// 1. Zero the bands once so the console meters drop immediately.
	m.bus.Emit(EventFrequency, FrequencyEvent{Source: SourceAudio})
	if zeroHook != nil {
		zeroHook()
	}

	// 2. Flush held auto-frequency notes.
	for _, off := range m.engine.Notes().Flush() {
		m.bus.Emit(EventNote, off)
	}
	if syn := m.engine.Synth(); syn != nil {
		for _, off := range syn.notes.Flush() {
			m.bus.Emit(EventNote, off)
		}
	}

	// 3. Unbind; media elements keep their binding ids.
	if feed != nil {
		feed.Disconnect()
	}
	m.engine.Unbind()

	// 4/5. Bind the new source.
	if reactive == ReactiveMIDI {
		if syn := m.EnsureSynth(userAction); syn == nil {
			m.log.Warn("reactive midi selected with no synth; waiting for user action")
		}
		if rerr := m.engine.Resume(); rerr != nil {
			m.log.Warnf("audio resume: %v", rerr)
		}
	} else {
		switch audioInput {
		case AudioInputMicrophone:
			m.engine.Bind(m.mic.ID(), SourceAudio)
		case AudioInputMediaFeed:
			if feed == nil {
				feed = m.MediaFeed()
			}
			m.engine.Bind(feed.BindingID(), SourceMedia)
			feed.Connect(m.engine)
		case AudioInputProgramMedia:
			if program != nil {
				m.engine.Bind(program.BindingID(), SourceMedia)
				program.Connect(m.engine)
			} else {
				m.log.Info("program-media selected with no program media element; frequency stream idle")
			}
		}
	}

	// 6. Re-apply the audibility booleans on the new path.
	m.applyAudible()

	m.log.WithFields(logrus.Fields{
		"audioInput": audioInput,
		"reactive":   reactive,
	}).Info("routing transition complete")
	return nil
}

// SetAudible applies the user-visible output toggle to exactly one control:
// native element muting when program-media is active, the monitor tap
// otherwise. Never both.
func (m *RoutingMatrix) SetAudible(on bool) {
	m.mu.Lock()
	m.audible = on
	m.mu.Unlock()
	m.applyAudible()
}

// SetMonitoring stores the monitoring preference for the microphone path.
func (m *RoutingMatrix) SetMonitoring(on bool) {
	m.mu.Lock()
	m.monitoring = on
	m.mu.Unlock()
	m.applyAudible()
}

func (m *RoutingMatrix) applyAudible() {
	m.mu.Lock()
	audioInput := m.audioInput
	audible := m.audible
	monitoring := m.monitoring
	program := m.programMedia
	m.mu.Unlock()

	if audioInput == AudioInputProgramMedia && program != nil {
		program.SetMuted(!audible)
		m.engine.SetMonitoring(false)
		return
	}
	m.engine.SetMonitoring(audible && monitoring)
}

// Accepts reports whether a frequency event may reach the active renderer.
// This is the policy table: exactly one source drives the visuals.
func (m *RoutingMatrix) Accepts(ev FrequencyEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reactive == ReactiveMIDI {
		return ev.Source == SourceMIDISynth
	}
	switch m.audioInput {
	case AudioInputMicrophone:
		return ev.Source == SourceAudio
	case AudioInputMediaFeed, AudioInputProgramMedia:
		return ev.Source == SourceMedia || ev.Source == SourceAudio
	}
	return false
}

// BandsReader returns the band snapshot function a spectral backend should
// read from under the current routing: the synth's analyzer when MIDI is
// reactive, the graph's mono analyzer otherwise.
func (m *RoutingMatrix) BandsReader() func() BandEnergies {
	return func() BandEnergies {
		m.mu.Lock()
		reactive := m.reactive
		m.mu.Unlock()
		if reactive == ReactiveMIDI {
			if syn := m.engine.Synth(); syn != nil {
				return syn.Bands()
			}
			return BandEnergies{}
		}
		return m.engine.Bands()
	}
}

// Frame runs the per-frame analysis for whichever path is active and emits
// the resulting events on the bus.
func (m *RoutingMatrix) Frame(now time.Time) {
	m.mu.Lock()
	reactive := m.reactive
	m.mu.Unlock()

	if reactive == ReactiveMIDI {
		syn := m.engine.Synth()
		if syn == nil {
			return
		}
		freq, intensity, beat := syn.AnalyzeFrame(now)
		if beat {
			m.bus.Emit(EventBeat, BeatEvent{Intensity: intensity, Source: SourceMIDISynth})
		}
		for _, ev := range syn.notes.Update(now, freq.Bands) {
			m.bus.Emit(EventNote, ev)
		}
		m.bus.Emit(EventFrequency, freq)
		return
	}
	m.engine.AnalyzeFrame(now)
}
