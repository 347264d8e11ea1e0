// audio_graph.go - Shared audio analysis graph

package main

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// monitorRampTime is the linear gain ramp applied when monitoring is
	// toggled, avoiding clicks on the output tap.
	monitorRampTime = 50 * time.Millisecond

	// monitorRingSize buffers about a quarter second at 44.1 kHz between
	// the push path and the output pull.
	monitorRingSize = 1 << 14
)

// graphBinding records which input currently owns the analysis graph.
// Exactly one binding exists at a time; the routing matrix serializes all
// bind/unbind operations.
type graphBinding struct {
	id  string
	tag EventSource // source tag stamped on frequency and beat events
}

// AudioEngine owns the process-wide analysis graph:
//
//	source -> inputTrim -> killEQ -> [analyzerL, analyzerR], analyzerMono,
//	monitorGain -> output
//
// The analysis taps never feed the output; only the monitor gain does.
// The engine starts suspended and is resumed opportunistically on the
// first user gesture.
type AudioEngine struct {
	mu         sync.Mutex
	sampleRate int
	suspended  bool
	log        *logrus.Entry

	bus *InputManager

	trimGain float64
	eq       *KillEQ
	mono     *SpectrumAnalyzer
	left     *SpectrumAnalyzer
	right    *SpectrumAnalyzer
	beats    *BeatDetector
	notes    *FrequencyNoteEmitter

	binding *graphBinding

	// Monitor path.
	ring         []float32
	ringR, ringW int
	monGain      float64
	monTarget    float64
	monStep      float64

	output AudioOutput
	synth  *SoftSynth
}

func NewAudioEngine(sampleRate int, bus *InputManager, backend int) (*AudioEngine, error) {
	e := &AudioEngine{
		sampleRate: sampleRate,
		suspended:  true,
		log:        componentLog("audio"),
		bus:        bus,
		trimGain:   trimGainFor(70),
		eq:         NewKillEQ(sampleRate),
		mono:       NewSpectrumAnalyzer(sampleRate, defaultFFTSize, monoSmoothing),
		left:       NewSpectrumAnalyzer(sampleRate, defaultFFTSize, scopeSmoothing),
		right:      NewSpectrumAnalyzer(sampleRate, defaultFFTSize, scopeSmoothing),
		beats:      NewBeatDetector(),
		notes:      NewFrequencyNoteEmitter(),
		ring:       make([]float32, monitorRingSize),
	}
	e.monStep = 1.0 / (float64(sampleRate) * monitorRampTime.Seconds())

	out, err := NewAudioOutputBackend(backend, sampleRate, e)
	if err != nil {
		return nil, &EngineError{Operation: "audio init", Details: "output backend", Err: err}
	}
	e.output = out
	return e, nil
}

// Resume starts the output path. Safe to call repeatedly; the first call
// that succeeds moves the engine out of the suspended state.
func (e *AudioEngine) Resume() error {
	e.mu.Lock()
	if !e.suspended {
		e.mu.Unlock()
		return nil
	}
	e.suspended = false
	out := e.output
	e.mu.Unlock()

	if out != nil {
		if err := out.Start(); err != nil {
			e.mu.Lock()
			e.suspended = true
			e.mu.Unlock()
			return err
		}
	}
	e.log.Info("audio engine resumed")
	return nil
}

// Suspended reports whether the engine is still awaiting a user gesture.
func (e *AudioEngine) Suspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suspended
}

// Bind gives the named input ownership of the graph. Any previous binding
// is dropped first. Analyzer and detector state is cleared so no frame can
// carry energy from the previous input.
func (e *AudioEngine) Bind(id string, tag EventSource) {
	e.mu.Lock()
	e.binding = &graphBinding{id: id, tag: tag}
	e.mu.Unlock()

	e.mono.Reset()
	e.left.Reset()
	e.right.Reset()
	e.beats.Reset()
	e.eq.Reset()
	e.log.WithFields(logrus.Fields{"input": id, "tag": tag}).Info("graph bound")
}

// Unbind releases the current binding. Held auto-frequency notes must have
// been flushed by the caller (the routing matrix) beforehand.
func (e *AudioEngine) Unbind() {
	e.mu.Lock()
	e.binding = nil
	e.mu.Unlock()
	e.mono.Reset()
	e.left.Reset()
	e.right.Reset()
	e.beats.Reset()
}

// BoundInput returns the id of the input currently owning the graph.
func (e *AudioEngine) BoundInput() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.binding == nil {
		return ""
	}
	return e.binding.id
}

// PushMono feeds samples from the named input. Pushes from an input that
// does not own the graph are dropped; this is what makes rebinds race-free
// without locking the capture callbacks against each other.
func (e *AudioEngine) PushMono(id string, samples []float32) {
	e.mu.Lock()
	if e.binding == nil || e.binding.id != id {
		e.mu.Unlock()
		return
	}
	gain := float32(e.trimGain)
	e.mu.Unlock()

	buf := make([]float32, len(samples))
	for i, s := range samples {
		buf[i] = s * gain
	}
	e.eq.Process(buf)
	e.mono.Push(buf)
	e.left.Push(buf)
	e.right.Push(buf)
	e.writeMonitor(buf)
}

// PushStereo feeds an interleaved-free stereo pair; the mono analyzer sees
// the mid signal.
func (e *AudioEngine) PushStereo(id string, l, r []float32) {
	e.mu.Lock()
	if e.binding == nil || e.binding.id != id {
		e.mu.Unlock()
		return
	}
	gain := float32(e.trimGain)
	e.mu.Unlock()

	n := len(l)
	if len(r) < n {
		n = len(r)
	}
	mid := make([]float32, n)
	lt := make([]float32, n)
	rt := make([]float32, n)
	for i := 0; i < n; i++ {
		lt[i] = l[i] * gain
		rt[i] = r[i] * gain
		mid[i] = (lt[i] + rt[i]) * 0.5
	}
	e.eq.Process(mid)
	e.mono.Push(mid)
	e.left.Push(lt)
	e.right.Push(rt)
	e.writeMonitor(mid)
}

func (e *AudioEngine) writeMonitor(samples []float32) {
	e.mu.Lock()
	for _, s := range samples {
		next := (e.ringW + 1) % len(e.ring)
		if next == e.ringR {
			// Full: drop the oldest so the monitor stays near-live.
			e.ringR = (e.ringR + 1) % len(e.ring)
		}
		e.ring[e.ringW] = s
		e.ringW = next
	}
	e.mu.Unlock()
}

// ProvideSamples is the output pull path: monitor tap plus the soft synth.
func (e *AudioEngine) ProvideSamples(dst []float32) {
	e.mu.Lock()
	for i := range dst {
		var s float32
		if e.ringR != e.ringW {
			s = e.ring[e.ringR]
			e.ringR = (e.ringR + 1) % len(e.ring)
		}
		if e.monGain < e.monTarget {
			e.monGain += e.monStep
			if e.monGain > e.monTarget {
				e.monGain = e.monTarget
			}
		} else if e.monGain > e.monTarget {
			e.monGain -= e.monStep
			if e.monGain < e.monTarget {
				e.monGain = e.monTarget
			}
		}
		dst[i] = s * float32(e.monGain)
	}
	synth := e.synth
	e.mu.Unlock()

	if synth != nil {
		synth.MixInto(dst)
	}
}

// SetMonitoring routes (or mutes) the analyzed signal to the output with a
// 50 ms ramp. The signal keeps being analyzed either way.
func (e *AudioEngine) SetMonitoring(on bool) {
	e.mu.Lock()
	if on {
		e.monTarget = 1
	} else {
		e.monTarget = 0
	}
	e.mu.Unlock()
}

// Monitoring reports the current monitor target state.
func (e *AudioEngine) Monitoring() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monTarget > 0
}

// SetTrim applies the 0-100 trim knob (neutral at 70).
func (e *AudioEngine) SetTrim(knob float64) {
	e.mu.Lock()
	e.trimGain = trimGainFor(knob)
	e.mu.Unlock()
}

// Bands returns the mono analyzer's last band snapshot.
func (e *AudioEngine) Bands() BandEnergies {
	return e.mono.Bands()
}

// EQ exposes the kill EQ for the eqGain command path.
func (e *AudioEngine) EQ() *KillEQ { return e.eq }

// Beats exposes the beat detector for threshold/min-time commands.
func (e *AudioEngine) Beats() *BeatDetector { return e.beats }

// Notes exposes the frequency-note emitter for duration commands and
// flushing during routing transitions.
func (e *AudioEngine) Notes() *FrequencyNoteEmitter { return e.notes }

// SetSynth attaches the soft synth to the output mix.
func (e *AudioEngine) SetSynth(s *SoftSynth) {
	e.mu.Lock()
	e.synth = s
	e.mu.Unlock()
}

// Synth returns the attached soft synth, or nil.
func (e *AudioEngine) Synth() *SoftSynth {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.synth
}

// AnalyzeFrame runs one analysis pass and emits frequency, beat and
// auto-note events for the bound input. Called from the frame loop.
func (e *AudioEngine) AnalyzeFrame(now time.Time) {
	e.mu.Lock()
	binding := e.binding
	e.mu.Unlock()
	if binding == nil || e.bus == nil {
		return
	}

	e.mono.Analyze()
	bands := e.mono.Bands()
	rms := e.mono.RMS()

	for _, ev := range e.notes.Update(now, bands) {
		e.bus.Emit(EventNote, ev)
	}
	if intensity, beat := e.beats.Update(now, rms); beat {
		e.bus.Emit(EventBeat, BeatEvent{Intensity: intensity, Source: binding.tag})
	}
	e.bus.Emit(EventFrequency, FrequencyEvent{Bands: bands, RMS: rms, Source: binding.tag})
}

// Close stops the output. Called at unload only.
func (e *AudioEngine) Close() {
	e.mu.Lock()
	out := e.output
	e.output = nil
	e.mu.Unlock()
	if out != nil {
		out.Close()
	}
}
