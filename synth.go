// synth.go - Soft synth realizing MIDI notes as an analyzable signal

package main

import (
	"math"
	"sync"
	"time"
)

const (
	synthAttackTime  = 0.005 // seconds
	synthReleaseTime = 0.120
	synthMixLevel    = 0.25 // headroom for chords
	maxSynthVoices   = 16
)

// Envelope phases.
const (
	envIdle = iota
	envAttack
	envSustain
	envRelease
)

type synthVoice struct {
	note      int
	frequency float64
	phase     float64
	velocity  float64
	level     float64
	envPhase  int

	// pendingOff defers a release arriving mid-attack until the attack
	// completes, so percussive hits still speak.
	pendingOff bool
}

// SoftSynth realizes incoming notes as sine voices. It owns its own
// analyzer: when the reactive input is MIDI, the routing layer reads the
// synth's analyzer instead of the graph's, which keeps the signal path
// circular without any circular ownership.
//
// The synth is only ever created by a direct user action; restored settings
// merely advertise the preference.
type SoftSynth struct {
	mu         sync.Mutex
	sampleRate float64
	voices     []*synthVoice
	channel    int // MIDI channel filter, -1 accepts all
	audible    bool

	beatKickNote    int
	beatKickEnabled bool

	analyzer *SpectrumAnalyzer
	beats    *BeatDetector
	notes    *FrequencyNoteEmitter

	attackStep  float64
	releaseStep float64

	scratch []float32
}

func NewSoftSynth(sampleRate int) *SoftSynth {
	return &SoftSynth{
		sampleRate:   float64(sampleRate),
		channel:      -1,
		beatKickNote: 36,
		analyzer:     NewSpectrumAnalyzer(sampleRate, defaultFFTSize, monoSmoothing),
		beats:        NewBeatDetector(),
		notes:        NewFrequencyNoteEmitter(),
		attackStep:   1.0 / (synthAttackTime * float64(sampleRate)),
		releaseStep:  1.0 / (synthReleaseTime * float64(sampleRate)),
	}
}

// noteFrequency converts a MIDI note number to Hz (A4 = 440).
func noteFrequency(note int) float64 {
	return 440.0 * math.Pow(2, float64(note-69)/12.0)
}

// NoteOn starts (or retriggers) a voice. Channel -1 on the synth accepts
// any channel; otherwise mismatched channels are ignored.
func (s *SoftSynth) NoteOn(channel, note, velocity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel >= 0 && channel != s.channel {
		return
	}
	for _, v := range s.voices {
		if v.note == note && v.envPhase != envIdle {
			v.velocity = float64(velocity) / 127.0
			v.envPhase = envAttack
			v.pendingOff = false
			return
		}
	}
	if len(s.voices) >= maxSynthVoices {
		// Steal the quietest voice.
		victim := s.voices[0]
		for _, v := range s.voices[1:] {
			if v.level < victim.level {
				victim = v
			}
		}
		victim.note = note
		victim.frequency = noteFrequency(note)
		victim.velocity = float64(velocity) / 127.0
		victim.envPhase = envAttack
		victim.pendingOff = false
		return
	}
	s.voices = append(s.voices, &synthVoice{
		note:      note,
		frequency: noteFrequency(note),
		velocity:  float64(velocity) / 127.0,
		envPhase:  envAttack,
	})
}

// NoteOff releases the voice for note.
func (s *SoftSynth) NoteOff(channel, note int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel >= 0 && channel != s.channel {
		return
	}
	for _, v := range s.voices {
		if v.note != note {
			continue
		}
		switch v.envPhase {
		case envAttack:
			v.pendingOff = true
		case envSustain:
			v.envPhase = envRelease
		}
	}
}

// FlushNotes releases every sounding voice immediately.
func (s *SoftSynth) FlushNotes() {
	s.mu.Lock()
	for _, v := range s.voices {
		if v.envPhase != envIdle {
			v.envPhase = envRelease
		}
	}
	s.mu.Unlock()
}

// TriggerBeatKick fires the configured kick note when beat-kick is enabled.
// The release is driven by the envelope, so no note-off is required.
func (s *SoftSynth) TriggerBeatKick(intensity float64) {
	s.mu.Lock()
	enabled := s.beatKickEnabled
	note := s.beatKickNote
	ch := s.channel
	s.mu.Unlock()
	if !enabled {
		return
	}
	if ch < 0 {
		ch = 0
	}
	vel := int(64 + intensity*63)
	s.NoteOn(ch, note, vel)
	// Short percussive hit: release right away, the attack still speaks.
	s.NoteOff(ch, note)
}

// SetChannel restricts which MIDI channel the synth listens to (-1 = all).
func (s *SoftSynth) SetChannel(ch int) {
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()
}

// SetAudible routes the synth into the output mix. Analysis is unaffected.
func (s *SoftSynth) SetAudible(on bool) {
	s.mu.Lock()
	s.audible = on
	s.mu.Unlock()
}

// Audible reports whether the synth reaches the output.
func (s *SoftSynth) Audible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audible
}

// SetBeatKick configures the kick-on-beat behavior.
func (s *SoftSynth) SetBeatKick(enabled bool, note int) {
	s.mu.Lock()
	s.beatKickEnabled = enabled
	if note >= 0 && note <= 127 {
		s.beatKickNote = note
	}
	s.mu.Unlock()
}

// ActiveVoices returns how many voices are currently sounding.
func (s *SoftSynth) ActiveVoices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.voices {
		if v.envPhase != envIdle {
			n++
		}
	}
	return n
}

// MixInto generates len(dst) samples, feeds them to the synth's analyzer,
// and adds them to dst when audible. Called from the output pull path.
func (s *SoftSynth) MixInto(dst []float32) {
	s.mu.Lock()
	if cap(s.scratch) < len(dst) {
		s.scratch = make([]float32, len(dst))
	}
	buf := s.scratch[:len(dst)]

	for i := range buf {
		var sample float64
		for _, v := range s.voices {
			if v.envPhase == envIdle {
				continue
			}
			switch v.envPhase {
			case envAttack:
				v.level += s.attackStep
				if v.level >= 1 {
					v.level = 1
					if v.pendingOff {
						v.pendingOff = false
						v.envPhase = envRelease
					} else {
						v.envPhase = envSustain
					}
				}
			case envRelease:
				v.level -= s.releaseStep
				if v.level <= 0 {
					v.level = 0
					v.envPhase = envIdle
					continue
				}
			}
			sample += math.Sin(2*math.Pi*v.phase) * v.level * v.velocity * synthMixLevel
			v.phase += v.frequency / s.sampleRate
			if v.phase >= 1 {
				v.phase -= 1
			}
		}
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		buf[i] = float32(sample)
	}
	audible := s.audible
	s.mu.Unlock()

	s.analyzer.Push(buf)
	if audible {
		for i := range dst {
			dst[i] += buf[i]
		}
	}
}

// Bands returns the synth analyzer's last band snapshot.
func (s *SoftSynth) Bands() BandEnergies {
	return s.analyzer.Bands()
}

// AnalyzeFrame runs the synth's own analysis pass and returns the spectral
// snapshot plus any beat detected on the synth signal. The routing matrix
// emits these when the reactive input is MIDI.
func (s *SoftSynth) AnalyzeFrame(now time.Time) (FrequencyEvent, float64, bool) {
	s.analyzer.Analyze()
	bands := s.analyzer.Bands()
	rms := s.analyzer.RMS()
	intensity, beat := s.beats.Update(now, rms)
	return FrequencyEvent{Bands: bands, RMS: rms, Source: SourceMIDISynth}, intensity, beat
}
