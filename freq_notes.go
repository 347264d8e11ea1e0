// freq_notes.go - Band-energy to MIDI note emitter

package main

import (
	"math"
	"sync"
	"time"
)

const (
	// freqNoteThreshold is the band level a note fires above (strictly).
	freqNoteThreshold = 0.6

	defaultNoteDuration = 200 * time.Millisecond
	defaultNoteCooldown = 150 * time.Millisecond
)

// freqNoteTable maps the six analysis bands onto fixed MIDI notes, an
// octave apart from C2 to C7.
var freqNoteTable = [6]int{36, 48, 60, 72, 84, 96}

// FrequencyNoteEmitter turns band energy crossings into note on/off pairs.
// Every note-on it emits is guaranteed a matching note-off: either the
// auto-release timer expires on a later Update, or Flush is called when the
// source deactivates or the graph rebinds.
type FrequencyNoteEmitter struct {
	mu           sync.Mutex
	noteDuration time.Duration
	cooldown     time.Duration

	active      map[int]time.Time // note -> auto-off deadline
	lastTrigger map[int]time.Time // note -> last on, for the cooldown window
}

func NewFrequencyNoteEmitter() *FrequencyNoteEmitter {
	return &FrequencyNoteEmitter{
		noteDuration: defaultNoteDuration,
		cooldown:     defaultNoteCooldown,
		active:       make(map[int]time.Time),
		lastTrigger:  make(map[int]time.Time),
	}
}

// SetNoteDuration adjusts the auto-release interval for future notes.
func (e *FrequencyNoteEmitter) SetNoteDuration(d time.Duration) {
	e.mu.Lock()
	e.noteDuration = d
	e.mu.Unlock()
}

// Update processes one frame of band levels and returns the note events due
// this frame: auto-releases first, then fresh triggers.
func (e *FrequencyNoteEmitter) Update(now time.Time, bands BandEnergies) []NoteEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []NoteEvent

	for note, offAt := range e.active {
		if !now.Before(offAt) {
			delete(e.active, note)
			out = append(out, NoteEvent{Note: note, Velocity: 0, Source: SourceAudioFreq})
		}
	}

	levels := bands.Levels()
	for i, level := range levels {
		if level <= freqNoteThreshold {
			continue
		}
		note := freqNoteTable[i]
		if _, held := e.active[note]; held {
			continue
		}
		if last, ok := e.lastTrigger[note]; ok && now.Sub(last) < e.cooldown {
			continue
		}
		vel := int(math.Floor(level * 127))
		if vel > 127 {
			vel = 127
		}
		e.active[note] = now.Add(e.noteDuration)
		e.lastTrigger[note] = now
		out = append(out, NoteEvent{Note: note, Velocity: vel, Source: SourceAudioFreq})
	}
	return out
}

// Flush releases every held note immediately. Returned events must be
// emitted by the caller before any further frequency event.
func (e *FrequencyNoteEmitter) Flush() []NoteEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]NoteEvent, 0, len(e.active))
	for note := range e.active {
		out = append(out, NoteEvent{Note: note, Velocity: 0, Source: SourceAudioFreq})
	}
	e.active = make(map[int]time.Time)
	return out
}

// ActiveNotes returns the currently held notes, sorted ascending.
func (e *FrequencyNoteEmitter) ActiveNotes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	notes := make([]int, 0, len(e.active))
	for n := range e.active {
		notes = append(notes, n)
	}
	for i := 1; i < len(notes); i++ {
		for j := i; j > 0 && notes[j] < notes[j-1]; j-- {
			notes[j], notes[j-1] = notes[j-1], notes[j]
		}
	}
	return notes
}
