// timebase.go - MIDI-clock-derived tempo and song position engine

package main

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// clocksPerQuarter is fixed by the MIDI spec: 24 clocks per quarter note.
	clocksPerQuarter = 24

	// bpmSmoothing is the exponential moving average factor applied to
	// inter-clock intervals to ride out driver jitter.
	bpmSmoothing = 0.1

	// sppValidWindow bounds how long a position stays valid without a fresh
	// SPP. Beyond it the public position is a sentinel; the engine must not
	// silently extrapolate.
	sppValidWindow = 5 * time.Second

	// sppWarnAfter is when a one-shot staleness warning is raised.
	sppWarnAfter = 10 * time.Second
)

// TimebaseSnapshot is the per-frame view handed to renderers and the state
// broadcaster. PositionValid gates Position, BeatPhase and BarPhase.
type TimebaseSnapshot struct {
	BPM           float64
	Position      float64 // sixteenths, interpolated
	PositionText  string  // "bar.beat.sixteenth", "" when invalid
	BeatPhase     float64 // 0..1
	BarPhase      float64 // 0..1
	PositionValid bool
	Playing       bool
}

// Timebase fuses MIDI clock, SPP and transport bytes into a shared musical
// position. All inputs carry explicit timestamps so the engine is
// deterministic under test; the frame loop calls Snapshot with the frame
// time to interpolate between clocks.
type Timebase struct {
	mu sync.Mutex

	bus *InputManager
	log *logrus.Entry

	bpm           float64
	clockInterval float64 // EMA of inter-clock spacing, milliseconds
	lastClockTime time.Time
	clockCount    int // counts clocks toward the next quarter

	position       float64 // sixteenths at lastMIDIUpdate
	lastMIDIUpdate time.Time
	lastSPPTime    time.Time
	lastSPPValue   int
	pendingSPP     int // applied on Start, -1 when none
	playing        bool
	staleWarned    bool
}

func NewTimebase(bus *InputManager) *Timebase {
	return &Timebase{
		bus:        bus,
		log:        componentLog("timebase"),
		bpm:        120,
		pendingSPP: -1,
	}
}

// BPM returns the current tempo estimate.
func (tb *Timebase) BPM() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.bpm
}

// OnClock ingests one 0xF8 byte. Every 24 clocks the engine advances the
// beat counter and emits a phase-0 beat event with source midi.
func (tb *Timebase) OnClock(t time.Time) {
	tb.mu.Lock()

	if !tb.lastClockTime.IsZero() {
		interval := float64(t.Sub(tb.lastClockTime).Microseconds()) / 1000.0
		if interval > 0 && interval < 2000 {
			if tb.clockInterval == 0 {
				tb.clockInterval = interval
			} else {
				tb.clockInterval += bpmSmoothing * (interval - tb.clockInterval)
			}
			tb.bpm = 60000.0 / (tb.clockInterval * clocksPerQuarter)
		}
	}
	tb.lastClockTime = t

	// Fold elapsed clock time into the anchored position, one clock being a
	// sixth of a sixteenth. Only while playing: many DAWs free-run the clock
	// with the transport stopped, and that must not drift the anchor.
	if tb.playing {
		tb.position += 1.0 / 6.0
		tb.lastMIDIUpdate = t
	}
	tb.clockCount++
	quarterDone := tb.clockCount >= clocksPerQuarter
	if quarterDone {
		tb.clockCount = 0
	}
	bpm := tb.bpm
	tb.mu.Unlock()

	if quarterDone && tb.bus != nil {
		tb.bus.Emit(EventBeat, BeatEvent{Intensity: 1, Phase: 0, Source: SourceMIDI})
		tb.bus.Emit(EventTransport, TransportEvent{State: TransportBPM, BPM: bpm, Source: SourceMIDI})
	}
}

// OnSongPosition anchors the position. Equal repeated values only refresh
// the freshness timestamp.
func (tb *Timebase) OnSongPosition(t time.Time, sixteenths int) {
	tb.mu.Lock()
	// A repeated identical SPP only refreshes the freshness timestamp; it
	// must not yank an interpolated position back to its anchor.
	if sixteenths != tb.lastSPPValue || tb.lastSPPTime.IsZero() {
		tb.position = float64(sixteenths)
		tb.lastMIDIUpdate = t
	}
	tb.lastSPPValue = sixteenths
	tb.lastSPPTime = t
	tb.pendingSPP = sixteenths
	tb.staleWarned = false
	tb.mu.Unlock()

	if tb.bus != nil {
		tb.bus.Emit(EventTransport, TransportEvent{
			State:    TransportSPP,
			Position: sixteenths,
			Source:   SourceMIDISPP,
		})
	}
}

// OnStart begins playback. A pending SPP (received while stopped) is applied;
// a Start with no prior SPP leaves the anchored position untouched.
func (tb *Timebase) OnStart(t time.Time) {
	tb.mu.Lock()
	tb.playing = true
	tb.clockCount = 0
	if tb.pendingSPP >= 0 {
		tb.position = float64(tb.pendingSPP)
	}
	tb.lastMIDIUpdate = t
	tb.mu.Unlock()
	tb.emitTransport(TransportPlay)
}

// OnContinue resumes playback at the current position.
func (tb *Timebase) OnContinue(t time.Time) {
	tb.mu.Lock()
	tb.playing = true
	tb.lastMIDIUpdate = t
	tb.mu.Unlock()
	tb.emitTransport(TransportContinue)
}

// OnStop halts playback; position is retained.
func (tb *Timebase) OnStop(t time.Time) {
	tb.mu.Lock()
	tb.playing = false
	tb.mu.Unlock()
	tb.emitTransport(TransportStop)
}

func (tb *Timebase) emitTransport(state TransportState) {
	if tb.bus != nil {
		tb.bus.Emit(EventTransport, TransportEvent{State: state, Source: SourceMIDI})
	}
}

// Snapshot interpolates the position to now. Outside the SPP validity
// window the position fields are zeroed and PositionValid is false; past
// the warning threshold a single warning is logged per silent interval.
func (tb *Timebase) Snapshot(now time.Time) TimebaseSnapshot {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	snap := TimebaseSnapshot{BPM: tb.bpm, Playing: tb.playing}

	if tb.lastSPPTime.IsZero() || now.Sub(tb.lastSPPTime) > sppValidWindow {
		if !tb.lastSPPTime.IsZero() && now.Sub(tb.lastSPPTime) > sppWarnAfter && !tb.staleWarned {
			tb.staleWarned = true
			tb.log.Warn("no song position received for 10s; position frozen")
		}
		return snap
	}

	pos := tb.position
	if tb.playing && !tb.lastMIDIUpdate.IsZero() {
		elapsedMs := float64(now.Sub(tb.lastMIDIUpdate).Microseconds()) / 1000.0
		pos += elapsedMs * tb.bpm * 4.0 / 60000.0
	}

	snap.Position = pos
	snap.PositionText = formatPosition(pos)
	snap.BeatPhase = math.Mod(pos/4.0, 1.0)
	snap.BarPhase = math.Mod(pos/16.0, 1.0)
	snap.PositionValid = true
	return snap
}

// formatPosition renders sixteenths as "bar.beat.sixteenth" (all zero-based).
func formatPosition(sixteenths float64) string {
	s := int(sixteenths)
	return fmt.Sprintf("%d.%d.%d", s/16, (s/4)%4, s%4)
}
