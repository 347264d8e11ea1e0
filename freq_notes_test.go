package main

import (
	"testing"
	"time"
)

// bandsWithBass builds a band vector with only the bass band set.
func bandsWithBass(level float64) BandEnergies {
	return BandEnergies{Bass: level}
}

// TestNoteFiresAboveThreshold verifies 0.6 exactly does not trigger while
// 0.6+epsilon does, with velocity floor(level*127).
func TestNoteFiresAboveThreshold(t *testing.T) {
	e := NewFrequencyNoteEmitter()
	t0 := time.Unix(0, 0)

	if evs := e.Update(t0, bandsWithBass(0.6)); len(evs) != 0 {
		t.Fatalf("band at exactly 0.6 emitted %v", evs)
	}
	evs := e.Update(t0.Add(time.Millisecond), bandsWithBass(0.601))
	if len(evs) != 1 {
		t.Fatalf("band above 0.6 emitted %d events, expected 1", len(evs))
	}
	ev := evs[0]
	if ev.Note != 48 || ev.Source != SourceAudioFreq {
		t.Fatalf("event = %+v, expected bass note 48 from audio-frequency", ev)
	}
	if ev.Velocity != int(0.601*127) {
		t.Fatalf("velocity = %d, expected %d", ev.Velocity, int(0.601*127))
	}
}

// TestAutoRelease verifies a matching note-off arrives within noteDuration
// plus one frame once the band falls silent.
func TestAutoRelease(t *testing.T) {
	e := NewFrequencyNoteEmitter()
	e.SetNoteDuration(200 * time.Millisecond)
	t0 := time.Unix(0, 0)

	e.Update(t0, bandsWithBass(0.9))
	if evs := e.Update(t0.Add(150*time.Millisecond), BandEnergies{}); len(evs) != 0 {
		t.Fatalf("released early: %v", evs)
	}
	evs := e.Update(t0.Add(210*time.Millisecond), BandEnergies{})
	if len(evs) != 1 || evs[0].Velocity != 0 || evs[0].Note != 48 {
		t.Fatalf("auto-release events = %v, expected single note-off 48", evs)
	}
	if len(e.ActiveNotes()) != 0 {
		t.Fatalf("notes still active after release: %v", e.ActiveNotes())
	}
}

// TestHeldNoteNotRetriggered verifies a sustained band does not fire again
// while the note is active, and the cooldown gates the retrigger after the
// auto-release.
func TestHeldNoteNotRetriggered(t *testing.T) {
	e := NewFrequencyNoteEmitter()
	e.SetNoteDuration(100 * time.Millisecond)
	t0 := time.Unix(0, 0)

	if evs := e.Update(t0, bandsWithBass(0.9)); len(evs) != 1 {
		t.Fatalf("initial trigger = %v", evs)
	}
	if evs := e.Update(t0.Add(50*time.Millisecond), bandsWithBass(0.9)); len(evs) != 0 {
		t.Fatalf("retriggered while held: %v", evs)
	}

	// At 110ms the off fires; the cooldown (150ms from t0) still blocks the
	// re-trigger on the same frame.
	evs := e.Update(t0.Add(110*time.Millisecond), bandsWithBass(0.9))
	if len(evs) != 1 || evs[0].Velocity != 0 {
		t.Fatalf("expected lone note-off at 110ms, got %v", evs)
	}

	// Past the cooldown the band may fire again.
	evs = e.Update(t0.Add(160*time.Millisecond), bandsWithBass(0.9))
	if len(evs) != 1 || evs[0].Velocity == 0 {
		t.Fatalf("expected retrigger after cooldown, got %v", evs)
	}
}

// TestFlushReleasesEverything verifies Flush emits note-off for the whole
// active set and clears it.
func TestFlushReleasesEverything(t *testing.T) {
	e := NewFrequencyNoteEmitter()
	t0 := time.Unix(0, 0)

	e.Update(t0, BandEnergies{Bass: 0.9, Mid: 0.8, High: 0.7})
	if got := len(e.ActiveNotes()); got != 3 {
		t.Fatalf("active = %d, expected 3", got)
	}

	offs := e.Flush()
	if len(offs) != 3 {
		t.Fatalf("flush emitted %d events, expected 3", len(offs))
	}
	for _, ev := range offs {
		if ev.Velocity != 0 {
			t.Fatalf("flush emitted non-off event %+v", ev)
		}
	}
	if len(e.ActiveNotes()) != 0 {
		t.Fatal("active set not cleared by flush")
	}
}
