package main

import (
	"math"
	"testing"
)

// generate pulls n samples through MixInto and returns them.
func generate(s *SoftSynth, n int) []float32 {
	dst := make([]float32, n)
	s.MixInto(dst)
	return dst
}

// TestVoiceLifecycle verifies note-on starts a voice, note-off releases it,
// and the envelope decays to silence.
func TestVoiceLifecycle(t *testing.T) {
	s := NewSoftSynth(44100)
	s.SetAudible(true)

	s.NoteOn(0, 69, 127) // A4
	if s.ActiveVoices() != 1 {
		t.Fatalf("voices = %d after note-on, expected 1", s.ActiveVoices())
	}

	out := generate(s, 4410) // 100ms
	var peak float64
	for _, v := range out {
		if a := math.Abs(float64(v)); a > peak {
			peak = a
		}
	}
	if peak < 0.1 {
		t.Fatalf("peak = %v, expected audible A4", peak)
	}

	s.NoteOff(0, 69)
	generate(s, 44100/4) // quarter second, far beyond the release time
	if s.ActiveVoices() != 0 {
		t.Fatalf("voices = %d after release, expected 0", s.ActiveVoices())
	}
}

// TestChannelFilter verifies the synth ignores notes on other channels.
func TestChannelFilter(t *testing.T) {
	s := NewSoftSynth(44100)
	s.SetChannel(3)

	s.NoteOn(0, 60, 100)
	if s.ActiveVoices() != 0 {
		t.Fatal("note on channel 0 accepted by channel-3 synth")
	}
	s.NoteOn(3, 60, 100)
	if s.ActiveVoices() != 1 {
		t.Fatal("note on channel 3 not accepted")
	}
}

// TestInaudibleSynthStillAnalyzed verifies the audible flag gates the mix
// but not the analyzer feed.
func TestInaudibleSynthStillAnalyzed(t *testing.T) {
	s := NewSoftSynth(44100)
	s.SetAudible(false)
	s.NoteOn(0, 69, 127)

	dst := make([]float32, 4096)
	s.MixInto(dst)
	for _, v := range dst {
		if v != 0 {
			t.Fatal("inaudible synth leaked into the output mix")
		}
	}

	s.analyzer.Analyze()
	if s.analyzer.RMS() == 0 {
		t.Fatal("inaudible synth produced no analyzable signal")
	}
}

// TestVoiceStealing verifies the polyphony cap steals rather than grows.
func TestVoiceStealing(t *testing.T) {
	s := NewSoftSynth(44100)
	for n := 0; n < maxSynthVoices+4; n++ {
		s.NoteOn(0, 40+n, 100)
	}
	if got := s.ActiveVoices(); got > maxSynthVoices {
		t.Fatalf("voices = %d, expected at most %d", got, maxSynthVoices)
	}
}

// TestBeatKick verifies the kick only fires when enabled and self-releases.
func TestBeatKick(t *testing.T) {
	s := NewSoftSynth(44100)

	s.TriggerBeatKick(1)
	if s.ActiveVoices() != 0 {
		t.Fatal("beat kick fired while disabled")
	}

	s.SetBeatKick(true, 36)
	s.TriggerBeatKick(1)
	if s.ActiveVoices() == 0 {
		t.Fatal("beat kick did not fire")
	}
	generate(s, 44100/4)
	if s.ActiveVoices() != 0 {
		t.Fatal("beat kick voice did not self-release")
	}
}

// TestBeatKickOnRestrictedChannel verifies the kick targets the synth's own
// channel so its note passes the channel filter, including while the channel
// is being changed concurrently.
func TestBeatKickOnRestrictedChannel(t *testing.T) {
	s := NewSoftSynth(44100)
	s.SetChannel(5)
	s.SetBeatKick(true, 36)

	s.TriggerBeatKick(1)
	if s.ActiveVoices() == 0 {
		t.Fatal("beat kick filtered out on its own channel")
	}
	s.FlushNotes()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.SetChannel(i % 16)
		}
	}()
	for i := 0; i < 200; i++ {
		s.TriggerBeatKick(0.5)
	}
	<-done
}
