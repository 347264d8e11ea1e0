package main

import (
	"math"
	"testing"
	"time"
)

// TestBeatOnRMSSpike verifies a kick-like spike over a quiet floor triggers
// once and produces an intensity in (0,1].
func TestBeatOnRMSSpike(t *testing.T) {
	d := NewBeatDetector()
	t0 := time.Unix(0, 0)

	// Establish a quiet floor.
	for i := 0; i < 40; i++ {
		d.Update(t0.Add(time.Duration(i)*23*time.Millisecond), 0.1)
	}

	intensity, beat := d.Update(t0.Add(time.Second), 0.5)
	if !beat {
		t.Fatal("5x spike over floor did not trigger")
	}
	if intensity <= 0 || intensity > 1 {
		t.Fatalf("intensity = %v, expected in (0,1]", intensity)
	}
}

// TestBeatRefractoryPeriod verifies the min-time gate suppresses a second
// spike inside the window and admits one after it.
func TestBeatRefractoryPeriod(t *testing.T) {
	d := NewBeatDetector()
	t0 := time.Unix(0, 0)
	for i := 0; i < 40; i++ {
		d.Update(t0.Add(time.Duration(i)*23*time.Millisecond), 0.1)
	}

	if _, beat := d.Update(t0.Add(time.Second), 0.6); !beat {
		t.Fatal("first spike did not trigger")
	}
	if _, beat := d.Update(t0.Add(1200*time.Millisecond), 0.6); beat {
		t.Fatal("spike 200ms after a beat triggered inside the 400ms window")
	}
	if _, beat := d.Update(t0.Add(1500*time.Millisecond), 0.6); !beat {
		t.Fatal("spike past the refractory window did not trigger")
	}
}

// TestSyntheticKickAt120BPM verifies spikes every 500ms produce beats with
// an average interval of 500ms +/- 50ms.
func TestSyntheticKickAt120BPM(t *testing.T) {
	d := NewBeatDetector()
	t0 := time.Unix(0, 0)

	var beatTimes []time.Time
	frame := 23 * time.Millisecond
	for i := 0; i < 400; i++ {
		now := t0.Add(time.Duration(i) * frame)
		rms := 0.08
		// Kick envelope: one hot frame every ~500ms.
		if (time.Duration(i)*frame)%(500*time.Millisecond) < frame {
			rms = 0.6
		}
		if _, beat := d.Update(now, rms); beat {
			beatTimes = append(beatTimes, now)
		}
	}

	if len(beatTimes) < 10 {
		t.Fatalf("only %d beats detected, expected a steady stream", len(beatTimes))
	}
	var total time.Duration
	for i := 1; i < len(beatTimes); i++ {
		total += beatTimes[i].Sub(beatTimes[i-1])
	}
	avg := total / time.Duration(len(beatTimes)-1)
	if avg < 450*time.Millisecond || avg > 550*time.Millisecond {
		t.Fatalf("average beat interval = %v, expected 500ms +/- 50ms", avg)
	}
}

// TestThresholdBoundaries verifies threshold 1.0 fires on any rising energy
// and +Inf never fires.
func TestThresholdBoundaries(t *testing.T) {
	d := NewBeatDetector()
	d.SetThreshold(1.0)
	t0 := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		d.Update(t0.Add(time.Duration(i)*23*time.Millisecond), 0.1)
	}
	if _, beat := d.Update(t0.Add(time.Second), 0.11); !beat {
		t.Fatal("threshold 1.0 did not fire on rising energy")
	}

	inf := NewBeatDetector()
	inf.SetThreshold(math.Inf(1))
	for i := 0; i < 10; i++ {
		inf.Update(t0.Add(time.Duration(i)*23*time.Millisecond), 0.1)
	}
	if _, beat := inf.Update(t0.Add(time.Second), 100); beat {
		t.Fatal("infinite threshold fired")
	}
}
