// audio_eq.go - Input trim and three-band kill EQ

package main

import (
	"math"
	"sync"
)

// Kill EQ band centers in Hz: low, mid, high.
var killEQCenters = [3]float64{100, 1000, 8000}

const (
	killEQCutDB = -40.0
	killEQQ     = 1.0
)

// biquad is a direct-form-1 second-order filter. Coefficients follow the
// RBJ audio EQ cookbook peaking-EQ form.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	x1, x2     float64
	y1, y2     float64
}

// setPeaking configures the section as a peaking EQ at f0 with the given
// gain in dB. Gain 0 collapses to a pass-through.
func (f *biquad) setPeaking(sampleRate, f0, q, gainDB float64) {
	if gainDB == 0 {
		f.b0, f.b1, f.b2, f.a1, f.a2 = 1, 0, 0, 0, 0
		return
	}
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * f0 / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosw := math.Cos(w0)

	b0 := 1 + alpha*a
	b1 := -2 * cosw
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := -2 * cosw
	a2 := 1 - alpha/a

	f.b0 = b0 / a0
	f.b1 = b1 / a0
	f.b2 = b2 / a0
	f.a1 = a1 / a0
	f.a2 = a2 / a0
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

func (f *biquad) reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

// KillEQ is a per-band binary cut: each band is either flat or attenuated
// by 40 dB at its center frequency.
type KillEQ struct {
	mu         sync.Mutex
	sampleRate float64
	killed     [3]bool
	sections   [3]biquad
}

func NewKillEQ(sampleRate int) *KillEQ {
	eq := &KillEQ{sampleRate: float64(sampleRate)}
	for i := range eq.sections {
		eq.sections[i].setPeaking(eq.sampleRate, killEQCenters[i], killEQQ, 0)
	}
	return eq
}

// SetKill cuts or restores one band (0=low, 1=mid, 2=high).
func (eq *KillEQ) SetKill(band int, kill bool) {
	if band < 0 || band >= len(eq.sections) {
		return
	}
	eq.mu.Lock()
	if eq.killed[band] != kill {
		eq.killed[band] = kill
		gain := 0.0
		if kill {
			gain = killEQCutDB
		}
		eq.sections[band].setPeaking(eq.sampleRate, killEQCenters[band], killEQQ, gain)
		eq.sections[band].reset()
	}
	eq.mu.Unlock()
}

// Killed reports the current cut state of a band.
func (eq *KillEQ) Killed(band int) bool {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	if band < 0 || band >= len(eq.killed) {
		return false
	}
	return eq.killed[band]
}

// Process filters a block in place.
func (eq *KillEQ) Process(samples []float32) {
	eq.mu.Lock()
	anyKilled := eq.killed[0] || eq.killed[1] || eq.killed[2]
	if !anyKilled {
		eq.mu.Unlock()
		return
	}
	for i, s := range samples {
		x := float64(s)
		for b := range eq.sections {
			if eq.killed[b] {
				x = eq.sections[b].process(x)
			}
		}
		samples[i] = float32(x)
	}
	eq.mu.Unlock()
}

// Reset clears filter state without touching kill flags.
func (eq *KillEQ) Reset() {
	eq.mu.Lock()
	for i := range eq.sections {
		eq.sections[i].reset()
	}
	eq.mu.Unlock()
}

// trimGainFor maps the 0-100 input trim knob onto a linear gain with the
// neutral point at 70: 0-70 spans roughly -6..0 dB (0.4-0.7), 70-100 spans
// 0..+3 dB (0.7-1.0).
func trimGainFor(knob float64) float64 {
	if knob < 0 {
		knob = 0
	}
	if knob > 100 {
		knob = 100
	}
	if knob <= 70 {
		return 0.4 + (knob/70)*0.3
	}
	return 0.7 + ((knob-70)/30)*0.3
}
