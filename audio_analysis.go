// audio_analysis.go - FFT spectrum analyzer and band energy extraction

package main

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	// defaultFFTSize matches a 2048-point analyser window.
	defaultFFTSize = 2048

	// monoSmoothing and scopeSmoothing are the per-bin exponential smoothing
	// constants: heavy smoothing for band energies, none for the
	// oscilloscope-style stereo taps.
	monoSmoothing  = 0.8
	scopeSmoothing = 0.0
)

// analysis band edges in Hz: sub, bass, lowMid, mid, highMid, high.
var bandEdges = [7]float64{20, 60, 250, 500, 2000, 4000, 20000}

// SpectrumAnalyzer accumulates mono samples into a rolling window and
// produces smoothed bin magnitudes, six-band energies and RMS. Push and
// Analyze may run on different goroutines.
type SpectrumAnalyzer struct {
	mu         sync.Mutex
	sampleRate float64
	fftSize    int
	smoothing  float64

	ring    []float64
	pos     int
	filled  bool
	binMags []float64 // smoothed magnitudes, fftSize/2 bins
	rms     float64
}

func NewSpectrumAnalyzer(sampleRate int, fftSize int, smoothing float64) *SpectrumAnalyzer {
	if fftSize <= 0 {
		fftSize = defaultFFTSize
	}
	return &SpectrumAnalyzer{
		sampleRate: float64(sampleRate),
		fftSize:    fftSize,
		smoothing:  smoothing,
		ring:       make([]float64, fftSize),
		binMags:    make([]float64, fftSize/2),
	}
}

// Push appends samples to the rolling window.
func (a *SpectrumAnalyzer) Push(samples []float32) {
	a.mu.Lock()
	for _, s := range samples {
		a.ring[a.pos] = float64(s)
		a.pos++
		if a.pos == a.fftSize {
			a.pos = 0
			a.filled = true
		}
	}
	a.mu.Unlock()
}

// Reset discards the window and smoothed state. Called on every graph
// rebind so no frame can carry energy from the previous input.
func (a *SpectrumAnalyzer) Reset() {
	a.mu.Lock()
	for i := range a.ring {
		a.ring[i] = 0
	}
	for i := range a.binMags {
		a.binMags[i] = 0
	}
	a.pos = 0
	a.filled = false
	a.rms = 0
	a.mu.Unlock()
}

// Analyze runs one windowed FFT over the current contents and folds the
// magnitudes into the smoothed bins. Call once per frame.
func (a *SpectrumAnalyzer) Analyze() {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf := make([]float64, a.fftSize)
	// Unroll the ring so buf is in chronological order.
	n := copy(buf, a.ring[a.pos:])
	copy(buf[n:], a.ring[:a.pos])

	var sum float64
	for _, s := range buf {
		sum += s * s
	}
	a.rms = math.Min(1, math.Sqrt(sum/float64(a.fftSize)))

	window.Apply(buf, window.Hann)
	spectrum := fft.FFTReal(buf)

	// A full-scale sine under a Hann window peaks near fftSize/4.
	norm := float64(a.fftSize) / 4.0
	k := a.smoothing
	for i := range a.binMags {
		mag := math.Min(1, cmplx.Abs(spectrum[i])/norm)
		a.binMags[i] = k*a.binMags[i] + (1-k)*mag
	}
}

// binRange maps a frequency span onto FFT bin indices.
func (a *SpectrumAnalyzer) binRange(loHz, hiHz float64) (int, int) {
	hzPerBin := a.sampleRate / float64(a.fftSize)
	lo := int(loHz / hzPerBin)
	hi := int(hiHz / hzPerBin)
	if lo < 1 {
		lo = 1 // skip DC
	}
	if hi >= len(a.binMags) {
		hi = len(a.binMags) - 1
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// bandMean returns the mean smoothed magnitude across a frequency span.
func (a *SpectrumAnalyzer) bandMean(loHz, hiHz float64) float64 {
	lo, hi := a.binRange(loHz, hiHz)
	var sum float64
	for i := lo; i <= hi; i++ {
		sum += a.binMags[i]
	}
	return math.Min(1, sum/float64(hi-lo+1))
}

// Bands extracts the six fixed band energies from the smoothed spectrum.
func (a *SpectrumAnalyzer) Bands() BandEnergies {
	a.mu.Lock()
	defer a.mu.Unlock()
	return BandEnergies{
		Sub:     a.bandMean(bandEdges[0], bandEdges[1]),
		Bass:    a.bandMean(bandEdges[1], bandEdges[2]),
		LowMid:  a.bandMean(bandEdges[2], bandEdges[3]),
		Mid:     a.bandMean(bandEdges[3], bandEdges[4]),
		HighMid: a.bandMean(bandEdges[4], bandEdges[5]),
		High:    a.bandMean(bandEdges[5], bandEdges[6]),
	}
}

// RMS returns the window RMS captured by the last Analyze call.
func (a *SpectrumAnalyzer) RMS() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rms
}

// Levels returns the bands as an ordered array, lowest first. Used by the
// frequency-to-note emitter and the reactive MIDI output.
func (b BandEnergies) Levels() [6]float64 {
	return [6]float64{b.Sub, b.Bass, b.LowMid, b.Mid, b.HighMid, b.High}
}
