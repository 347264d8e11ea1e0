// beat_detector.go - History-based adaptive beat detection

package main

import (
	"math"
	"sync"
	"time"
)

const (
	// beatHistorySize holds about one second of frame-rate RMS samples.
	beatHistorySize = 43

	defaultBeatThreshold = 1.6
	defaultBeatMinTime   = 400 * time.Millisecond
)

// BeatDetector signals a beat when the instantaneous RMS exceeds the rolling
// mean by a configurable ratio and enough time has passed since the last
// beat. Intensity is how far past the mean the spike landed, clamped to 1.
type BeatDetector struct {
	mu        sync.Mutex
	threshold float64
	minTime   time.Duration

	history  [beatHistorySize]float64
	pos      int
	count    int
	lastBeat time.Time
}

func NewBeatDetector() *BeatDetector {
	return &BeatDetector{
		threshold: defaultBeatThreshold,
		minTime:   defaultBeatMinTime,
	}
}

// SetThreshold updates the spike ratio; 1.0 triggers on any rising energy,
// +Inf never triggers.
func (d *BeatDetector) SetThreshold(ratio float64) {
	d.mu.Lock()
	d.threshold = ratio
	d.mu.Unlock()
}

// SetMinTime updates the refractory interval between beats.
func (d *BeatDetector) SetMinTime(min time.Duration) {
	d.mu.Lock()
	d.minTime = min
	d.mu.Unlock()
}

// Reset clears the history. Called on graph rebinds.
func (d *BeatDetector) Reset() {
	d.mu.Lock()
	d.history = [beatHistorySize]float64{}
	d.pos = 0
	d.count = 0
	d.lastBeat = time.Time{}
	d.mu.Unlock()
}

// Update folds one frame's RMS into the history and reports whether this
// frame is a beat, with its intensity.
func (d *BeatDetector) Update(now time.Time, rms float64) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mean := d.mean()
	d.history[d.pos] = rms
	d.pos = (d.pos + 1) % beatHistorySize
	if d.count < beatHistorySize {
		d.count++
	}

	if d.count < 4 || mean <= 0 {
		return 0, false
	}
	if math.IsInf(d.threshold, 1) {
		return 0, false
	}
	if rms <= d.threshold*mean {
		return 0, false
	}
	if !d.lastBeat.IsZero() && now.Sub(d.lastBeat) < d.minTime {
		return 0, false
	}

	d.lastBeat = now
	intensity := math.Min(1, math.Max(0, rms/mean-1))
	return intensity, true
}

func (d *BeatDetector) mean() float64 {
	if d.count == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < d.count; i++ {
		sum += d.history[i]
	}
	return sum / float64(d.count)
}
