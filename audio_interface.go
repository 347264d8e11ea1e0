// audio_interface.go - Audio output backend interface and selection

package main

import (
	"fmt"
	"sync"
)

// SampleProvider fills dst with the next output samples. The provider must
// not block; an underrun is the provider's zeros, not the backend's problem.
type SampleProvider interface {
	ProvideSamples(dst []float32)
}

// AudioOutput is the playback half of the engine. Only the monitor tap and
// the soft synth ever reach it; analysis never depends on it.
type AudioOutput interface {
	Start() error
	Stop()
	Close()
	IsStarted() bool
}

// Predefined audio backend types.
const (
	AUDIO_BACKEND_OTO  = iota // OTO v3 platform output (headless builds: no-op)
	AUDIO_BACKEND_NULL        // discards samples; used by tests
)

// NewAudioOutputBackend creates an output using the selected backend.
func NewAudioOutputBackend(backend int, sampleRate int, provider SampleProvider) (AudioOutput, error) {
	switch backend {
	case AUDIO_BACKEND_OTO:
		return NewAudioOutput(sampleRate, provider)
	case AUDIO_BACKEND_NULL:
		return &NullAudioOutput{}, nil
	}
	return nil, &EngineError{
		Operation: "audio backend creation",
		Details:   fmt.Sprintf("unknown backend type: %d", backend),
	}
}

// NullAudioOutput discards everything. Analysis still runs; only the
// audible path is absent.
type NullAudioOutput struct {
	mu      sync.Mutex
	started bool
}

func (n *NullAudioOutput) Start() error {
	n.mu.Lock()
	n.started = true
	n.mu.Unlock()
	return nil
}

func (n *NullAudioOutput) Stop() {
	n.mu.Lock()
	n.started = false
	n.mu.Unlock()
}

func (n *NullAudioOutput) Close() { n.Stop() }

func (n *NullAudioOutput) IsStarted() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started
}
