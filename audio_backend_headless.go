//go:build headless

// audio_backend_headless.go - No-op audio output for headless operation

package main

import "sync"

type HeadlessAudioOutput struct {
	mu      sync.Mutex
	started bool
}

func NewAudioOutput(sampleRate int, provider SampleProvider) (AudioOutput, error) {
	return &HeadlessAudioOutput{}, nil
}

func (h *HeadlessAudioOutput) Start() error {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	return nil
}

func (h *HeadlessAudioOutput) Stop() {
	h.mu.Lock()
	h.started = false
	h.mu.Unlock()
}

func (h *HeadlessAudioOutput) Close() {
	h.Stop()
}

func (h *HeadlessAudioOutput) IsStarted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}
