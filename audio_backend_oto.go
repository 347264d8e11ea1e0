//go:build !headless

// audio_backend_oto.go - OTO v3 audio output implementation

package main

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/oto/v3"
)

type OtoOutput struct {
	ctx       *oto.Context
	player    *oto.Player
	provider  atomic.Pointer[sampleProviderBox] // atomic for lock-free Read()
	sampleBuf []float32
	started   bool
	mutex     sync.Mutex // setup/control operations only
}

type sampleProviderBox struct{ p SampleProvider }

func NewAudioOutput(sampleRate int, provider SampleProvider) (AudioOutput, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	out := &OtoOutput{
		ctx:       ctx,
		sampleBuf: make([]float32, 4096),
	}
	out.provider.Store(&sampleProviderBox{p: provider})
	out.player = ctx.NewPlayer(out)
	return out, nil
}

func (o *OtoOutput) Read(p []byte) (n int, err error) {
	box := o.provider.Load()
	if box == nil || box.p == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	numSamples := len(p) / 4
	if len(o.sampleBuf) < numSamples {
		o.sampleBuf = make([]float32, numSamples)
	}
	samples := o.sampleBuf[:numSamples]
	box.p.ProvideSamples(samples)

	copy(p, (*[1 << 30]byte)(unsafe.Pointer(&samples[0]))[:len(p)])
	return len(p), nil
}

func (o *OtoOutput) Start() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if !o.started && o.player != nil {
		o.player.Play()
		o.started = true
	}
	return nil
}

func (o *OtoOutput) Stop() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.started && o.player != nil {
		o.player.Pause()
		o.started = false
	}
}

func (o *OtoOutput) Close() {
	o.Stop()
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
}

func (o *OtoOutput) IsStarted() bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.started
}
