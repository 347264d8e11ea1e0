// input_source_audio.go - Microphone capture via portaudio

package main

import (
	"sync"

	pa "github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// micFramesPerBuffer is the capture block size; about 23 ms at 44.1 kHz.
const micFramesPerBuffer = 1024

var (
	paInitOnce sync.Once
	paInitErr  error
)

// initPortAudio initializes the host API once for the process. Terminate is
// deliberately never called: capture can restart at any time and the teardown
// cost is paid at process exit anyway.
func initPortAudio() error {
	paInitOnce.Do(func() {
		paInitErr = pa.Initialize()
	})
	return paInitErr
}

// AudioInputDevices lists the capture-capable device names.
func AudioInputDevices() []string {
	if err := initPortAudio(); err != nil {
		return nil
	}
	devices, err := pa.Devices()
	if err != nil {
		return nil
	}
	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names
}

// MicrophoneSource captures from a physical input device and pushes mono
// frames into the analysis graph under its source id. The graph drops the
// pushes whenever the microphone does not own the binding, so capture can
// keep running across routing transitions.
type MicrophoneSource struct {
	mu         sync.Mutex
	log        *logrus.Entry
	id         string
	bus        *InputManager
	engine     *AudioEngine
	sampleRate int
	deviceName string

	stream *pa.Stream
	stop   chan struct{}
	done   chan struct{}
}

func NewMicrophoneSource(engine *AudioEngine, sampleRate int) *MicrophoneSource {
	return &MicrophoneSource{
		log:        componentLog("audio").WithField("source", "microphone"),
		engine:     engine,
		sampleRate: sampleRate,
	}
}

func (s *MicrophoneSource) ID() string       { return s.id }
func (s *MicrophoneSource) Kind() SourceKind { return SourceKindAudio }

func (s *MicrophoneSource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// DeviceName reports the open capture device, empty when stopped.
func (s *MicrophoneSource) DeviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceName
}

func (s *MicrophoneSource) Attach(bus *InputManager, id string) {
	s.mu.Lock()
	s.bus = bus
	s.id = id
	s.mu.Unlock()
}

// Start opens the named capture device (empty selects the default) and
// begins pushing frames. A running capture is restarted on the new device.
func (s *MicrophoneSource) Start(deviceName string) error {
	if err := initPortAudio(); err != nil {
		return &EngineError{Operation: "microphone start", Details: ErrPermissionDenied, Err: err}
	}
	s.Stop()

	dev, err := s.findDevice(deviceName)
	if err != nil {
		return err
	}

	params := pa.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(s.sampleRate)
	params.FramesPerBuffer = micFramesPerBuffer

	buf := make([]float32, micFramesPerBuffer)
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return &EngineError{Operation: "microphone start", Details: ErrDeviceAcquisitionFailed, Err: err}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return &EngineError{Operation: "microphone start", Details: ErrDeviceAcquisitionFailed, Err: err}
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	s.mu.Lock()
	s.stream = stream
	s.stop = stopCh
	s.done = doneCh
	if dev != nil {
		s.deviceName = dev.Name
	}
	s.mu.Unlock()

	go s.captureLoop(stream, buf, stopCh, doneCh)
	s.log.WithField("device", s.deviceName).Info("microphone capture started")
	return nil
}

func (s *MicrophoneSource) findDevice(name string) (*pa.DeviceInfo, error) {
	if name == "" {
		dev, err := pa.DefaultInputDevice()
		if err != nil {
			return nil, &EngineError{Operation: "microphone start", Details: ErrDeviceAcquisitionFailed, Err: err}
		}
		return dev, nil
	}
	devices, err := pa.Devices()
	if err != nil {
		return nil, &EngineError{Operation: "microphone start", Details: ErrDeviceAcquisitionFailed, Err: err}
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, &EngineError{Operation: "microphone start", Details: "input device not found: " + name}
}

func (s *MicrophoneSource) captureLoop(stream *pa.Stream, buf []float32, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := stream.Read(); err != nil {
			// Overflows are routine under load; anything else ends capture.
			if err == pa.InputOverflowed {
				continue
			}
			s.log.Warnf("capture read: %v", err)
			return
		}
		s.mu.Lock()
		id := s.id
		engine := s.engine
		s.mu.Unlock()
		if engine != nil && id != "" {
			chunk := make([]float32, len(buf))
			copy(chunk, buf)
			engine.PushMono(id, chunk)
		}
	}
}

// Stop ends capture and closes the device.
func (s *MicrophoneSource) Stop() {
	s.mu.Lock()
	stream, stop, done := s.stream, s.stop, s.done
	s.stream, s.stop, s.done = nil, nil, nil
	s.deviceName = ""
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if stream != nil {
		stream.Abort()
		if done != nil {
			<-done
		}
		stream.Close()
	}
}

// Flush is a no-op: auto-frequency notes belong to the analysis graph, not
// the capture source, and are flushed by the routing matrix.
func (s *MicrophoneSource) Flush() {}

func (s *MicrophoneSource) Close() error {
	s.Stop()
	return nil
}
