// media_element.go - Media feed abstraction with generation-counted loads

package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/grafov/m3u8"
	"github.com/sirupsen/logrus"
	wav "github.com/youpy/go-wav"
)

// Media element states.
const (
	MediaIdle    = "idle"
	MediaLoading = "loading"
	MediaReady   = "ready"
	MediaPlaying = "playing"
	MediaError   = "error"
)

// hlsManifestTimeout bounds the playlist fetch.
const hlsManifestTimeout = 10 * time.Second

// mediaPumpInterval paces PCM delivery into the analysis graph.
const mediaPumpInterval = 20 * time.Millisecond

// StreamStats is reported on requestStreamStats.
type StreamStats struct {
	URL            string  `json:"url"`
	Variants       int     `json:"variants"`
	TargetDuration float64 `json:"targetDuration"`
	Segments       int     `json:"segments"`
	BytesRead      int64   `json:"bytesRead"`
	State          string  `json:"state"`
}

var mediaBindSeq uint64

// MediaElement models a playable media feed: a local WAV file, an HLS
// stream, or injected PCM (media-feed). Loads are generation-counted so a
// superseded load's completion no-ops instead of clobbering the newer one.
//
// Once an element has been given a graph binding id it keeps it forever:
// disconnecting is allowed, rebinding the same element is allowed, but a
// second binding for the same element is never created.
type MediaElement struct {
	mu    sync.Mutex
	log   *logrus.Entry
	state string
	url   string
	muted bool
	gen   uint64

	pcm        []float32
	pcmRate    int
	pcmPos     int
	loop       bool
	stats      StreamStats
	bindID     string
	engine     *AudioEngine
	pumpStop   chan struct{}
	httpClient *http.Client

	// onStatus reports mediaFeedSuccess / mediaFeedError upstream.
	onStatus func(ok bool, detail string)
}

func NewMediaElement(name string) *MediaElement {
	return &MediaElement{
		log:        componentLog("media").WithField("element", name),
		state:      MediaIdle,
		loop:       true,
		httpClient: &http.Client{Timeout: hlsManifestTimeout},
	}
}

// OnStatus registers the load outcome callback.
func (m *MediaElement) OnStatus(fn func(ok bool, detail string)) {
	m.mu.Lock()
	m.onStatus = fn
	m.mu.Unlock()
}

// State returns the element state string.
func (m *MediaElement) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// URL returns the last loaded URL.
func (m *MediaElement) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// Stats returns a snapshot of the stream statistics.
func (m *MediaElement) Stats() StreamStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.State = m.state
	return s
}

// BindingID returns the element's permanent graph binding id, creating it
// on first use.
func (m *MediaElement) BindingID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bindID == "" {
		m.bindID = fmt.Sprintf("media-%d", atomic.AddUint64(&mediaBindSeq, 1))
	}
	return m.bindID
}

// Load starts an asynchronous load of url. A later Load supersedes an
// earlier one; the earlier completion is discarded by generation check.
func (m *MediaElement) Load(url string) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.url = url
	m.state = MediaLoading
	m.stats = StreamStats{URL: url}
	m.mu.Unlock()

	go m.load(gen, url)
}

func (m *MediaElement) load(gen uint64, url string) {
	var err error
	switch {
	case strings.Contains(url, ".m3u8"):
		err = m.loadHLS(gen, url)
	case strings.HasSuffix(strings.ToLower(url), ".wav"):
		err = m.loadWAV(gen, url)
	default:
		err = &EngineError{Operation: "media load", Details: "unsupported media type: " + url}
	}
	if err != nil {
		m.completeLoad(gen, err)
	}
}

// completeLoad applies the load outcome if the generation still matches.
func (m *MediaElement) completeLoad(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return // superseded
	}
	if err != nil {
		m.state = MediaError
	} else {
		m.state = MediaReady
	}
	cb := m.onStatus
	url := m.url
	m.mu.Unlock()

	if err != nil {
		m.log.Warnf("load %s: %v", url, err)
		if cb != nil {
			cb(false, err.Error())
		}
		return
	}
	if cb != nil {
		cb(true, url)
	}
}

func (m *MediaElement) loadWAV(gen uint64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &EngineError{Operation: "media load", Details: ErrDeviceAcquisitionFailed, Err: err}
	}
	defer f.Close()

	r := wav.NewReader(f)
	format, err := r.Format()
	if err != nil {
		return &EngineError{Operation: "media load", Details: "wav header", Err: err}
	}

	var pcm []float32
	for {
		samples, err := r.ReadSamples(4096)
		if len(samples) == 0 || err != nil {
			break
		}
		for _, s := range samples {
			// Fold to mono.
			v := r.FloatValue(s, 0)
			if format.NumChannels > 1 {
				v = (v + r.FloatValue(s, 1)) / 2
			}
			pcm = append(pcm, float32(v))
		}
	}

	m.mu.Lock()
	if gen == m.gen {
		m.pcm = pcm
		m.pcmRate = int(format.SampleRate)
		m.pcmPos = 0
		m.stats.BytesRead = int64(len(pcm) * 4)
	}
	m.mu.Unlock()
	m.completeLoad(gen, nil)
	return nil
}

func (m *MediaElement) loadHLS(gen uint64, url string) error {
	resp, err := m.httpClient.Get(url)
	if err != nil {
		return &EngineError{Operation: "stream load", Details: "manifest fetch", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &EngineError{Operation: "stream load", Details: fmt.Sprintf("manifest HTTP %d", resp.StatusCode)}
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return &EngineError{Operation: "stream load", Details: "manifest parse", Err: err}
	}

	stats := StreamStats{URL: url}
	switch listType {
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		stats.Variants = len(master.Variants)
	case m3u8.MEDIA:
		media := playlist.(*m3u8.MediaPlaylist)
		stats.TargetDuration = media.TargetDuration
		for _, seg := range media.Segments {
			if seg != nil {
				stats.Segments++
			}
		}
	}

	m.mu.Lock()
	if gen == m.gen {
		m.stats = stats
		// Stream audio decode happens downstream of the manifest; the
		// element analyzes injected PCM or silence until segments flow.
		m.pcm = nil
		m.pcmRate = 0
	}
	m.mu.Unlock()
	m.completeLoad(gen, nil)
	return nil
}

// InjectPCM supplies decoded samples directly (media-feed path and tests).
func (m *MediaElement) InjectPCM(rate int, samples []float32) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.pcm = append([]float32(nil), samples...)
	m.pcmRate = rate
	m.pcmPos = 0
	m.url = "pcm:"
	m.stats = StreamStats{URL: m.url, BytesRead: int64(len(samples) * 4)}
	m.mu.Unlock()
	m.completeLoad(gen, nil)
}

// SetMuted toggles native muting. A muted element keeps pumping zeros so
// the analysis tap sees silence, exactly like a muted native element.
func (m *MediaElement) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

// Muted reports the native mute state.
func (m *MediaElement) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// Connect attaches the element's pump to the engine under its permanent
// binding id. The caller (routing matrix) must have bound the graph first.
func (m *MediaElement) Connect(engine *AudioEngine) {
	m.Disconnect()
	m.mu.Lock()
	m.engine = engine
	m.pumpStop = make(chan struct{})
	stop := m.pumpStop
	m.state = MediaPlaying
	m.mu.Unlock()

	go m.pump(stop)
}

// Disconnect detaches from the graph. The binding id is retained so the
// same element can be rebound later.
func (m *MediaElement) Disconnect() {
	m.mu.Lock()
	stop := m.pumpStop
	m.pumpStop = nil
	m.engine = nil
	if m.state == MediaPlaying {
		m.state = MediaReady
	}
	m.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// pump pushes PCM (or silence when muted/undecoded) in real time.
func (m *MediaElement) pump(stop chan struct{}) {
	ticker := time.NewTicker(mediaPumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		engine := m.engine
		bindID := m.bindID
		rate := m.pcmRate
		if rate == 0 {
			rate = 44100
		}
		n := rate * int(mediaPumpInterval.Milliseconds()) / 1000
		chunk := make([]float32, n)
		if !m.muted && len(m.pcm) > 0 {
			for i := range chunk {
				chunk[i] = m.pcm[m.pcmPos]
				m.pcmPos++
				if m.pcmPos >= len(m.pcm) {
					if !m.loop {
						m.pcmPos = len(m.pcm) - 1
						break
					}
					m.pcmPos = 0
				}
			}
		}
		m.stats.BytesRead += int64(n * 4)
		m.mu.Unlock()

		if engine != nil && bindID != "" {
			engine.PushMono(bindID, chunk)
		}
	}
}
