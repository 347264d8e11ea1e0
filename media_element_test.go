package main

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestBindingIDPermanent verifies an element keeps one binding id for life
// and distinct elements never share one.
func TestBindingIDPermanent(t *testing.T) {
	a := NewMediaElement("a")
	b := NewMediaElement("b")

	first := a.BindingID()
	if first == "" {
		t.Fatal("empty binding id")
	}
	if again := a.BindingID(); again != first {
		t.Fatalf("binding id changed: %q then %q", first, again)
	}
	if b.BindingID() == first {
		t.Fatal("two elements share a binding id")
	}
}

// TestUnsupportedMediaReportsError verifies a bad URL surfaces through the
// status callback and leaves the element in the error state.
func TestUnsupportedMediaReportsError(t *testing.T) {
	m := NewMediaElement("t")
	done := make(chan bool, 1)
	m.OnStatus(func(ok bool, detail string) { done <- ok })

	m.Load("clip.xyz")
	select {
	case ok := <-done:
		if ok {
			t.Fatal("unsupported media reported success")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status callback")
	}
	if m.State() != MediaError {
		t.Fatalf("state = %q, expected %q", m.State(), MediaError)
	}
}

// TestSupersededLoadDiscarded verifies a stale completion cannot clobber a
// newer load's state.
func TestSupersededLoadDiscarded(t *testing.T) {
	m := NewMediaElement("t")
	m.InjectPCM(44100, make([]float32, 128)) // gen 1, ready

	m.mu.Lock()
	stale := m.gen - 1
	m.mu.Unlock()

	m.completeLoad(stale, &EngineError{Operation: "media load", Details: "late failure"})
	if m.State() != MediaReady {
		t.Fatalf("stale completion changed state to %q", m.State())
	}
}

// TestPumpFeedsBoundGraph verifies a connected element's samples reach the
// analysis graph, and a muted element delivers only silence.
func TestPumpFeedsBoundGraph(t *testing.T) {
	engine, err := NewAudioEngine(44100, nil, AUDIO_BACKEND_NULL)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer engine.Close()

	m := NewMediaElement("t")
	tone := make([]float32, 44100)
	for i := range tone {
		tone[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/44100))
	}
	m.InjectPCM(44100, tone)

	engine.Bind(m.BindingID(), SourceMedia)
	m.Connect(engine)
	time.Sleep(150 * time.Millisecond)
	m.Disconnect()

	engine.mono.Analyze()
	if engine.mono.RMS() == 0 {
		t.Fatal("pumped tone produced no analyzable signal")
	}

	// Mute and rebind: the pump keeps running but must push only zeros.
	m.SetMuted(true)
	engine.Bind(m.BindingID(), SourceMedia)
	m.Connect(engine)
	time.Sleep(150 * time.Millisecond)
	m.Disconnect()

	engine.mono.Analyze()
	if rms := engine.mono.RMS(); rms != 0 {
		t.Fatalf("muted element leaked signal, rms = %v", rms)
	}
}

// TestDroppedWhenNotBound verifies pushes from an element that lost the
// graph are discarded.
func TestDroppedWhenNotBound(t *testing.T) {
	engine, err := NewAudioEngine(44100, nil, AUDIO_BACKEND_NULL)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer engine.Close()

	m := NewMediaElement("t")
	m.InjectPCM(44100, []float32{0.9, 0.9, 0.9, 0.9})

	engine.Bind("someone-else", SourceAudio)
	m.Connect(engine)
	time.Sleep(100 * time.Millisecond)
	m.Disconnect()

	engine.mono.Analyze()
	if rms := engine.mono.RMS(); rms != 0 {
		t.Fatalf("unbound element reached the graph, rms = %v", rms)
	}
}

// TestHLSManifestStats verifies the playlist fetch fills the stream stats.
func TestHLSManifestStats(t *testing.T) {
	manifest := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:6\n" +
		"#EXT-X-MEDIA-SEQUENCE:0\n" +
		"#EXTINF:6.0,\nseg0.ts\n" +
		"#EXTINF:6.0,\nseg1.ts\n" +
		"#EXTINF:6.0,\nseg2.ts\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(manifest))
	}))
	defer srv.Close()

	m := NewMediaElement("t")
	done := make(chan bool, 1)
	m.OnStatus(func(ok bool, detail string) { done <- ok })

	m.Load(srv.URL + "/live.m3u8")
	select {
	case ok := <-done:
		if !ok {
			t.Fatal("manifest load failed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no status callback")
	}

	stats := m.Stats()
	if stats.TargetDuration != 6 {
		t.Fatalf("target duration = %v, expected 6", stats.TargetDuration)
	}
	if stats.Segments != 3 {
		t.Fatalf("segments = %d, expected 3", stats.Segments)
	}
}
