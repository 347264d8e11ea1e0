package main

import (
	"io"
	"sync"
	"testing"
	"time"
)

type failingRenderer struct {
	baseRenderer
}

func (r *failingRenderer) Start() error {
	return &EngineError{Operation: "start", Details: "no backend"}
}

func newTestModeMachine(t *testing.T) (*ModeMachine, map[ProgramMode]Renderer, *CameraManager) {
	t.Helper()

	cam := NewCameraManager()
	cam.open = func(string) (io.Closer, error) { return io.NopCloser(nil), nil }

	deps := RendererDeps{Camera: cam, Extensions: NewExtensionLoader()}
	set, err := NewRendererSet(RENDERER_BACKEND_HEADLESS, deps)
	if err != nil {
		t.Fatalf("renderer set: %v", err)
	}

	m, _, _ := newTestRouting(t)
	fsm := NewModeMachine(set, m)
	fsm.SetFadeDuration(0)
	return fsm, set, cam
}

// TestTransitionOrdering verifies the observable milestone order of a mode
// switch and that the settled mode only flips after fade-in.
func TestTransitionOrdering(t *testing.T) {
	fsm, _, _ := newTestModeMachine(t)

	var events []string
	fsm.SetTrace(func(ev string) {
		events = append(events, ev)
		if ev != "fade-in-completed" && fsm.Mode() != ModeNone {
			t.Fatalf("mode flipped before fade-in (at %s)", ev)
		}
	})

	var broadcastMode ProgramMode
	var presets []string
	fsm.OnBroadcast(func(mode ProgramMode, list []string) {
		broadcastMode = mode
		presets = list
	})

	if err := fsm.Switch(ModeMilkdrop); err != nil {
		t.Fatalf("switch: %v", err)
	}

	want := []string{"fade-out-started", "renderers-stopped", "resolution-applied", "started", "fade-in-completed"}
	if len(events) != len(want) {
		t.Fatalf("trace = %v, expected %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("trace[%d] = %s, expected %s", i, events[i], want[i])
		}
	}
	if broadcastMode != ModeMilkdrop {
		t.Fatalf("broadcast mode = %s, expected milkdrop", broadcastMode)
	}
	if len(presets) == 0 {
		t.Fatal("milkdrop broadcast carried no preset list")
	}
	if fsm.BlackOverlayActive() {
		t.Fatal("black overlay still up after transition")
	}
}

// TestSameModeNoOp verifies re-selecting the current mode does nothing,
// except for media which always reloads.
func TestSameModeNoOp(t *testing.T) {
	fsm, _, _ := newTestModeMachine(t)

	if err := fsm.Switch(ModeBuiltin); err != nil {
		t.Fatalf("switch: %v", err)
	}
	var events int
	fsm.SetTrace(func(string) { events++ })

	if err := fsm.Switch(ModeBuiltin); err != nil {
		t.Fatalf("repeat switch: %v", err)
	}
	if events != 0 {
		t.Fatalf("same-mode builtin switch emitted %d trace events", events)
	}

	if err := fsm.Switch(ModeMedia); err != nil {
		t.Fatalf("media switch: %v", err)
	}
	events = 0
	if err := fsm.Switch(ModeMedia); err != nil {
		t.Fatalf("media reload: %v", err)
	}
	if events == 0 {
		t.Fatal("media re-selection did not reload")
	}
}

// TestExtensionFailureStaysPut verifies a library load failure keeps the
// current mode running with an error surfaced to the console.
func TestExtensionFailureStaysPut(t *testing.T) {
	fsm, set, _ := newTestModeMachine(t)
	deps := set[ModeMilkdrop].(*milkdropRenderer)
	deps.ext.SetUnavailable(ExtensionSpectralWarp, true)

	if err := fsm.Switch(ModeBuiltin); err != nil {
		t.Fatalf("switch: %v", err)
	}

	var reported string
	fsm.OnError(func(msg string) { reported = msg })

	if err := fsm.Switch(ModeMilkdrop); err == nil {
		t.Fatal("expected extension load failure")
	}
	if fsm.Mode() != ModeBuiltin {
		t.Fatalf("mode = %s after failed switch, expected builtin", fsm.Mode())
	}
	if !set[ModeBuiltin].IsStarted() {
		t.Fatal("previous mode stopped despite failed switch")
	}
	if reported == "" {
		t.Fatal("no error surfaced to the operator")
	}
}

// TestStartFailureFallsBackToBuiltin verifies a backend start failure lands
// on the builtin renderer instead of a dark output.
func TestStartFailureFallsBackToBuiltin(t *testing.T) {
	fsm, set, _ := newTestModeMachine(t)
	failing := &failingRenderer{}
	failing.init(ModeThreeD)
	set[ModeThreeD] = failing

	if err := fsm.Switch(ModeThreeD); err != nil {
		t.Fatalf("switch returned %v, expected fallback", err)
	}
	if fsm.Mode() != ModeBuiltin {
		t.Fatalf("mode = %s, expected builtin fallback", fsm.Mode())
	}
	if !set[ModeBuiltin].IsStarted() {
		t.Fatal("builtin fallback not started")
	}
}

// TestVideoReleasesCamera verifies the camera handle is released, not just
// stopped, when leaving video mode.
func TestVideoReleasesCamera(t *testing.T) {
	fsm, _, cam := newTestModeMachine(t)

	if err := fsm.Switch(ModeVideo); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if cam.Held() != string(ModeVideo) {
		t.Fatalf("camera owner = %q, expected video", cam.Held())
	}

	if err := fsm.Switch(ModeBlack); err != nil {
		t.Fatalf("switch away: %v", err)
	}
	if cam.Held() != "" {
		t.Fatalf("camera still held by %q after leaving video", cam.Held())
	}
}

// TestCC1ScrubOnlyInMilkdrop verifies preset scrubbing ignores CC1 outside
// the spectral mode.
func TestCC1ScrubOnlyInMilkdrop(t *testing.T) {
	fsm, set, _ := newTestModeMachine(t)
	md := set[ModeMilkdrop].(*milkdropRenderer)

	if err := fsm.Switch(ModeBuiltin); err != nil {
		t.Fatalf("switch: %v", err)
	}
	fsm.HandleControl(ControlEvent{ID: 1, Value: 0.9})
	if md.CurrentPreset() != 0 {
		t.Fatal("CC1 scrubbed presets outside milkdrop mode")
	}

	if err := fsm.Switch(ModeMilkdrop); err != nil {
		t.Fatalf("switch: %v", err)
	}
	fsm.HandleControl(ControlEvent{ID: 1, Value: 0.35})
	want := int(0.35 * float64(len(md.Presets())))
	if md.CurrentPreset() != want {
		t.Fatalf("preset = %d, expected %d", md.CurrentPreset(), want)
	}
}

// TestConcurrentSwitchSerialized races two transitions and verifies they do
// not interleave: exactly one renderer ends up started and it matches the
// settled mode.
func TestConcurrentSwitchSerialized(t *testing.T) {
	fsm, set, _ := newTestModeMachine(t)
	fsm.SetFadeDuration(2 * time.Millisecond)

	var wg sync.WaitGroup
	for _, mode := range []ProgramMode{ModeBuiltin, ModeMilkdrop} {
		wg.Add(1)
		go func(m ProgramMode) {
			defer wg.Done()
			if err := fsm.Switch(m); err != nil {
				t.Errorf("switch %s: %v", m, err)
			}
		}(mode)
	}
	wg.Wait()

	started := 0
	for mode, r := range set {
		if r.IsStarted() {
			started++
			if mode != fsm.Mode() {
				t.Fatalf("started renderer %s does not match settled mode %s", mode, fsm.Mode())
			}
		}
	}
	if started != 1 {
		t.Fatalf("%d renderers started after concurrent switches, expected 1", started)
	}
}
