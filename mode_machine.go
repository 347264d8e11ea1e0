// mode_machine.go - Program mode state machine

package main

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// defaultFadeDuration is the surface crossfade on mode switches.
const defaultFadeDuration = 500 * time.Millisecond

// ModeMachine switches between visual programs. A transition follows a
// fixed order: fade the old surface out, stop every other renderer, cover
// the handover with a black overlay, apply resolution, start the new
// renderer, fade it in, then broadcast the new mode. State broadcasts never
// carry an intermediate mode; the mode field flips only after fade-in.
type ModeMachine struct {
	mu        sync.Mutex
	log       *logrus.Entry
	renderers map[ProgramMode]Renderer
	routing   *RoutingMatrix

	// switchMu serializes whole transitions. f.mu only guards field access
	// so readers are not blocked across the fade waits.
	switchMu sync.Mutex

	mode         ProgramMode
	resolution   Resolution
	blackOverlay bool
	fadeDuration time.Duration

	// onBroadcast fires after a completed transition with the settled mode
	// and, for preset-capable modes, a preset list snapshot.
	onBroadcast func(mode ProgramMode, presets []string)

	// onError surfaces operator-visible failures (library load, fallback).
	onError func(message string)

	// trace observes transition milestones in order; tests hook it.
	trace func(event string)
}

func NewModeMachine(renderers map[ProgramMode]Renderer, routing *RoutingMatrix) *ModeMachine {
	return &ModeMachine{
		log:          componentLog("mode"),
		renderers:    renderers,
		routing:      routing,
		mode:         ModeNone,
		fadeDuration: defaultFadeDuration,
	}
}

// OnBroadcast registers the post-transition state hook.
func (f *ModeMachine) OnBroadcast(fn func(mode ProgramMode, presets []string)) {
	f.mu.Lock()
	f.onBroadcast = fn
	f.mu.Unlock()
}

// OnError registers the operator error hook.
func (f *ModeMachine) OnError(fn func(message string)) {
	f.mu.Lock()
	f.onError = fn
	f.mu.Unlock()
}

// SetTrace installs the transition observer.
func (f *ModeMachine) SetTrace(fn func(event string)) {
	f.mu.Lock()
	f.trace = fn
	f.mu.Unlock()
}

// SetFadeDuration overrides the crossfade length (0 skips the waits).
func (f *ModeMachine) SetFadeDuration(d time.Duration) {
	f.mu.Lock()
	f.fadeDuration = d
	f.mu.Unlock()
}

func (f *ModeMachine) emitTrace(event string) {
	f.mu.Lock()
	fn := f.trace
	f.mu.Unlock()
	if fn != nil {
		fn(event)
	}
}

func (f *ModeMachine) reportError(msg string) {
	f.log.Warn(msg)
	f.mu.Lock()
	fn := f.onError
	f.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// Mode returns the settled mode. During a transition this is still the
// previous mode; it flips after fade-in completes.
func (f *ModeMachine) Mode() ProgramMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// BlackOverlayActive reports whether the handover cover is up.
func (f *ModeMachine) BlackOverlayActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blackOverlay
}

// Renderer returns the backend for a mode.
func (f *ModeMachine) Renderer(mode ProgramMode) Renderer {
	return f.renderers[mode]
}

// SetResolution stores the output resolution; it is applied to each
// destination surface before that renderer starts.
func (f *ModeMachine) SetResolution(res Resolution) {
	f.mu.Lock()
	f.resolution = res
	f.mu.Unlock()
}

// Switch transitions to the named mode. Re-selecting the current mode is a
// no-op except for media and video, which always reload.
func (f *ModeMachine) Switch(to ProgramMode) error {
	if !knownModes[to] {
		return &EngineError{Operation: "mode switch", Details: "unknown mode: " + string(to)}
	}

	// One transition at a time; Switch is reachable from the console
	// dispatch, the MIDI decoder and the OSC server concurrently.
	f.switchMu.Lock()
	defer f.switchMu.Unlock()

	f.mu.Lock()
	from := f.mode
	res := f.resolution
	fade := f.fadeDuration
	f.mu.Unlock()

	if from == to && to != ModeMedia && to != ModeVideo {
		return nil
	}

	target := f.renderers[to]

	// Lazy extension load. A load failure keeps the current mode running.
	if err := target.Init(); err != nil {
		f.reportError("mode " + string(to) + " unavailable: " + err.Error())
		return err
	}

	// Fade the visible surface out while the others shut down.
	f.emitTrace("fade-out-started")
	if from != ModeNone {
		if cur, ok := f.renderers[from]; ok {
			cur.SetOpacity(0)
		}
	}

	for mode, r := range f.renderers {
		if mode == to {
			continue
		}
		if r.IsStarted() {
			if err := r.Stop(); err != nil {
				f.log.Warnf("stop %s: %v", mode, err)
			}
		}
	}
	f.emitTrace("renderers-stopped")

	time.Sleep(fade)
	for _, r := range f.renderers {
		r.SetVisible(false)
	}

	// Black overlay covers the handover so no raw context flashes.
	f.mu.Lock()
	f.blackOverlay = true
	f.mu.Unlock()

	// A 2D-contaminated builtin canvas cannot host GL again; replace it.
	if to == ModeBuiltin {
		if cc, ok := target.(CanvasCapable); ok && cc.ContextLost() {
			cc.ReplaceCanvas()
		}
	}

	// Resolution goes on before Start; applying after causes flicker.
	if err := target.SetResolution(res); err != nil {
		f.log.Warnf("resolution: %v", err)
	}
	f.emitTrace("resolution-applied")

	started := target
	startedMode := to
	if err := target.Start(); err != nil {
		f.reportError("mode " + string(to) + " failed to start: " + err.Error())
		if to == ModeBuiltin {
			f.mu.Lock()
			f.blackOverlay = false
			f.mu.Unlock()
			return err
		}
		// Fall back to builtin so output never goes dark.
		fallback := f.renderers[ModeBuiltin]
		fallback.SetResolution(res)
		if ferr := fallback.Start(); ferr != nil {
			f.mu.Lock()
			f.blackOverlay = false
			f.mu.Unlock()
			return ferr
		}
		started = fallback
		startedMode = ModeBuiltin
	}
	f.emitTrace("started")

	started.SetVisible(true)
	started.SetOpacity(1)
	time.Sleep(fade)
	f.mu.Lock()
	f.blackOverlay = false
	f.mode = startedMode
	f.mu.Unlock()
	f.emitTrace("fade-in-completed")

	// Spectral backends read the band stream straight from the routing
	// matrix's choice of analyzer.
	if sc, ok := started.(SpectralCapable); ok {
		sc.ConnectSpectrum(f.routing.BandsReader())
	}

	// Program-media routing follows the new mode's media element (nil for
	// modes without one).
	if mc, ok := started.(MediaCapable); ok {
		f.routing.SetProgramMedia(mc.Media())
	} else {
		f.routing.SetProgramMedia(nil)
	}

	f.broadcast(startedMode, started)
	f.log.WithFields(logrus.Fields{"from": from, "to": startedMode}).Info("mode switched")
	return nil
}

func (f *ModeMachine) broadcast(mode ProgramMode, r Renderer) {
	f.mu.Lock()
	fn := f.onBroadcast
	f.mu.Unlock()
	if fn == nil {
		return
	}
	var presets []string
	if pc, ok := r.(PresetCapable); ok {
		presets = pc.Presets()
	}
	fn(mode, presets)
}

// SelectScene picks a builtin scene; valid in any mode, applied when the
// builtin renderer is (next) active.
func (f *ModeMachine) SelectScene(index int) error {
	if sc, ok := f.renderers[ModeBuiltin].(SceneCapable); ok {
		return sc.SelectScene(index)
	}
	return nil
}

// SelectPreset picks a spectral preset by index.
func (f *ModeMachine) SelectPreset(index int) error {
	if pc, ok := f.renderers[ModeMilkdrop].(PresetCapable); ok {
		return pc.SelectPreset(index)
	}
	return nil
}

// NextPreset advances the spectral preset.
func (f *ModeMachine) NextPreset() {
	if pc, ok := f.renderers[ModeMilkdrop].(PresetCapable); ok {
		pc.NextPreset()
	}
}

// PrevPreset steps the spectral preset back.
func (f *ModeMachine) PrevPreset() {
	if pc, ok := f.renderers[ModeMilkdrop].(PresetCapable); ok {
		pc.PrevPreset()
	}
}

// CurrentPresetName returns the active spectral preset name, empty when the
// list is empty.
func (f *ModeMachine) CurrentPresetName() string {
	pc, ok := f.renderers[ModeMilkdrop].(PresetCapable)
	if !ok {
		return ""
	}
	list := pc.Presets()
	if len(list) == 0 {
		return ""
	}
	return list[pc.CurrentPreset()]
}

// HandleControl applies CC events with mode-level meaning. CC1 scrubs the
// preset list, and only while the spectral mode is active.
func (f *ModeMachine) HandleControl(ev ControlEvent) {
	if ev.ID != 1 || f.Mode() != ModeMilkdrop {
		return
	}
	pc, ok := f.renderers[ModeMilkdrop].(PresetCapable)
	if !ok {
		return
	}
	n := len(pc.Presets())
	if n == 0 {
		return
	}
	idx := int(ev.Value * float64(n))
	if idx >= n {
		idx = n - 1
	}
	pc.SelectPreset(idx)
}

// SwitchMode satisfies OSCCommands with a string mode name.
func (f *ModeMachine) SwitchMode(mode string) {
	if err := f.Switch(ProgramMode(mode)); err != nil {
		f.log.Warnf("osc mode switch: %v", err)
	}
}

// StopAll shuts every renderer down; used at unload and by blackScreen
// teardown paths.
func (f *ModeMachine) StopAll() {
	f.switchMu.Lock()
	defer f.switchMu.Unlock()
	for mode, r := range f.renderers {
		if r.IsStarted() {
			if err := r.Stop(); err != nil {
				f.log.Warnf("stop %s: %v", mode, err)
			}
		}
		r.SetVisible(false)
	}
	f.mu.Lock()
	f.mode = ModeNone
	f.mu.Unlock()
}
