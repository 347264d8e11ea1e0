// renderer_builtin.go - Built-in scene renderer and its display contract

package main

// builtinDisplay is the windowing half of the builtin renderer: the ebiten
// backend opens a real window, the headless backend draws nowhere. The
// renderer logic above it is identical either way.
type builtinDisplay interface {
	Open(width, height int) error
	Close() error
	IsOpen() bool
	SetOverlayText(text string)
	SetScene(index int)
	SetBands(read func() BandEnergies)
}

// headlessDisplay satisfies builtinDisplay without any window.
type headlessDisplay struct {
	open  bool
	scene int
}

func (h *headlessDisplay) Open(width, height int) error { h.open = true; return nil }
func (h *headlessDisplay) Close() error                 { h.open = false; return nil }
func (h *headlessDisplay) IsOpen() bool                 { return h.open }
func (h *headlessDisplay) SetOverlayText(string)        {}
func (h *headlessDisplay) SetScene(index int)           { h.scene = index }
func (h *headlessDisplay) SetBands(func() BandEnergies) {}

// builtinSceneCount bounds the scene selector (scenes 0-3).
const builtinSceneCount = 4

// builtinRenderer draws the built-in reactive scenes. Its canvas slot is
// shared with 2D overlay use; acquiring a 2D context on the slot poisons the
// GL context, so the mode machine checks ContextLost and calls ReplaceCanvas
// before restarting.
type builtinRenderer struct {
	baseRenderer
	display builtinDisplay

	scene       int
	canvasGen   int
	contextLost bool
	bands       func() BandEnergies
}

func newBuiltinRenderer(display builtinDisplay) *builtinRenderer {
	r := &builtinRenderer{display: display}
	r.init(ModeBuiltin)
	return r
}

func (r *builtinRenderer) Start() error {
	r.mu.Lock()
	w, h := r.res.Width, r.res.Height
	if w == 0 || h == 0 {
		w, h = 1280, 720
	}
	scene := r.scene
	bands := r.bands
	r.mu.Unlock()

	if err := r.display.Open(w, h); err != nil {
		return &EngineError{Operation: "builtin start", Details: "display open", Err: err}
	}
	r.display.SetScene(scene)
	if bands != nil {
		r.display.SetBands(bands)
	}
	return r.baseRenderer.Start()
}

func (r *builtinRenderer) Stop() error {
	if err := r.display.Close(); err != nil {
		r.log.Warnf("display close: %v", err)
	}
	return r.baseRenderer.Stop()
}

func (r *builtinRenderer) SelectScene(index int) error {
	if index < 0 || index >= builtinSceneCount {
		return &EngineError{Operation: "scene select", Details: "index out of range"}
	}
	r.mu.Lock()
	r.scene = index
	r.mu.Unlock()
	r.display.SetScene(index)
	return nil
}

func (r *builtinRenderer) Scene() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scene
}

func (r *builtinRenderer) ConnectSpectrum(read func() BandEnergies) {
	r.mu.Lock()
	r.bands = read
	r.mu.Unlock()
	r.display.SetBands(read)
}

// MarkContextLost records that the canvas slot was used for 2D drawing.
func (r *builtinRenderer) MarkContextLost() {
	r.mu.Lock()
	r.contextLost = true
	r.mu.Unlock()
}

func (r *builtinRenderer) ContextLost() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contextLost
}

// ReplaceCanvas swaps in a fresh surface, clearing the lost context.
func (r *builtinRenderer) ReplaceCanvas() {
	r.mu.Lock()
	r.canvasGen++
	r.contextLost = false
	r.mu.Unlock()
	r.log.Info("builtin canvas replaced")
}

func (r *builtinRenderer) CanvasGeneration() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canvasGen
}
