// renderer_interface.go - Visual renderer interface and backend selection

package main

import "fmt"

// ProgramMode names the visual programs the mode machine switches between.
type ProgramMode string

const (
	ModeNone     ProgramMode = "none"
	ModeBlack    ProgramMode = "black"
	ModeBuiltin  ProgramMode = "builtin"
	ModeThreeD   ProgramMode = "three-d"
	ModeMilkdrop ProgramMode = "milkdrop"
	ModeVideo    ProgramMode = "video"
	ModeMedia    ProgramMode = "media"
	ModeStream   ProgramMode = "stream"
	ModeWebpage  ProgramMode = "webpage"
)

// knownModes is the set the state machine accepts from remote commands.
var knownModes = map[ProgramMode]bool{
	ModeBlack: true, ModeBuiltin: true, ModeThreeD: true, ModeMilkdrop: true,
	ModeVideo: true, ModeMedia: true, ModeStream: true, ModeWebpage: true,
}

// Renderer is the minimal contract a visual backend must satisfy. The mode
// machine owns the lifecycle ordering; renderers own their surfaces.
type Renderer interface {
	Mode() ProgramMode

	// Init performs lazy backend initialization (extension load, window
	// creation). Called at most once before the first Start.
	Init() error
	Start() error
	Stop() error
	Close() error
	IsStarted() bool

	// SetResolution must be applied before Start to avoid flicker.
	SetResolution(res Resolution) error

	// Surface fade state, driven by the mode machine.
	SetOpacity(v float64)
	Opacity() float64
	SetVisible(on bool)
	Visible() bool
}

// Optional renderer capabilities, discovered by type assertion.

// PresetCapable backends expose an enumerable preset list.
type PresetCapable interface {
	Presets() []string
	SelectPreset(index int) error
	NextPreset()
	PrevPreset()
	CurrentPreset() int
}

// SceneCapable backends expose numbered built-in scenes.
type SceneCapable interface {
	SelectScene(index int) error
	Scene() int
}

// SpectralCapable backends consume the analysis band stream directly.
type SpectralCapable interface {
	ConnectSpectrum(read func() BandEnergies)
}

// MediaCapable backends own a media element the routing matrix may bind.
type MediaCapable interface {
	Media() *MediaElement
	LoadMedia(url string)
}

// URLCapable backends display an external page.
type URLCapable interface {
	LoadURL(url string) error
}

// CanvasCapable backends can replace their drawing surface; used when a
// previous 2D acquisition contaminated the shared builtin slot.
type CanvasCapable interface {
	CanvasGeneration() int
	ReplaceCanvas()
	ContextLost() bool
}

// Predefined renderer backend types.
const (
	RENDERER_BACKEND_EBITEN   = iota // builtin mode opens an ebiten window
	RENDERER_BACKEND_HEADLESS        // all surfaces are offscreen; used by tests and -headless
)

// NewRendererSet builds one renderer per mode for the selected backend.
// Every mode always has a renderer; only builtin differs between backends.
func NewRendererSet(backend int, deps RendererDeps) (map[ProgramMode]Renderer, error) {
	var display builtinDisplay
	switch backend {
	case RENDERER_BACKEND_EBITEN:
		display = newPlatformDisplay()
	case RENDERER_BACKEND_HEADLESS:
		display = &headlessDisplay{}
	default:
		return nil, &EngineError{
			Operation: "renderer backend creation",
			Details:   fmt.Sprintf("unknown backend type: %d", backend),
		}
	}

	set := map[ProgramMode]Renderer{
		ModeBlack:    newBlackRenderer(),
		ModeBuiltin:  newBuiltinRenderer(display),
		ModeThreeD:   newThreeDRenderer(deps.Extensions),
		ModeMilkdrop: newMilkdropRenderer(deps.Extensions),
		ModeVideo:    newVideoRenderer(deps.Camera),
		ModeMedia:    newMediaRenderer(),
		ModeStream:   newStreamRenderer(),
		ModeWebpage:  newWebpageRenderer(),
	}
	return set, nil
}

// RendererDeps carries the shared resources renderers borrow.
type RendererDeps struct {
	Camera     *CameraManager
	Extensions *ExtensionLoader
}
