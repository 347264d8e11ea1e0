// renderer_modes.go - Mode renderers behind the Renderer interface

package main

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Renderer extension identifiers, loaded lazily by the mode machine.
const (
	ExtensionScene3D      = "scene3d"
	ExtensionSpectralWarp = "spectral-warp"
)

// ExtensionLoader tracks the optional rendering libraries. Loading is
// idempotent; a library marked unavailable fails every load, which is how
// tests exercise the stay-in-from failure path.
type ExtensionLoader struct {
	mu          sync.Mutex
	loaded      map[string]bool
	unavailable map[string]bool
}

func NewExtensionLoader() *ExtensionLoader {
	return &ExtensionLoader{
		loaded:      make(map[string]bool),
		unavailable: make(map[string]bool),
	}
}

func (l *ExtensionLoader) Loaded(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded[name]
}

func (l *ExtensionLoader) Load(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable[name] {
		return &EngineError{Operation: "extension load", Details: name + " unavailable"}
	}
	l.loaded[name] = true
	return nil
}

// SetUnavailable marks a library as unloadable.
func (l *ExtensionLoader) SetUnavailable(name string, broken bool) {
	l.mu.Lock()
	l.unavailable[name] = broken
	l.mu.Unlock()
}

// baseRenderer carries the surface state every mode shares.
type baseRenderer struct {
	mu      sync.Mutex
	mode    ProgramMode
	log     *logrus.Entry
	started bool
	visible bool
	opacity float64
	res     Resolution
}

func (b *baseRenderer) init(mode ProgramMode) {
	b.mode = mode
	b.log = componentLog("renderer").WithField("mode", string(mode))
}

func (b *baseRenderer) Mode() ProgramMode { return b.mode }
func (b *baseRenderer) Init() error       { return nil }

func (b *baseRenderer) Start() error {
	b.mu.Lock()
	b.started = true
	b.mu.Unlock()
	return nil
}

func (b *baseRenderer) Stop() error {
	b.mu.Lock()
	b.started = false
	b.mu.Unlock()
	return nil
}

func (b *baseRenderer) Close() error { return b.Stop() }

func (b *baseRenderer) IsStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

func (b *baseRenderer) SetResolution(res Resolution) error {
	b.mu.Lock()
	b.res = res
	b.mu.Unlock()
	return nil
}

func (b *baseRenderer) SetOpacity(v float64) {
	b.mu.Lock()
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	b.opacity = v
	b.mu.Unlock()
}

func (b *baseRenderer) Opacity() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opacity
}

func (b *baseRenderer) SetVisible(on bool) {
	b.mu.Lock()
	b.visible = on
	b.mu.Unlock()
}

func (b *baseRenderer) Visible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

// blackRenderer fills its surface with solid black; no resources.
type blackRenderer struct{ baseRenderer }

func newBlackRenderer() *blackRenderer {
	r := &blackRenderer{}
	r.init(ModeBlack)
	return r
}

// threeDRenderer hosts the 3D scene engine. The engine itself is an
// external collaborator; this backend owns its lifecycle hooks.
type threeDRenderer struct {
	baseRenderer
	ext *ExtensionLoader
}

func newThreeDRenderer(ext *ExtensionLoader) *threeDRenderer {
	r := &threeDRenderer{ext: ext}
	r.init(ModeThreeD)
	return r
}

func (r *threeDRenderer) Init() error {
	return r.ext.Load(ExtensionScene3D)
}

// milkdropPresets is the shipped spectral preset list.
var milkdropPresets = []string{
	"Reaction Diffusion 2",
	"Cruzer - Cube Field",
	"Flexi - Mindblob",
	"Geiss - Feedback",
	"Hexcollie - Tunnel of Gnarl",
	"Martin - Attainable Illusions",
	"Rovastar - Fractopia",
	"Stahlregen - Jelly Aurora",
	"Unchained - Rewired",
	"Zylot - Crosshair Dimension",
}

// milkdropRenderer hosts the spectral-warp engine: enumerable presets and a
// direct band-stream hookup.
type milkdropRenderer struct {
	baseRenderer
	ext     *ExtensionLoader
	preset  int
	reader  func() BandEnergies
	presets []string
}

func newMilkdropRenderer(ext *ExtensionLoader) *milkdropRenderer {
	r := &milkdropRenderer{ext: ext, presets: milkdropPresets}
	r.init(ModeMilkdrop)
	return r
}

func (r *milkdropRenderer) Init() error {
	return r.ext.Load(ExtensionSpectralWarp)
}

func (r *milkdropRenderer) Presets() []string {
	return append([]string(nil), r.presets...)
}

func (r *milkdropRenderer) SelectPreset(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.presets) {
		return &EngineError{Operation: "preset select", Details: "index out of range"}
	}
	r.preset = index
	return nil
}

func (r *milkdropRenderer) NextPreset() {
	r.mu.Lock()
	r.preset = (r.preset + 1) % len(r.presets)
	r.mu.Unlock()
}

func (r *milkdropRenderer) PrevPreset() {
	r.mu.Lock()
	r.preset = (r.preset - 1 + len(r.presets)) % len(r.presets)
	r.mu.Unlock()
}

func (r *milkdropRenderer) CurrentPreset() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preset
}

func (r *milkdropRenderer) ConnectSpectrum(read func() BandEnergies) {
	r.mu.Lock()
	r.reader = read
	r.mu.Unlock()
}

// videoRenderer shows the camera. It owns the exclusive device handle for
// the duration of the mode; Stop releases the handle, not merely the view.
type videoRenderer struct {
	baseRenderer
	camera *CameraManager
	device string
}

func newVideoRenderer(camera *CameraManager) *videoRenderer {
	r := &videoRenderer{camera: camera}
	r.init(ModeVideo)
	return r
}

// SetDevice selects the camera device node for the next Start.
func (r *videoRenderer) SetDevice(device string) {
	r.mu.Lock()
	r.device = device
	r.mu.Unlock()
}

func (r *videoRenderer) Start() error {
	r.mu.Lock()
	device := r.device
	r.mu.Unlock()
	if err := r.camera.Acquire(string(ModeVideo), device); err != nil {
		return err
	}
	return r.baseRenderer.Start()
}

func (r *videoRenderer) Stop() error {
	r.camera.Release(string(ModeVideo))
	return r.baseRenderer.Stop()
}

// mediaRenderer plays a loaded media file; it owns the program media element
// the routing matrix binds under the program-media selection.
type mediaRenderer struct {
	baseRenderer
	elem *MediaElement
}

func newMediaRenderer() *mediaRenderer {
	r := &mediaRenderer{elem: NewMediaElement("program-media")}
	r.init(ModeMedia)
	return r
}

func (r *mediaRenderer) Media() *MediaElement { return r.elem }
func (r *mediaRenderer) LoadMedia(url string) { r.elem.Load(url) }

func (r *mediaRenderer) Stop() error {
	r.elem.Disconnect()
	return r.baseRenderer.Stop()
}

// streamRenderer plays a live HLS stream through its own media element.
type streamRenderer struct {
	baseRenderer
	elem *MediaElement
}

func newStreamRenderer() *streamRenderer {
	r := &streamRenderer{elem: NewMediaElement("program-stream")}
	r.init(ModeStream)
	return r
}

func (r *streamRenderer) Media() *MediaElement { return r.elem }
func (r *streamRenderer) LoadMedia(url string) { r.elem.Load(url) }

func (r *streamRenderer) Stop() error {
	r.elem.Disconnect()
	return r.baseRenderer.Stop()
}

// webpageRenderer embeds an external page by URL.
type webpageRenderer struct {
	baseRenderer
	url string
}

func newWebpageRenderer() *webpageRenderer {
	r := &webpageRenderer{}
	r.init(ModeWebpage)
	return r
}

func (r *webpageRenderer) LoadURL(url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return &EngineError{Operation: "webpage load", Details: "unsupported URL: " + url}
	}
	r.mu.Lock()
	r.url = url
	r.mu.Unlock()
	return nil
}

// URL returns the loaded page address.
func (r *webpageRenderer) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}
