//go:build !headless

// renderer_display_ebiten.go - Ebiten window for the builtin renderer

package main

import (
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"
)

func newPlatformDisplay() builtinDisplay {
	return &ebitenDisplay{}
}

// ebitenDisplay renders the builtin scenes into a real window. RunGame is
// driven on its own goroutine; Close requests termination from Update.
type ebitenDisplay struct {
	mu      sync.RWMutex
	open    bool
	closing bool
	width   int
	height  int
	scene   int
	overlay string
	bands   func() BandEnergies
	done    chan struct{}
}

func (d *ebitenDisplay) Open(width, height int) error {
	d.mu.Lock()
	if d.open {
		d.mu.Unlock()
		return nil
	}
	d.open = true
	d.closing = false
	d.width = width
	d.height = height
	d.done = make(chan struct{})
	d.mu.Unlock()

	ebiten.SetWindowSize(width, height)
	ebiten.SetWindowTitle("Lumen Engine")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetVsyncEnabled(true)

	go func() {
		defer func() {
			d.mu.Lock()
			d.open = false
			done := d.done
			d.mu.Unlock()
			select {
			case <-done:
			default:
				close(done)
			}
		}()
		if err := ebiten.RunGame(d); err != nil && err != ebiten.Termination {
			componentLog("renderer").Warnf("ebiten: %v", err)
		}
	}()
	return nil
}

func (d *ebitenDisplay) Close() error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	done := d.done
	d.mu.Unlock()
	<-done
	return nil
}

func (d *ebitenDisplay) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.open
}

func (d *ebitenDisplay) SetOverlayText(s string) {
	d.mu.Lock()
	d.overlay = s
	d.mu.Unlock()
}

func (d *ebitenDisplay) SetScene(index int) {
	d.mu.Lock()
	d.scene = index
	d.mu.Unlock()
}

func (d *ebitenDisplay) SetBands(read func() BandEnergies) {
	d.mu.Lock()
	d.bands = read
	d.mu.Unlock()
}

func (d *ebitenDisplay) Update() error {
	d.mu.RLock()
	closing := d.closing
	d.mu.RUnlock()
	if closing {
		return ebiten.Termination
	}
	return nil
}

// sceneColors gives each builtin scene its own palette base.
var sceneColors = [builtinSceneCount]color.RGBA{
	{0x2e, 0xc4, 0xb6, 0xff},
	{0xef, 0x47, 0x6f, 0xff},
	{0xff, 0xbf, 0x69, 0xff},
	{0x8e, 0x7d, 0xbe, 0xff},
}

func (d *ebitenDisplay) Draw(screen *ebiten.Image) {
	d.mu.RLock()
	scene := d.scene
	read := d.bands
	overlay := d.overlay
	w, h := d.width, d.height
	d.mu.RUnlock()

	screen.Fill(color.Black)

	var bands BandEnergies
	if read != nil {
		bands = read()
	}
	levels := bands.Levels()
	base := sceneColors[scene%builtinSceneCount]

	barW := float64(w) / float64(len(levels))
	for i, level := range levels {
		barH := level * float64(h)
		x := float64(i) * barW
		c := base
		c.A = uint8(80 + level*175)
		ebitenutil.DrawRect(screen, x+2, float64(h)-barH, barW-4, barH, c)
	}

	if overlay != "" {
		text.Draw(screen, overlay, basicfont.Face7x13, 8, 16, color.White)
	}
}

func (d *ebitenDisplay) Layout(outsideWidth, outsideHeight int) (int, int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.width, d.height
}
