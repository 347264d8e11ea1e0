// resolution.go - Output resolution presets

package main

import "fmt"

const (
	minCustomWidth  = 320
	minCustomHeight = 240
)

// Resolution is the target surface size applied before a renderer starts.
// Width/Height of 0 mean "derive from the container" (auto and 100%).
type Resolution struct {
	Preset string `json:"preset"`
	Width  int    `json:"w"`
	Height int    `json:"h"`
}

// ResolutionForPreset resolves a preset name to concrete dimensions.
// custom requires explicit width/height of at least 320x240.
func ResolutionForPreset(preset string, customW, customH int) (Resolution, error) {
	switch preset {
	case "auto", "100%":
		return Resolution{Preset: preset}, nil
	case "1080p":
		return Resolution{Preset: preset, Width: 1920, Height: 1080}, nil
	case "720p":
		return Resolution{Preset: preset, Width: 1280, Height: 720}, nil
	case "4k":
		return Resolution{Preset: preset, Width: 3840, Height: 2160}, nil
	case "square":
		return Resolution{Preset: preset, Width: 1080, Height: 1080}, nil
	case "vertical":
		return Resolution{Preset: preset, Width: 1080, Height: 1920}, nil
	case "custom":
		if customW < minCustomWidth || customH < minCustomHeight {
			return Resolution{}, &EngineError{
				Operation: "resolution",
				Details:   fmt.Sprintf("custom %dx%d below minimum %dx%d", customW, customH, minCustomWidth, minCustomHeight),
			}
		}
		return Resolution{Preset: preset, Width: customW, Height: customH}, nil
	}
	return Resolution{}, &EngineError{Operation: "resolution", Details: "unknown preset " + preset}
}
