package main

import "testing"

// TestResolutionPresets checks the fixed preset table.
func TestResolutionPresets(t *testing.T) {
	cases := []struct {
		preset string
		w, h   int
	}{
		{"1080p", 1920, 1080},
		{"720p", 1280, 720},
		{"4k", 3840, 2160},
		{"square", 1080, 1080},
		{"vertical", 1080, 1920},
	}
	for _, c := range cases {
		r, err := ResolutionForPreset(c.preset, 0, 0)
		if err != nil {
			t.Fatalf("%s: %v", c.preset, err)
		}
		if r.Width != c.w || r.Height != c.h {
			t.Fatalf("%s = %dx%d, expected %dx%d", c.preset, r.Width, r.Height, c.w, c.h)
		}
	}
}

// TestCustomResolutionBounds verifies the 320x240 floor is enforced on both
// axes independently.
func TestCustomResolutionBounds(t *testing.T) {
	if _, err := ResolutionForPreset("custom", 319, 240); err == nil {
		t.Fatal("width 319 accepted")
	}
	if _, err := ResolutionForPreset("custom", 320, 239); err == nil {
		t.Fatal("height 239 accepted")
	}
	r, err := ResolutionForPreset("custom", 320, 240)
	if err != nil {
		t.Fatalf("minimum custom rejected: %v", err)
	}
	if r.Width != 320 || r.Height != 240 {
		t.Fatalf("custom = %dx%d", r.Width, r.Height)
	}
}

// TestUnknownPresetRejected verifies unrecognized names error out.
func TestUnknownPresetRejected(t *testing.T) {
	if _, err := ResolutionForPreset("8k", 0, 0); err == nil {
		t.Fatal("unknown preset accepted")
	}
}
