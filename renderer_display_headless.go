//go:build headless

// renderer_display_headless.go - Display stub for headless builds

package main

func newPlatformDisplay() builtinDisplay {
	return &headlessDisplay{}
}
