package main

import (
	"path/filepath"
	"testing"
	"time"
)

// TestSettingsRoundTrip verifies values survive a flush and reload.
func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	s := NewSettingsStore(path)
	s.Set(SettingBeatThreshold, "1.6")
	s.Set(SettingMIDIInputID, "Launchkey MK3")
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reloaded := NewSettingsStore(path)
	if v, _ := reloaded.Get(SettingBeatThreshold); v != "1.6" {
		t.Fatalf("beatThreshold = %q after reload, expected 1.6", v)
	}
	if v, _ := reloaded.Get(SettingMIDIInputID); v != "Launchkey MK3" {
		t.Fatalf("midiInputId = %q after reload", v)
	}
}

// TestSettingsChangeNotification verifies subscribers see mutations and that
// setting an identical value is silent.
func TestSettingsChangeNotification(t *testing.T) {
	s := NewSettingsStore("")
	ch := s.Changes()

	s.Set(SettingInputGain, "70")
	select {
	case c := <-ch:
		if c.Key != SettingInputGain || c.Value != "70" {
			t.Fatalf("change = %+v, expected inputGain=70", c)
		}
	case <-time.After(time.Second):
		t.Fatal("no change notification delivered")
	}

	s.Set(SettingInputGain, "70") // identical; must not notify
	select {
	case c := <-ch:
		t.Fatalf("unexpected notification for identical value: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestSettingsMissingFile verifies a missing file yields an empty store.
func TestSettingsMissingFile(t *testing.T) {
	s := NewSettingsStore(filepath.Join(t.TempDir(), "nope", "settings.yaml"))
	if _, ok := s.Get(SettingRenderer); ok {
		t.Fatal("missing file produced values")
	}
	if got := s.GetDefault(SettingProgramResolution, "auto"); got != "auto" {
		t.Fatalf("GetDefault = %q, expected auto", got)
	}
	if !s.GetBool(SettingShowStatusBar, true) {
		t.Fatal("GetBool default not honored")
	}
}

// TestSettingsBoolCoercion verifies the accepted truthy spellings.
func TestSettingsBoolCoercion(t *testing.T) {
	s := NewSettingsStore("")
	s.Set(SettingMIDISynthEnable, "true")
	s.Set(SettingMIDISynthAudible, "1")
	s.Set(SettingEnableSysEx, "false")

	if !s.GetBool(SettingMIDISynthEnable, false) || !s.GetBool(SettingMIDISynthAudible, false) {
		t.Fatal("truthy values not coerced")
	}
	if s.GetBool(SettingEnableSysEx, true) {
		t.Fatal("false value not coerced")
	}
}
