package main

import (
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
	"time"
)

// newTestEngine assembles a full headless engine against a throwaway
// settings file, with crossfades disabled for deterministic transitions.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(EngineConfig{
		Headless:     true,
		SettingsPath: filepath.Join(t.TempDir(), "settings.yaml"),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.fsm.SetFadeDuration(0)
	t.Cleanup(e.Close)
	return e
}

// startConsole brings up the in-process console end and captures its traffic.
func startConsole(t *testing.T, e *Engine) chan []byte {
	t.Helper()
	got := make(chan []byte, 256)
	e.console.OnReceive(func(msg []byte) { got <- msg })
	if err := e.console.Start(); err != nil {
		t.Fatalf("console start: %v", err)
	}
	t.Cleanup(e.console.Stop)
	return got
}

// waitState consumes console traffic until a stateUpdate satisfies pred.
func waitState(t *testing.T, got chan []byte, desc string, pred func(programStateSnapshot) bool) programStateSnapshot {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case raw := <-got:
			var env struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			if json.Unmarshal(raw, &env) != nil || env.Type != MsgStateUpdate {
				continue
			}
			var st programStateSnapshot
			if err := json.Unmarshal(env.Data, &st); err != nil {
				t.Fatalf("unmarshal state update: %v", err)
			}
			if pred(st) {
				return st
			}
		case <-deadline:
			t.Fatalf("no state update matching %s", desc)
		}
	}
}

// waitPresetList consumes console traffic until a presetList envelope arrives.
func waitPresetList(t *testing.T, got chan []byte) []string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case raw := <-got:
			var env struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			if json.Unmarshal(raw, &env) != nil || env.Type != MsgPresetList {
				continue
			}
			var presets []string
			if err := json.Unmarshal(env.Data, &presets); err != nil {
				t.Fatalf("unmarshal preset list: %v", err)
			}
			return presets
		case <-deadline:
			t.Fatalf("no preset list received")
		}
	}
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never held: %s", desc)
}

// TestEngineClockLockBroadcast feeds two quarter notes of MIDI clock at 120
// BPM plus a song position and expects the locked tempo and position to show
// up in the broadcast state.
func TestEngineClockLockBroadcast(t *testing.T) {
	e := newTestEngine(t)
	got := startConsole(t, e)
	e.Run()

	base := time.Now()
	step := 20833 * time.Microsecond // 24 clocks per quarter at 120 BPM
	for i := 0; i < 48; i++ {
		e.tb.OnClock(base.Add(time.Duration(i) * step))
	}
	e.tb.OnSongPosition(base.Add(47*step), 16)

	st := waitState(t, got, "bpm 120 at bar 1", func(st programStateSnapshot) bool {
		return st.Position == "1.0.0" && math.Abs(st.BPM-120) < 1
	})
	if st.Playing {
		t.Fatalf("playing reported before a start byte")
	}
}

// TestEngineSysExModeSelect enables the SysEx vocabulary over the console
// channel, injects a mode-select message and expects the mode change in the
// next broadcasts.
func TestEngineSysExModeSelect(t *testing.T) {
	e := newTestEngine(t)
	got := startConsole(t, e)
	e.Run()

	e.console.Send([]byte(`{"command":"sysexEnable","data":{"enabled":true}}`))
	waitFor(t, "sysex gate open", func() bool { return e.sysex.Enabled() })

	e.sysex.Handle(SysExEvent{ManufacturerID: 0x7D, Payload: []byte{0x01, 0x01}})
	waitState(t, got, "mode three-d", func(st programStateSnapshot) bool {
		return st.Mode == string(ModeThreeD)
	})
}

// TestEngineMilkdropSelection walks the console through entering milkdrop,
// picking a preset by index and cutting to black, checking the announced
// preset list and state updates along the way.
func TestEngineMilkdropSelection(t *testing.T) {
	e := newTestEngine(t)
	got := startConsole(t, e)
	e.Run()

	e.console.Send([]byte(`{"command":"switchMode","data":{"mode":"milkdrop"}}`))
	presets := waitPresetList(t, got)
	if len(presets) < 4 {
		t.Fatalf("preset list has %d entries, expected at least 4", len(presets))
	}
	waitState(t, got, "mode milkdrop", func(st programStateSnapshot) bool {
		return st.Mode == string(ModeMilkdrop)
	})

	e.console.Send([]byte(`{"command":"milkdropSelect","data":{"index":3}}`))
	waitState(t, got, "preset name", func(st programStateSnapshot) bool {
		return st.PresetName == presets[3]
	})

	e.console.Send([]byte(`{"command":"blackScreen"}`))
	waitState(t, got, "mode black", func(st programStateSnapshot) bool {
		return st.Mode == string(ModeBlack) && st.PresetName == ""
	})
}

// TestEngineSynthDisableFlushesNotes verifies disabling the soft synth
// silences every sounding voice rather than leaving notes stuck.
func TestEngineSynthDisableFlushesNotes(t *testing.T) {
	e := newTestEngine(t)
	startConsole(t, e)
	e.Run()

	e.console.Send([]byte(`{"command":"midiSynthEnable","data":{"enabled":true}}`))
	waitFor(t, "synth created", func() bool { return e.audio.Synth() != nil })

	syn := e.audio.Synth()
	syn.NoteOn(0, 60, 100)
	syn.NoteOn(0, 64, 100)
	if syn.ActiveVoices() == 0 {
		t.Fatalf("notes did not start voices")
	}

	e.console.Send([]byte(`{"command":"midiSynthEnable","data":{"enabled":false}}`))
	waitFor(t, "voices flushed", func() bool { return syn.ActiveVoices() == 0 })
}

// TestEngineSynthNotCreatedOnRestore verifies a persisted enable flag alone
// never builds the synth; it takes a console command to do that.
func TestEngineSynthNotCreatedOnRestore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	first := NewSettingsStore(path)
	first.Set(SettingMIDISynthEnable, "true")
	first.Set(SettingMIDISynthAudible, "true")
	if err := first.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	e, err := NewEngine(EngineConfig{Headless: true, SettingsPath: path})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(e.Close)

	if e.audio.Synth() != nil {
		t.Fatalf("synth created during preference restoration")
	}
}

// TestEngineCommandEffects exercises representative commands straight through
// the dispatch table.
func TestEngineCommandEffects(t *testing.T) {
	e := newTestEngine(t)

	e.handleCommand("eqGain", json.RawMessage(`{"band":1,"kill":true}`))
	if !e.audio.EQ().Killed(1) {
		t.Fatalf("mid band not killed")
	}
	if !e.settings.GetBool(SettingEQMid, false) {
		t.Fatalf("eq kill not persisted")
	}

	// Below-minimum custom dimensions are rejected and never persisted.
	e.handleCommand("programResolution", json.RawMessage(`{"preset":"custom","w":319,"h":200}`))
	if v := e.settings.GetDefault(SettingProgramResolution, "auto"); v == "custom" {
		t.Fatalf("invalid custom resolution persisted")
	}

	e.handleCommand("programResolution", json.RawMessage(`{"preset":"720p"}`))
	st := e.state.snapshot()
	if st.Resolution.Width != 1280 || st.Resolution.Height != 720 {
		t.Fatalf("resolution = %dx%d, expected 1280x720", st.Resolution.Width, st.Resolution.Height)
	}

	e.handleCommand("inputGain", json.RawMessage(`{"value":85}`))
	if v := e.settings.GetDefault(SettingInputGain, ""); v != "85" {
		t.Fatalf("input gain = %q, expected 85", v)
	}

	// Unknown commands are dropped without touching anything.
	e.handleCommand("selfDestruct", nil)
}

// TestEngineReactiveSourceSwitch verifies switching the reactive input away
// from audio and back again through the command path updates the snapshot.
func TestEngineReactiveSourceSwitch(t *testing.T) {
	e := newTestEngine(t)

	e.handleCommand("reactiveInputSource", json.RawMessage(`{"source":"midi"}`))
	if st := e.state.snapshot(); st.ReactiveInputSource != ReactiveMIDI {
		t.Fatalf("reactive source = %q, expected midi", st.ReactiveInputSource)
	}
	if v := e.settings.GetDefault(SettingReactiveInputSource, ""); v != ReactiveMIDI {
		t.Fatalf("reactive source not persisted, got %q", v)
	}

	e.handleCommand("reactiveInputSource", json.RawMessage(`{"source":"audio"}`))
	if st := e.state.snapshot(); st.ReactiveInputSource != ReactiveAudio {
		t.Fatalf("reactive source = %q, expected audio", st.ReactiveInputSource)
	}
}
