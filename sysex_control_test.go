package main

import (
	"testing"
	"time"
)

func newTestSysEx(t *testing.T) (*SysExControl, *ModeMachine, map[ProgramMode]Renderer) {
	t.Helper()
	fsm, set, _ := newTestModeMachine(t)
	return NewSysExControl(fsm), fsm, set
}

// decodeSysEx runs raw bytes through the MIDI decoder into the control
// vocabulary, the same path a physical port uses.
func decodeSysEx(sc *SysExControl, raw []byte) {
	dec := NewMIDIDecoder(&sysexOnlySink{sc: sc})
	dec.Feed(time.Now(), raw)
}

type sysexOnlySink struct{ sc *SysExControl }

func (s *sysexOnlySink) Clock(time.Time)                            {}
func (s *sysexOnlySink) Start(time.Time)                            {}
func (s *sysexOnlySink) Continue(time.Time)                         {}
func (s *sysexOnlySink) Stop(time.Time)                             {}
func (s *sysexOnlySink) SongPosition(time.Time, int)                {}
func (s *sysexOnlySink) NoteOn(time.Time, int, int, int)            {}
func (s *sysexOnlySink) NoteOff(time.Time, int, int)                {}
func (s *sysexOnlySink) ControlChange(time.Time, int, int, float64) {}
func (s *sysexOnlySink) SysEx(t time.Time, id uint32, payload []byte) {
	s.sc.Handle(SysExEvent{ManufacturerID: id, Payload: payload})
}

// TestSysExDisabledByDefault verifies the gate blocks the vocabulary.
func TestSysExDisabledByDefault(t *testing.T) {
	sc, fsm, _ := newTestSysEx(t)

	decodeSysEx(sc, []byte{0xF0, 0x7D, 0x01, 0x02, 0xF7})
	if fsm.Mode() != ModeNone {
		t.Fatalf("disabled sysex switched mode to %s", fsm.Mode())
	}
}

// TestSysExModeAndPresetStep verifies F0 7D 01 02 F7 selects milkdrop and a
// following 10 advances the preset.
func TestSysExModeAndPresetStep(t *testing.T) {
	sc, fsm, set := newTestSysEx(t)
	sc.SetEnabled(true)
	md := set[ModeMilkdrop].(*milkdropRenderer)
	initial := md.CurrentPreset()

	decodeSysEx(sc, []byte{0xF0, 0x7D, 0x01, 0x02, 0xF7})
	if fsm.Mode() != ModeMilkdrop {
		t.Fatalf("mode = %s, expected milkdrop", fsm.Mode())
	}

	decodeSysEx(sc, []byte{0xF0, 0x7D, 0x10, 0xF7})
	want := (initial + 1) % len(md.Presets())
	if md.CurrentPreset() != want {
		t.Fatalf("preset = %d, expected %d", md.CurrentPreset(), want)
	}
}

// TestSysEx14BitPreset verifies the hi/lo preset index decoding.
func TestSysEx14BitPreset(t *testing.T) {
	sc, _, set := newTestSysEx(t)
	sc.SetEnabled(true)
	md := set[ModeMilkdrop].(*milkdropRenderer)

	// hi=0 lo=5 -> index 5
	decodeSysEx(sc, []byte{0xF0, 0x7D, 0x02, 0x00, 0x05, 0xF7})
	if md.CurrentPreset() != 5 {
		t.Fatalf("preset = %d, expected 5", md.CurrentPreset())
	}

	// Out-of-range index is rejected, preset unchanged.
	decodeSysEx(sc, []byte{0xF0, 0x7D, 0x02, 0x01, 0x00, 0xF7})
	if md.CurrentPreset() != 5 {
		t.Fatalf("preset = %d after out-of-range select, expected 5", md.CurrentPreset())
	}
}

// TestSysExForeignManufacturerIgnored verifies other ids pass through.
func TestSysExForeignManufacturerIgnored(t *testing.T) {
	sc, fsm, _ := newTestSysEx(t)
	sc.SetEnabled(true)

	decodeSysEx(sc, []byte{0xF0, 0x43, 0x01, 0x02, 0xF7})
	if fsm.Mode() != ModeNone {
		t.Fatalf("foreign sysex switched mode to %s", fsm.Mode())
	}
}

// TestSysExSceneSelect verifies the scene command reaches the builtin
// renderer.
func TestSysExSceneSelect(t *testing.T) {
	sc, _, set := newTestSysEx(t)
	sc.SetEnabled(true)
	builtin := set[ModeBuiltin].(*builtinRenderer)

	decodeSysEx(sc, []byte{0xF0, 0x7D, 0x03, 0x02, 0xF7})
	if builtin.Scene() != 2 {
		t.Fatalf("scene = %d, expected 2", builtin.Scene())
	}
}
