package main

import (
	"testing"
	"time"
)

// recordedMIDI collects decoder output for assertions.
type recordedMIDI struct {
	clocks    int
	starts    int
	continues int
	stops     int
	spp       []int
	notes     []NoteEvent
	ccs       []ControlEvent
	sysex     []SysExEvent
}

func (r *recordedMIDI) Clock(t time.Time)    { r.clocks++ }
func (r *recordedMIDI) Start(t time.Time)    { r.starts++ }
func (r *recordedMIDI) Continue(t time.Time) { r.continues++ }
func (r *recordedMIDI) Stop(t time.Time)     { r.stops++ }
func (r *recordedMIDI) SongPosition(t time.Time, sixteenths int) {
	r.spp = append(r.spp, sixteenths)
}
func (r *recordedMIDI) NoteOn(t time.Time, ch, note, vel int) {
	r.notes = append(r.notes, NoteEvent{Note: note, Velocity: vel, Channel: ch})
}
func (r *recordedMIDI) NoteOff(t time.Time, ch, note int) {
	r.notes = append(r.notes, NoteEvent{Note: note, Velocity: 0, Channel: ch})
}
func (r *recordedMIDI) ControlChange(t time.Time, ch, cc int, v float64) {
	r.ccs = append(r.ccs, ControlEvent{ID: cc, Value: v, Channel: ch})
}
func (r *recordedMIDI) SysEx(t time.Time, id uint32, payload []byte) {
	p := make([]byte, len(payload))
	copy(p, payload)
	r.sysex = append(r.sysex, SysExEvent{ManufacturerID: id, Payload: p})
}

func feed(d *MIDIDecoder, bytes ...byte) {
	d.Feed(time.Now(), bytes)
}

// TestDecodeNotes verifies note on/off decoding including the velocity-0
// note-off convention and channel extraction.
func TestDecodeNotes(t *testing.T) {
	rec := &recordedMIDI{}
	d := NewMIDIDecoder(rec)

	feed(d, 0x92, 60, 100) // note on, channel 2
	feed(d, 0x92, 60, 0)   // velocity 0 == note off
	feed(d, 0x83, 48, 64)  // explicit note off, channel 3

	if len(rec.notes) != 3 {
		t.Fatalf("decoded %d notes, expected 3", len(rec.notes))
	}
	if rec.notes[0] != (NoteEvent{Note: 60, Velocity: 100, Channel: 2}) {
		t.Fatalf("note[0] = %+v", rec.notes[0])
	}
	if rec.notes[1].Velocity != 0 {
		t.Fatalf("velocity-0 note-on not decoded as note-off: %+v", rec.notes[1])
	}
	if rec.notes[2] != (NoteEvent{Note: 48, Velocity: 0, Channel: 3}) {
		t.Fatalf("note[2] = %+v", rec.notes[2])
	}
}

// TestRunningStatus verifies data bytes after a complete message reuse the
// prior status byte.
func TestRunningStatus(t *testing.T) {
	rec := &recordedMIDI{}
	d := NewMIDIDecoder(rec)

	feed(d, 0x90, 60, 100, 64, 100, 67, 100)

	if len(rec.notes) != 3 {
		t.Fatalf("decoded %d notes under running status, expected 3", len(rec.notes))
	}
	if rec.notes[2].Note != 67 {
		t.Fatalf("running status note = %d, expected 67", rec.notes[2].Note)
	}
}

// TestClockInterleavedInSysEx verifies real-time bytes are dispatched
// immediately without corrupting an in-flight SysEx message.
func TestClockInterleavedInSysEx(t *testing.T) {
	rec := &recordedMIDI{}
	d := NewMIDIDecoder(rec)

	feed(d, 0xF0, 0x7D, 0x01, 0xF8, 0x02, 0xF7)

	if rec.clocks != 1 {
		t.Fatalf("clocks = %d, expected 1", rec.clocks)
	}
	if len(rec.sysex) != 1 {
		t.Fatalf("sysex count = %d, expected 1", len(rec.sysex))
	}
	got := rec.sysex[0]
	if got.ManufacturerID != 0x7D {
		t.Fatalf("manufacturer = 0x%02X, expected 0x7D", got.ManufacturerID)
	}
	if len(got.Payload) != 2 || got.Payload[0] != 0x01 || got.Payload[1] != 0x02 {
		t.Fatalf("payload = %v, expected [1 2]", got.Payload)
	}
}

// TestExtendedManufacturerID verifies 3-byte manufacturer ids are extracted.
func TestExtendedManufacturerID(t *testing.T) {
	rec := &recordedMIDI{}
	d := NewMIDIDecoder(rec)

	feed(d, 0xF0, 0x00, 0x20, 0x6B, 0x42, 0xF7)

	if len(rec.sysex) != 1 {
		t.Fatalf("sysex count = %d, expected 1", len(rec.sysex))
	}
	if rec.sysex[0].ManufacturerID != 0x00206B {
		t.Fatalf("manufacturer = 0x%06X, expected 0x00206B", rec.sysex[0].ManufacturerID)
	}
}

// TestSongPositionDecoding verifies SPP lsb/msb assembly into sixteenths.
func TestSongPositionDecoding(t *testing.T) {
	rec := &recordedMIDI{}
	d := NewMIDIDecoder(rec)

	feed(d, 0xF2, 0x10, 0x00) // 16 sixteenths = 1 bar
	feed(d, 0xF2, 0x00, 0x02) // 256

	if len(rec.spp) != 2 || rec.spp[0] != 16 || rec.spp[1] != 256 {
		t.Fatalf("spp = %v, expected [16 256]", rec.spp)
	}
}

// TestCCNormalization verifies controller values map onto [0,1].
func TestCCNormalization(t *testing.T) {
	rec := &recordedMIDI{}
	d := NewMIDIDecoder(rec)

	feed(d, 0xB0, 1, 127)
	feed(d, 0xB0, 1, 0)

	if len(rec.ccs) != 2 {
		t.Fatalf("ccs = %d, expected 2", len(rec.ccs))
	}
	if rec.ccs[0].Value != 1.0 || rec.ccs[1].Value != 0.0 {
		t.Fatalf("normalized values %v/%v, expected 1/0", rec.ccs[0].Value, rec.ccs[1].Value)
	}
}

// TestMalformedRunDiscarded verifies stray data bytes before any status are
// dropped and decoding resumes at the next status byte.
func TestMalformedRunDiscarded(t *testing.T) {
	rec := &recordedMIDI{}
	d := NewMIDIDecoder(rec)

	feed(d, 0x33, 0x44, 0x55, 0x90, 60, 100)

	if len(rec.notes) != 1 {
		t.Fatalf("decoded %d notes after malformed run, expected 1", len(rec.notes))
	}
	if rec.notes[0].Note != 60 {
		t.Fatalf("note = %d, expected 60", rec.notes[0].Note)
	}
}

// TestTransportBytes verifies start/continue/stop dispatch.
func TestTransportBytes(t *testing.T) {
	rec := &recordedMIDI{}
	d := NewMIDIDecoder(rec)

	feed(d, 0xFA, 0xFB, 0xFC, 0xFC)

	if rec.starts != 1 || rec.continues != 1 || rec.stops != 2 {
		t.Fatalf("transport counts start=%d cont=%d stop=%d, expected 1/1/2",
			rec.starts, rec.continues, rec.stops)
	}
}

// BenchmarkDecodeClockStream measures decode throughput on a clock-heavy
// stream, the steady-state input while locked to an external sequencer.
func BenchmarkDecodeClockStream(b *testing.B) {
	rec := &recordedMIDI{}
	d := NewMIDIDecoder(rec)
	chunk := make([]byte, 64)
	for i := range chunk {
		chunk[i] = 0xF8
	}
	now := time.Now()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Feed(now, chunk)
	}
}

// TestNoRunningStatusForSongPosition verifies system-common messages do not
// establish running status: data bytes after a complete SPP are dropped.
func TestNoRunningStatusForSongPosition(t *testing.T) {
	rec := &recordedMIDI{}
	d := NewMIDIDecoder(rec)

	feed(d, 0xF2, 0x10, 0x00) // SPP 16
	feed(d, 0x20, 0x00)       // bare data bytes, no status context

	if len(rec.spp) != 1 || rec.spp[0] != 16 {
		t.Fatalf("spp = %v, expected exactly [16]", rec.spp)
	}
}
