// midi_codec.go - Streaming MIDI byte decoder

package main

import "time"

// MIDI status bytes handled by the decoder.
const (
	midiNoteOff   = 0x80
	midiNoteOn    = 0x90
	midiPolyAfter = 0xA0
	midiCC        = 0xB0
	midiProgram   = 0xC0
	midiChanAfter = 0xD0
	midiPitchBend = 0xE0

	midiSysExStart = 0xF0
	midiSongPos    = 0xF2
	midiSongSelect = 0xF3
	midiTuneReq    = 0xF6
	midiSysExEnd   = 0xF7

	midiClock    = 0xF8
	midiStart    = 0xFA
	midiContinue = 0xFB
	midiStop     = 0xFC
)

// MIDIMessages receives decoded messages. Timestamps come from the driver
// when available, otherwise from the wall clock at decode time. All methods
// are invoked synchronously on the decoding goroutine.
type MIDIMessages interface {
	Clock(t time.Time)
	Start(t time.Time)
	Continue(t time.Time)
	Stop(t time.Time)
	SongPosition(t time.Time, sixteenths int)
	NoteOn(t time.Time, channel, note, velocity int)
	NoteOff(t time.Time, channel, note int)
	ControlChange(t time.Time, channel, controller int, value float64)
	SysEx(t time.Time, manufacturerID uint32, payload []byte)
}

// MIDIDecoder converts a timestamped byte stream into semantic messages.
// Malformed runs are discarded silently past the next status byte; no error
// ever escapes the decoder. Running status is honored, and real-time bytes
// may interleave inside any multi-byte message without disturbing it.
type MIDIDecoder struct {
	out MIDIMessages

	status  byte // current running status, 0 if none
	data    [2]byte
	need    int // data bytes still expected for the running message
	have    int
	inSysEx bool
	sysex   []byte
}

func NewMIDIDecoder(out MIDIMessages) *MIDIDecoder {
	return &MIDIDecoder{out: out, sysex: make([]byte, 0, 64)}
}

// dataBytesFor returns how many data bytes a channel status expects.
func dataBytesFor(status byte) int {
	switch status & 0xF0 {
	case midiProgram, midiChanAfter:
		return 1
	default:
		return 2
	}
}

// Feed decodes a chunk of the stream stamped with t.
func (d *MIDIDecoder) Feed(t time.Time, chunk []byte) {
	for _, b := range chunk {
		d.feedByte(t, b)
	}
}

func (d *MIDIDecoder) feedByte(t time.Time, b byte) {
	// Real-time bytes are dispatched immediately and never alter decoder
	// state, even mid-SysEx.
	if b >= 0xF8 {
		switch b {
		case midiClock:
			d.out.Clock(t)
		case midiStart:
			d.out.Start(t)
		case midiContinue:
			d.out.Continue(t)
		case midiStop:
			d.out.Stop(t)
		}
		return
	}

	if d.inSysEx {
		if b == midiSysExEnd {
			d.finishSysEx(t)
			return
		}
		if b >= 0x80 {
			// A non-realtime status aborts the SysEx; reprocess the byte.
			d.inSysEx = false
			d.sysex = d.sysex[:0]
			d.feedByte(t, b)
			return
		}
		d.sysex = append(d.sysex, b)
		return
	}

	if b >= 0x80 {
		switch {
		case b == midiSysExStart:
			d.inSysEx = true
			d.sysex = d.sysex[:0]
			d.status = 0
		case b == midiSongPos:
			d.status = b
			d.need = 2
			d.have = 0
		case b == midiSongSelect:
			d.status = b
			d.need = 1
			d.have = 0
		case b < 0xF0:
			d.status = b
			d.need = dataBytesFor(b)
			d.have = 0
		default:
			// Unhandled system common (tune request, EOX with no SysEx):
			// clears running status per the MIDI spec.
			d.status = 0
		}
		return
	}

	// Data byte with no status context is part of a malformed run; drop it.
	if d.status == 0 {
		return
	}

	d.data[d.have] = b
	d.have++
	if d.have < d.need {
		return
	}
	d.have = 0
	d.dispatch(t)
}

func (d *MIDIDecoder) dispatch(t time.Time) {
	s := d.status
	if s == midiSongPos {
		// System common carries no running status.
		d.status = 0
		pos := int(d.data[0]) | int(d.data[1])<<7
		d.out.SongPosition(t, pos)
		return
	}
	if s == midiSongSelect {
		d.status = 0
		return // recognized, unused
	}

	ch := int(s & 0x0F)
	switch s & 0xF0 {
	case midiNoteOn:
		vel := int(d.data[1])
		if vel == 0 {
			d.out.NoteOff(t, ch, int(d.data[0]))
		} else {
			d.out.NoteOn(t, ch, int(d.data[0]), vel)
		}
	case midiNoteOff:
		d.out.NoteOff(t, ch, int(d.data[0]))
	case midiCC:
		d.out.ControlChange(t, ch, int(d.data[0]), float64(d.data[1])/127.0)
	}
	// Other channel messages are decoded for framing but not surfaced.
}

func (d *MIDIDecoder) finishSysEx(t time.Time) {
	d.inSysEx = false
	payload := d.sysex
	d.sysex = make([]byte, 0, 64)

	if len(payload) == 0 {
		return
	}
	var id uint32
	if payload[0] == 0x00 {
		// Extended 3-byte manufacturer id.
		if len(payload) < 3 {
			return
		}
		id = uint32(payload[0])<<16 | uint32(payload[1])<<8 | uint32(payload[2])
		payload = payload[3:]
	} else {
		id = uint32(payload[0])
		payload = payload[1:]
	}
	d.out.SysEx(t, id, payload)
}
