// sysex_control.go - Engine SysEx command vocabulary

package main

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// sysexManufacturerID is the reserved (educational/development) id the
// engine answers to; everything else is passed through untouched.
const sysexManufacturerID = 0x7D

// SysEx command bytes.
const (
	sysexCmdMode   = 0x01 // arg: 0=builtin 1=three-d 2=milkdrop
	sysexCmdPreset = 0x02 // args: hi, lo (14-bit preset index)
	sysexCmdScene  = 0x03 // arg: scene 0-3
	sysexCmdNext   = 0x10
	sysexCmdPrev   = 0x11
)

// sysexModeTable maps the one-byte mode argument onto program modes.
var sysexModeTable = map[byte]ProgramMode{
	0: ModeBuiltin,
	1: ModeThreeD,
	2: ModeMilkdrop,
}

// SysExControl interprets the engine's own SysEx vocabulary and drives the
// mode machine. Disabled by default; the sysexEnable command gates it.
type SysExControl struct {
	mu      sync.Mutex
	log     *logrus.Entry
	fsm     *ModeMachine
	enabled bool
}

func NewSysExControl(fsm *ModeMachine) *SysExControl {
	return &SysExControl{
		log: componentLog("sysex"),
		fsm: fsm,
	}
}

// SetEnabled gates the vocabulary.
func (s *SysExControl) SetEnabled(on bool) {
	s.mu.Lock()
	s.enabled = on
	s.mu.Unlock()
}

// Enabled reports the gate.
func (s *SysExControl) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Handle interprets one SysEx payload (delimiters and manufacturer id
// already stripped by the decoder). Unknown commands and foreign
// manufacturer ids are ignored.
func (s *SysExControl) Handle(ev SysExEvent) {
	if !s.Enabled() || ev.ManufacturerID != sysexManufacturerID || len(ev.Payload) == 0 {
		return
	}

	cmd := ev.Payload[0]
	args := ev.Payload[1:]
	switch cmd {
	case sysexCmdMode:
		if len(args) < 1 {
			return
		}
		mode, ok := sysexModeTable[args[0]]
		if !ok {
			return
		}
		if err := s.fsm.Switch(mode); err != nil {
			s.log.Warnf("mode switch: %v", err)
		}
	case sysexCmdPreset:
		if len(args) < 2 {
			return
		}
		index := int(args[0])<<7 | int(args[1])
		if err := s.fsm.SelectPreset(index); err != nil {
			s.log.Warnf("preset select: %v", err)
		}
	case sysexCmdScene:
		if len(args) < 1 {
			return
		}
		if err := s.fsm.SelectScene(int(args[0])); err != nil {
			s.log.Warnf("scene select: %v", err)
		}
	case sysexCmdNext:
		s.fsm.NextPreset()
	case sysexCmdPrev:
		s.fsm.PrevPreset()
	}
}
