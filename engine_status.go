// engine_status.go - Program state snapshot store

package main

import "sync"

// programStateSnapshot is the ProgramState payload carried in stateUpdate
// envelopes. Position fields are present only while the timebase has a
// valid SPP anchor.
type programStateSnapshot struct {
	Mode       string `json:"mode"`
	Scene      int    `json:"scene"`
	Resolution struct {
		Preset string `json:"preset"`
		Width  int    `json:"w"`
		Height int    `json:"h"`
	} `json:"resolution"`
	AudioInputSource    string       `json:"audioInputSource"`
	ReactiveInputSource string       `json:"reactiveInputSource"`
	Audible             bool         `json:"audible"`
	Monitoring          bool         `json:"monitoring"`
	BPM                 float64      `json:"bpm"`
	Position            string       `json:"position,omitempty"`
	BeatPhase           float64      `json:"beatPhase"`
	BarPhase            float64      `json:"barPhase"`
	Playing             bool         `json:"playing"`
	PresetName          string       `json:"presetName,omitempty"`
	Identity            string       `json:"identity,omitempty"`
	Bands               BandEnergies `json:"bands"`
	RMS                 float64      `json:"rms"`
}

type programStateStore struct {
	mu sync.RWMutex
	programStateSnapshot
}

func (s *programStateStore) setMode(mode string, presetName string) {
	s.mu.Lock()
	s.Mode = mode
	s.PresetName = presetName
	s.mu.Unlock()
}

func (s *programStateStore) setScene(scene int) {
	s.mu.Lock()
	s.Scene = scene
	s.mu.Unlock()
}

func (s *programStateStore) setResolution(res Resolution) {
	s.mu.Lock()
	s.Resolution.Preset = res.Preset
	s.Resolution.Width = res.Width
	s.Resolution.Height = res.Height
	s.mu.Unlock()
}

func (s *programStateStore) setRouting(audioInput, reactive string, audible, monitoring bool) {
	s.mu.Lock()
	s.AudioInputSource = audioInput
	s.ReactiveInputSource = reactive
	s.Audible = audible
	s.Monitoring = monitoring
	s.mu.Unlock()
}

func (s *programStateStore) setTimebase(snap TimebaseSnapshot) {
	s.mu.Lock()
	s.BPM = snap.BPM
	s.Playing = snap.Playing
	if snap.PositionValid {
		s.Position = snap.PositionText
		s.BeatPhase = snap.BeatPhase
		s.BarPhase = snap.BarPhase
	} else {
		s.Position = ""
		s.BeatPhase = 0
		s.BarPhase = 0
	}
	s.mu.Unlock()
}

func (s *programStateStore) setBands(bands BandEnergies, rms float64) {
	s.mu.Lock()
	s.Bands = bands
	s.RMS = rms
	s.mu.Unlock()
}

func (s *programStateStore) setIdentity(id string) {
	s.mu.Lock()
	s.Identity = id
	s.mu.Unlock()
}

func (s *programStateStore) snapshot() programStateSnapshot {
	s.mu.RLock()
	snap := s.programStateSnapshot
	s.mu.RUnlock()
	return snap
}
