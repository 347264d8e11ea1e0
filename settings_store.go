// settings_store.go - Persistent key/value user preferences

package main

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Persisted setting keys. Values are strings; callers coerce.
const (
	SettingAudioInputDeviceID  = "audioInputDeviceId"
	SettingAudioSampleRate     = "audioSampleRate"
	SettingAudioInputSource    = "audioInputSource"
	SettingReactiveInputSource = "reactiveInputSource"
	SettingMIDIInputID         = "midiInputId"
	SettingMIDISynthInputID    = "midiSynthInputId"
	SettingMIDIOutputID        = "midiOutputId"
	SettingMIDIOutputChannel   = "midiOutputChannel"
	SettingMIDISynthEnable     = "midiSynthEnable"
	SettingMIDISynthChannel    = "midiSynthChannel"
	SettingMIDISynthAudible    = "midiSynthAudible"
	SettingMIDISynthAutoFeed   = "midiSynthAutoFeed"
	SettingMIDISynthFeedInput  = "midiSynthFeedInput"
	SettingMIDISynthBeatKick   = "midiSynthBeatKick"
	SettingAudioNoteDuration   = "audioNoteDuration"
	SettingBeatThreshold       = "beatThreshold"
	SettingBeatMinTime         = "beatMinTime"
	SettingEQLow               = "eqLow"
	SettingEQMid               = "eqMid"
	SettingEQHigh              = "eqHigh"
	SettingInputGain           = "inputGain"
	SettingProgramResolution   = "programResolution"
	SettingCustomResWidth      = "customResolutionWidth"
	SettingCustomResHeight     = "customResolutionHeight"
	SettingShowStatusBar       = "showStatusBar"
	SettingShowControlPanel    = "showControlPanel"
	SettingRenderer            = "renderer"
	SettingOSCServer           = "oscServer"
	SettingEnableSysEx         = "enableSysEx"
	SettingEndpointIdentity    = "endpointIdentity"
	SettingLastScene           = "lastScene"
	SettingVideoAudioOutput    = "videoAudioOutput"
	SettingAudioBeatReactive   = "audioBeatReactive"
	SettingVideoAudioReactive  = "videoAudioReactive"
	SettingVideoBeatReactive   = "videoBeatReactive"
	SettingMediaAudioReactive  = "mediaAudioReactive"
	SettingMediaBeatReactive   = "mediaBeatReactive"
	SettingStreamAudioReactive = "streamAudioReactive"
	SettingStreamBeatReactive  = "streamBeatReactive"
	SettingWebAudioReactive    = "webpageAudioReactive"
	SettingWebBeatReactive     = "webpageBeatReactive"
)

// settingsFlushDelay debounces disk writes across bursts of Set calls.
const settingsFlushDelay = 250 * time.Millisecond

// SettingChange is delivered to Changes subscribers after a value mutates.
type SettingChange struct {
	Key   string
	Value string
}

// SettingsStore is a single-writer string map persisted as YAML. Reads are
// synchronous; writes notify subscribers and schedule a debounced flush.
// No secrets belong here.
type SettingsStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
	subs   []chan SettingChange
	flush  *time.Timer
	log    *logrus.Entry
}

// NewSettingsStore loads path if it exists; a missing or unreadable file
// yields an empty store (preferences are never fatal).
func NewSettingsStore(path string) *SettingsStore {
	s := &SettingsStore{
		path:   path,
		values: make(map[string]string),
		log:    componentLog("settings"),
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &s.values); err != nil {
			s.log.Warnf("settings file %s unreadable, starting empty: %v", path, err)
			s.values = make(map[string]string)
		}
	}
	return s
}

// Get returns the value for key and whether it was present.
func (s *SettingsStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// GetDefault returns the value for key, or def when unset.
func (s *SettingsStore) GetDefault(key, def string) string {
	if v, ok := s.Get(key); ok {
		return v
	}
	return def
}

// GetBool coerces a stored value to bool; unset or unparseable returns def.
func (s *SettingsStore) GetBool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	return v == "true" || v == "1"
}

// Set stores value under key, notifies subscribers, and schedules a flush.
// Setting the current value is a no-op.
func (s *SettingsStore) Set(key, value string) {
	s.mu.Lock()
	if s.values[key] == value {
		s.mu.Unlock()
		return
	}
	s.values[key] = value
	subs := append([]chan SettingChange(nil), s.subs...)
	s.scheduleFlushLocked()
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- SettingChange{Key: key, Value: value}:
		default:
			// Subscriber is not keeping up; drop rather than block Set.
		}
	}
}

// Changes returns a buffered channel receiving every subsequent change.
func (s *SettingsStore) Changes() <-chan SettingChange {
	ch := make(chan SettingChange, 64)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *SettingsStore) scheduleFlushLocked() {
	if s.path == "" {
		return
	}
	if s.flush != nil {
		s.flush.Stop()
	}
	s.flush = time.AfterFunc(settingsFlushDelay, func() {
		if err := s.Flush(); err != nil {
			s.log.Warnf("flushing settings: %v", err)
		}
	})
}

// Flush writes the store to disk immediately. Called on unload and by the
// debounce timer.
func (s *SettingsStore) Flush() error {
	s.mu.Lock()
	path := s.path
	snapshot := make(map[string]string, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	s.mu.Unlock()

	if path == "" {
		return nil
	}
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
