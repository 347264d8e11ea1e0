// engine.go - Engine assembly, frame loop and state broadcaster

package main

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

const (
	defaultSampleRate = 44100

	// frameInterval paces the analysis/render loop (~60 Hz). The loop
	// pauses while the window is hidden.
	frameInterval = 16 * time.Millisecond

	// broadcastInterval is the state update cadence. It runs on its own
	// timer, never frame-coupled, so the console keeps receiving liveness
	// while the window is hidden.
	broadcastInterval = 100 * time.Millisecond
)

// EngineConfig carries the process options resolved from flags.
type EngineConfig struct {
	SampleRate   int
	Headless     bool
	SettingsPath string

	// ConsoleURL enables the websocket transport when non-empty.
	ConsoleURL string
}

// Engine wires every component together and owns the runtime loops. The
// initialization order is fixed: settings, audio graph (suspended), bus,
// MIDI (best effort), sources, renderers, routing, mode machine, remote
// channel. Devices are never opened and the soft synth is never created
// during initialization or preference restoration.
type Engine struct {
	log *logrus.Entry
	cfg EngineConfig

	settings *SettingsStore
	bus      *InputManager
	audio    *AudioEngine
	tb       *Timebase

	ports       *MIDIPortManager // nil when no MIDI driver is available
	midiControl *MIDIControlSource
	midiSynth   *MIDISynthSource
	midiOut     *ReactiveMIDIOutput
	mic         *MicrophoneSource
	webrtcMIDI  *WebRTCMIDISource
	oscSrc      *OSCSource

	camera    *CameraManager
	renderers map[ProgramMode]Renderer
	routing   *RoutingMatrix
	fsm       *ModeMachine
	sysex     *SysExControl

	remote  *RemoteChannel
	console *LoopbackTransport // far end of the in-process transport
	state   programStateStore

	mu             sync.Mutex
	hidden         bool
	synthAutoFeed  bool
	synthFeedInput bool
	stop           chan struct{}
	loops          sync.WaitGroup
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}

	e := &Engine{
		log: componentLog("engine"),
		cfg: cfg,
	}

	e.settings = NewSettingsStore(cfg.SettingsPath)
	e.bus = NewInputManager()

	audioBackend := AUDIO_BACKEND_OTO
	rendererBackend := RENDERER_BACKEND_EBITEN
	if cfg.Headless {
		audioBackend = AUDIO_BACKEND_NULL
		rendererBackend = RENDERER_BACKEND_HEADLESS
	}

	audio, err := NewAudioEngine(cfg.SampleRate, e.bus, audioBackend)
	if err != nil {
		return nil, err
	}
	e.audio = audio
	e.tb = NewTimebase(e.bus)

	// MIDI is best effort: a host without a MIDI stack still runs, with
	// device selection commands reporting the condition to the operator.
	if ports, err := NewMIDIPortManager(); err != nil {
		e.log.Warnf("midi unavailable: %v", err)
	} else {
		e.ports = ports
	}

	synthResolver := func() *SoftSynth { return e.audio.Synth() }
	sysexHook := func(_ time.Time, ev SysExEvent) { e.sysex.Handle(ev) }

	e.mic = NewMicrophoneSource(e.audio, cfg.SampleRate)
	e.midiControl = NewMIDIControlSource(e.ports, e.tb, sysexHook)
	e.midiSynth = NewMIDISynthSource(e.ports, synthResolver)
	e.midiOut = NewReactiveMIDIOutput(e.ports)
	e.webrtcMIDI = NewWebRTCMIDISource(e.tb, synthResolver, sysexHook)

	e.camera = NewCameraManager()
	renderers, err := NewRendererSet(rendererBackend, RendererDeps{
		Camera:     e.camera,
		Extensions: NewExtensionLoader(),
	})
	if err != nil {
		return nil, err
	}
	e.renderers = renderers

	e.routing = NewRoutingMatrix(e.audio, e.bus, e.mic, e.synthFactory)
	e.fsm = NewModeMachine(renderers, e.routing)
	e.sysex = NewSysExControl(e.fsm)
	e.oscSrc = NewOSCSource(e.fsm)

	e.bus.RegisterSource("microphone", e.mic)
	e.bus.RegisterSource("midi", e.midiControl)
	e.bus.RegisterSource("midi-synth", e.midiSynth)
	e.bus.RegisterSource("webrtc-midi", e.webrtcMIDI)
	e.bus.RegisterSource("osc", e.oscSrc)

	e.routing.Subscribe(e.bus)
	e.midiOut.Subscribe(e.bus)

	// Remote channel: in-process loopback always, websocket when a console
	// URL is configured, and the peer data channel once the console
	// negotiates one.
	local, console := NewLoopbackPair()
	e.console = console
	dc := NewDataChannelTransport()
	e.webrtcMIDI.OnControlChannel(func(ch *webrtc.DataChannel) { dc.Bind(ch) })

	transports := []RemoteTransport{local, dc}
	if cfg.ConsoleURL != "" {
		transports = append(transports, NewWebsocketTransport(cfg.ConsoleURL))
	}
	e.remote = NewRemoteChannel(transports...)
	e.remote.OnCommand(e.handleCommand)
	e.remote.OnMessage(e.handleMessage)

	e.wireHooks()
	e.restorePreferences()
	e.syncRoutingState()
	return e, nil
}

// synthFactory builds the soft synth with the persisted preferences applied.
// Only the routing matrix calls it, and only on a direct user action.
func (e *Engine) synthFactory() *SoftSynth {
	syn := NewSoftSynth(e.cfg.SampleRate)
	syn.SetChannel(atoiDefault(e.settings.GetDefault(SettingMIDISynthChannel, "-1"), -1))
	syn.SetAudible(e.settings.GetBool(SettingMIDISynthAudible, false))
	syn.SetBeatKick(e.settings.GetBool(SettingMIDISynthBeatKick, false), 36)
	return syn
}

func (e *Engine) wireHooks() {
	e.fsm.OnBroadcast(func(mode ProgramMode, presets []string) {
		name := ""
		if mode == ModeMilkdrop {
			name = e.fsm.CurrentPresetName()
		}
		e.state.setMode(string(mode), name)
		if len(presets) > 0 {
			e.remote.Send(MsgPresetList, presets)
		}
		e.sendState()
	})
	e.fsm.OnError(func(msg string) {
		e.remote.Status(StatusError, msg)
	})

	e.routing.OnZeroBands(func() {
		e.state.setBands(BandEnergies{}, 0)
		e.sendState()
	})

	// Load outcomes of every media element surface as feed notifications.
	e.routing.MediaFeed().OnStatus(e.mediaStatus)
	for _, mode := range []ProgramMode{ModeMedia, ModeStream} {
		if mc, ok := e.renderers[mode].(MediaCapable); ok {
			mc.Media().OnStatus(e.mediaStatus)
		}
	}

	e.webrtcMIDI.OnStateChange(func(state string) {
		payload := map[string]string{
			"identity": e.settings.GetDefault(SettingEndpointIdentity, ""),
			"state":    state,
		}
		switch state {
		case "connected":
			e.remote.Send(MsgWebRTCConnected, payload)
		case "disconnected", "failed", "closed":
			e.remote.Send(MsgWebRTCDisconnected, payload)
		}
	})

	e.bus.On(EventControl, func(payload interface{}) {
		if ev, ok := payload.(ControlEvent); ok {
			e.fsm.HandleControl(ev)
		}
	})

	// Band snapshots for the state broadcast come only from the source the
	// routing policy currently accepts.
	e.bus.On(EventFrequency, func(payload interface{}) {
		ev, ok := payload.(FrequencyEvent)
		if !ok || !e.routing.Accepts(ev) {
			return
		}
		e.state.setBands(ev.Bands, ev.RMS)
	})

	// Synth feed taps: auto-frequency notes and/or control-surface notes
	// can drive the soft synth when the toggles are on.
	e.bus.On(EventNote, func(payload interface{}) {
		ev, ok := payload.(NoteEvent)
		if !ok {
			return
		}
		e.mu.Lock()
		auto, feed := e.synthAutoFeed, e.synthFeedInput
		e.mu.Unlock()
		if !(ev.Source == SourceAudioFreq && auto) && !(ev.Source == SourceMIDI && feed) {
			return
		}
		syn := e.audio.Synth()
		if syn == nil {
			return
		}
		if ev.Velocity > 0 {
			syn.NoteOn(ev.Channel, ev.Note, ev.Velocity)
		} else {
			syn.NoteOff(ev.Channel, ev.Note)
		}
	})
}

func (e *Engine) mediaStatus(ok bool, detail string) {
	if ok {
		e.remote.Send(MsgMediaFeedSuccess, detail)
		return
	}
	e.remote.Send(MsgMediaFeedError, detail)
}

// restorePreferences applies the persisted settings that are safe to apply
// without a user gesture: routing selections, analysis tuning, resolution,
// toggles. It never opens a device and never creates the soft synth.
func (e *Engine) restorePreferences() {
	s := e.settings

	if v, ok := s.Get(SettingAudioInputSource); ok {
		if err := e.routing.SetAudioInput(v, false); err != nil {
			e.log.Warnf("restore audio input: %v", err)
		}
	}
	if v, ok := s.Get(SettingReactiveInputSource); ok {
		if err := e.routing.SetReactiveInput(v, false); err != nil {
			e.log.Warnf("restore reactive input: %v", err)
		}
	}
	e.routing.SetAudible(s.GetBool(SettingVideoAudioOutput, false))
	e.routing.SetMonitoring(s.GetBool(SettingAudioBeatReactive, false))

	if v, ok := s.Get(SettingInputGain); ok {
		e.audio.SetTrim(atofDefault(v, 70))
	}
	for band, key := range eqSettingKeys {
		e.audio.EQ().SetKill(band, s.GetBool(key, false))
	}
	if v, ok := s.Get(SettingBeatThreshold); ok {
		e.audio.Beats().SetThreshold(atofDefault(v, defaultBeatThreshold))
	}
	if v, ok := s.Get(SettingBeatMinTime); ok {
		e.audio.Beats().SetMinTime(time.Duration(atoiDefault(v, 400)) * time.Millisecond)
	}
	if v, ok := s.Get(SettingAudioNoteDuration); ok {
		e.audio.Notes().SetNoteDuration(time.Duration(atoiDefault(v, 200)) * time.Millisecond)
	}

	e.midiOut.SetChannel(atoiDefault(s.GetDefault(SettingMIDIOutputChannel, "0"), 0))

	preset := s.GetDefault(SettingProgramResolution, "auto")
	customW := atoiDefault(s.GetDefault(SettingCustomResWidth, "0"), 0)
	customH := atoiDefault(s.GetDefault(SettingCustomResHeight, "0"), 0)
	if res, err := ResolutionForPreset(preset, customW, customH); err == nil {
		e.fsm.SetResolution(res)
		e.state.setResolution(res)
	}

	if scene, ok := s.Get(SettingLastScene); ok {
		if err := e.fsm.SelectScene(atoiDefault(scene, 0)); err != nil {
			e.log.Warnf("restore scene: %v", err)
		}
	}

	e.sysex.SetEnabled(s.GetBool(SettingEnableSysEx, false))
	if s.GetBool(SettingOSCServer, false) {
		if err := e.oscSrc.Start(); err != nil {
			e.log.Warnf("restore osc server: %v", err)
		}
	}

	e.mu.Lock()
	e.synthAutoFeed = s.GetBool(SettingMIDISynthAutoFeed, false)
	e.synthFeedInput = s.GetBool(SettingMIDISynthFeedInput, false)
	e.mu.Unlock()

	e.state.setIdentity(s.GetDefault(SettingEndpointIdentity, ""))
}

// setSynthFeeds updates the note-feed toggles; nil leaves a side untouched.
func (e *Engine) setSynthFeeds(auto, feed *bool) {
	e.mu.Lock()
	if auto != nil {
		e.synthAutoFeed = *auto
	}
	if feed != nil {
		e.synthFeedInput = *feed
	}
	e.mu.Unlock()
}

// syncRoutingState mirrors the routing selections into the state snapshot.
func (e *Engine) syncRoutingState() {
	e.state.setRouting(
		e.routing.AudioInput(),
		e.routing.ReactiveInput(),
		e.routing.Audible(),
		e.audio.Monitoring(),
	)
}

// syncPresetState refreshes the mode/preset pair after preset navigation.
func (e *Engine) syncPresetState() {
	name := ""
	mode := e.fsm.Mode()
	if mode == ModeMilkdrop {
		name = e.fsm.CurrentPresetName()
	}
	e.state.setMode(string(mode), name)
}

func (e *Engine) sendState() {
	e.remote.Send(MsgStateUpdate, e.state.snapshot())
}

// Run starts the remote channel and the two runtime loops. It returns
// immediately; Close tears everything down.
func (e *Engine) Run() {
	e.remote.Start()

	e.mu.Lock()
	if e.stop != nil {
		e.mu.Unlock()
		return
	}
	e.stop = make(chan struct{})
	stop := e.stop
	e.mu.Unlock()

	e.loops.Add(2)
	go e.frameLoop(stop)
	go e.broadcastLoop(stop)
}

// frameLoop drives analysis and timebase interpolation at ~60 Hz. Hidden
// pauses the loop without stopping the ticker.
func (e *Engine) frameLoop(stop chan struct{}) {
	defer e.loops.Done()
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if e.Hidden() {
			continue
		}
		now := time.Now()
		e.routing.Frame(now)
		e.state.setTimebase(e.tb.Snapshot(now))
	}
}

// broadcastLoop sends stateUpdate at 10 Hz regardless of visibility; it is
// the console's liveness signal.
func (e *Engine) broadcastLoop(stop chan struct{}) {
	defer e.loops.Done()
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.sendState()
		}
	}
}

// SetHidden pauses the frame loop and, when hiding, releases the camera so
// the device is never locked behind an invisible window.
func (e *Engine) SetHidden(hidden bool) {
	e.mu.Lock()
	e.hidden = hidden
	e.mu.Unlock()
	if hidden {
		e.camera.ReleaseAll()
	}
}

// Hidden reports the window visibility flag.
func (e *Engine) Hidden() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hidden
}

// StartProgram applies the -program startup parameter ("mode" or
// "mode:value") through the normal mode transition path.
func (e *Engine) StartProgram(param string) error {
	mode, value := param, ""
	if i := strings.IndexByte(param, ':'); i >= 0 {
		mode, value = param[:i], param[i+1:]
	}
	pm := ProgramMode(mode)
	if value != "" {
		switch pm {
		case ModeBuiltin:
			if err := e.fsm.SelectScene(atoiDefault(value, 0)); err != nil {
				e.log.Warnf("startup scene: %v", err)
			}
		case ModeMilkdrop:
			if err := e.fsm.SelectPreset(atoiDefault(value, 0)); err != nil {
				e.log.Warnf("startup preset: %v", err)
			}
		case ModeMedia, ModeStream:
			if mc, ok := e.renderers[pm].(MediaCapable); ok {
				mc.LoadMedia(value)
			}
		case ModeWebpage:
			if uc, ok := e.renderers[pm].(URLCapable); ok {
				if err := uc.LoadURL(value); err != nil {
					e.log.Warnf("startup webpage: %v", err)
				}
			}
		}
	}
	return e.fsm.Switch(pm)
}

// Close runs the ordered unload: loops, transports, renderers, sources,
// devices, output, settings flush. Safe to call once.
func (e *Engine) Close() {
	e.mu.Lock()
	stop := e.stop
	e.stop = nil
	e.mu.Unlock()
	if stop != nil {
		close(stop)
		e.loops.Wait()
	}

	e.remote.Stop()
	e.oscSrc.Stop()
	e.fsm.StopAll()
	e.routing.ReleaseMediaFeed()
	e.bus.Close()
	e.midiOut.Close()
	if e.ports != nil {
		e.ports.Close()
	}
	e.camera.ReleaseAll()
	e.audio.Close()
	if err := e.settings.Flush(); err != nil {
		e.log.Warnf("flushing settings: %v", err)
	}
	e.log.Info("engine closed")
}

// atoiDefault parses an int, falling back to def on any error.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// atofDefault parses a float, falling back to def on any error.
func atofDefault(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
