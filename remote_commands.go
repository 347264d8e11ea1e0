// remote_commands.go - Operator command dispatch

package main

import (
	"encoding/json"
	"strconv"
	"time"
)

// commandHandler applies one operator command. Every handler is
// side-effect-only and idempotent under the same arguments.
type commandHandler func(e *Engine, data json.RawMessage)

// commandTable is the closed command vocabulary. Unknown commands are logged
// and dropped; they never fault the channel.
var commandTable = map[string]commandHandler{
	"switchMode":              cmdSwitchMode,
	"blackScreen":             cmdBlackScreen,
	"switchScene":             cmdSwitchScene,
	"audioDeviceSelect":       cmdAudioDeviceSelect,
	"audioSampleRate":         cmdAudioSampleRate,
	"audioInputSource":        cmdAudioInputSource,
	"reactiveInputSource":     cmdReactiveInputSource,
	"audible":                 cmdAudible,
	"monitorEnable":           cmdMonitorEnable,
	"midiSynthEnable":         cmdMIDISynthEnable,
	"midiSynthChannel":        cmdMIDISynthChannel,
	"midiSynthAudible":        cmdMIDISynthAudible,
	"midiSynthAutoFeed":       cmdMIDISynthAutoFeed,
	"midiSynthFeedInput":      cmdMIDISynthFeedInput,
	"midiSynthBeatKick":       cmdMIDISynthBeatKick,
	"midiInputSelect":         cmdMIDIInputSelect,
	"midiSynthInputSelect":    cmdMIDISynthInputSelect,
	"midiOutputSelect":        cmdMIDIOutputSelect,
	"midiOutputChannel":       cmdMIDIOutputChannel,
	"reactiveOutputFrequency": cmdReactiveOutputFrequency,
	"reactiveOutputBeatKick":  cmdReactiveOutputBeatKick,
	"rendererSelect":          cmdRendererSelect,
	"programResolution":       cmdProgramResolution,
	"streamLoad":              cmdStreamLoad,
	"mediaLoad":               cmdMediaLoad,
	"mediaFeedLoad":           cmdMediaFeedLoad,
	"mediaFeedRelease":        cmdMediaFeedRelease,
	"webpageLoad":             cmdWebpageLoad,
	"milkdropSelect":          cmdMilkdropSelect,
	"milkdropNext":            cmdMilkdropNext,
	"milkdropPrev":            cmdMilkdropPrev,
	"eqGain":                  cmdEQGain,
	"inputGain":               cmdInputGain,
	"beatThreshold":           cmdBeatThreshold,
	"beatMinTime":             cmdBeatMinTime,
	"audioNoteDuration":       cmdAudioNoteDuration,
	"oscServer":               cmdOSCServer,
	"sysexEnable":             cmdSysExEnable,
	"webrtcMidiRole":          cmdWebRTCMidiRole,
	"requestState":            cmdRequestState,
	"requestStreamStats":      cmdRequestStreamStats,
}

// Command payload shapes. All keys are camelCase on the wire.
type (
	modeArg struct {
		Mode string `json:"mode"`
	}
	sceneArg struct {
		Scene int `json:"scene"`
	}
	deviceArg struct {
		Device string `json:"device"`
	}
	sourceArg struct {
		Source string `json:"source"`
	}
	enabledArg struct {
		Enabled bool `json:"enabled"`
	}
	valueArg struct {
		Value float64 `json:"value"`
	}
	urlArg struct {
		URL string `json:"url"`
	}
	channelArg struct {
		Channel int `json:"channel"`
	}
	indexArg struct {
		Index int `json:"index"`
	}
	roleArg struct {
		Role string `json:"role"`
	}
	rateArg struct {
		Rate int `json:"rate"`
	}
	eqArg struct {
		Band int  `json:"band"`
		Kill bool `json:"kill"`
	}
	beatKickArg struct {
		Enabled bool `json:"enabled"`
		Note    int  `json:"note"`
	}
	resolutionArg struct {
		Preset string `json:"preset"`
		Width  int    `json:"w"`
		Height int    `json:"h"`
	}
	oscArg struct {
		Enabled bool `json:"enabled"`
		Port    int  `json:"port"`
	}
	offerArg struct {
		Offer json.RawMessage `json:"offer"`
	}
)

// decodeArgs unmarshals a command payload; a missing payload leaves the
// zero value in place and still dispatches (several commands take none).
func decodeArgs(data json.RawMessage, v interface{}) bool {
	if len(data) == 0 {
		return true
	}
	return json.Unmarshal(data, v) == nil
}

// handleCommand dispatches a console {command, data} envelope.
func (e *Engine) handleCommand(cmd string, data json.RawMessage) {
	handler, ok := commandTable[cmd]
	if !ok {
		e.log.WithField("command", cmd).Debug("unknown command dropped")
		return
	}
	handler(e, data)
}

// handleMessage dispatches console-originated {type, data} envelopes; today
// that is only the peer negotiation for the data-channel transport.
func (e *Engine) handleMessage(typ string, data json.RawMessage) {
	switch typ {
	case "webrtcMidiConnect":
		var a offerArg
		if !decodeArgs(data, &a) || len(a.Offer) == 0 {
			e.remote.Status(StatusError, "malformed webrtc offer")
			return
		}
		answer, err := e.webrtcMIDI.AcceptOffer(a.Offer)
		if err != nil {
			e.remote.Status(StatusError, err.Error())
			return
		}
		e.remote.Send(MsgWebRTCMidiAnswer, json.RawMessage(answer))
	case "webrtcMidiDisconnect":
		e.webrtcMIDI.Close()
	}
}

func cmdSwitchMode(e *Engine, data json.RawMessage) {
	var a modeArg
	if !decodeArgs(data, &a) {
		return
	}
	if err := e.fsm.Switch(ProgramMode(a.Mode)); err != nil {
		e.log.Warnf("switchMode %s: %v", a.Mode, err)
	}
}

func cmdBlackScreen(e *Engine, data json.RawMessage) {
	if err := e.fsm.Switch(ModeBlack); err != nil {
		e.log.Warnf("blackScreen: %v", err)
	}
}

func cmdSwitchScene(e *Engine, data json.RawMessage) {
	var a sceneArg
	if !decodeArgs(data, &a) {
		return
	}
	if err := e.fsm.SelectScene(a.Scene); err != nil {
		e.remote.Status(StatusError, err.Error())
		return
	}
	e.state.setScene(a.Scene)
	e.settings.Set(SettingLastScene, strconv.Itoa(a.Scene))
}

func cmdAudioDeviceSelect(e *Engine, data json.RawMessage) {
	var a deviceArg
	if !decodeArgs(data, &a) {
		return
	}
	if err := e.mic.Start(a.Device); err != nil {
		e.remote.Status(StatusError, err.Error())
		return
	}
	e.settings.Set(SettingAudioInputDeviceID, a.Device)
	// Device selection is a user gesture: the output path may resume and,
	// when the microphone is the routed input, the graph binds to it.
	if err := e.audio.Resume(); err != nil {
		e.log.Warnf("audio resume: %v", err)
	}
	if e.routing.ReactiveInput() == ReactiveAudio &&
		e.routing.AudioInput() == AudioInputMicrophone &&
		e.audio.BoundInput() != e.mic.ID() {
		e.audio.Bind(e.mic.ID(), SourceAudio)
	}
}

func cmdAudioSampleRate(e *Engine, data json.RawMessage) {
	var a rateArg
	if !decodeArgs(data, &a) || a.Rate <= 0 {
		return
	}
	e.settings.Set(SettingAudioSampleRate, strconv.Itoa(a.Rate))
	e.remote.Status(StatusInfo, "sample rate change takes effect on restart")
}

func cmdAudioInputSource(e *Engine, data json.RawMessage) {
	var a sourceArg
	if !decodeArgs(data, &a) {
		return
	}
	if err := e.routing.SetAudioInput(a.Source, true); err != nil {
		e.remote.Status(StatusError, err.Error())
		return
	}
	e.settings.Set(SettingAudioInputSource, a.Source)
	e.syncRoutingState()
}

func cmdReactiveInputSource(e *Engine, data json.RawMessage) {
	var a sourceArg
	if !decodeArgs(data, &a) {
		return
	}
	if err := e.routing.SetReactiveInput(a.Source, true); err != nil {
		e.remote.Status(StatusError, err.Error())
		return
	}
	e.settings.Set(SettingReactiveInputSource, a.Source)
	e.syncRoutingState()
}

func cmdAudible(e *Engine, data json.RawMessage) {
	var a enabledArg
	if !decodeArgs(data, &a) {
		return
	}
	e.routing.SetAudible(a.Enabled)
	e.settings.Set(SettingVideoAudioOutput, strconv.FormatBool(a.Enabled))
	if a.Enabled {
		if err := e.audio.Resume(); err != nil {
			e.log.Warnf("audio resume: %v", err)
		}
	}
	e.syncRoutingState()
}

func cmdMonitorEnable(e *Engine, data json.RawMessage) {
	var a enabledArg
	if !decodeArgs(data, &a) {
		return
	}
	e.routing.SetMonitoring(a.Enabled)
	e.settings.Set(SettingAudioBeatReactive, strconv.FormatBool(a.Enabled))
	e.syncRoutingState()
}

func cmdMIDISynthEnable(e *Engine, data json.RawMessage) {
	var a enabledArg
	if !decodeArgs(data, &a) {
		return
	}
	e.settings.Set(SettingMIDISynthEnable, strconv.FormatBool(a.Enabled))
	if a.Enabled {
		e.routing.EnsureSynth(true)
		if err := e.audio.Resume(); err != nil {
			e.log.Warnf("audio resume: %v", err)
		}
		return
	}
	if syn := e.audio.Synth(); syn != nil {
		syn.FlushNotes()
	}
}

func cmdMIDISynthChannel(e *Engine, data json.RawMessage) {
	var a channelArg
	if !decodeArgs(data, &a) {
		return
	}
	e.settings.Set(SettingMIDISynthChannel, strconv.Itoa(a.Channel))
	if syn := e.audio.Synth(); syn != nil {
		syn.SetChannel(a.Channel)
	}
}

func cmdMIDISynthAudible(e *Engine, data json.RawMessage) {
	var a enabledArg
	if !decodeArgs(data, &a) {
		return
	}
	e.settings.Set(SettingMIDISynthAudible, strconv.FormatBool(a.Enabled))
	if syn := e.audio.Synth(); syn != nil {
		syn.SetAudible(a.Enabled)
		if a.Enabled {
			if err := e.audio.Resume(); err != nil {
				e.log.Warnf("audio resume: %v", err)
			}
		}
	}
}

func cmdMIDISynthAutoFeed(e *Engine, data json.RawMessage) {
	var a enabledArg
	if !decodeArgs(data, &a) {
		return
	}
	e.settings.Set(SettingMIDISynthAutoFeed, strconv.FormatBool(a.Enabled))
	e.setSynthFeeds(&a.Enabled, nil)
}

func cmdMIDISynthFeedInput(e *Engine, data json.RawMessage) {
	var a enabledArg
	if !decodeArgs(data, &a) {
		return
	}
	e.settings.Set(SettingMIDISynthFeedInput, strconv.FormatBool(a.Enabled))
	e.setSynthFeeds(nil, &a.Enabled)
}

func cmdMIDISynthBeatKick(e *Engine, data json.RawMessage) {
	var a beatKickArg
	if !decodeArgs(data, &a) {
		return
	}
	e.settings.Set(SettingMIDISynthBeatKick, strconv.FormatBool(a.Enabled))
	if syn := e.audio.Synth(); syn != nil {
		syn.SetBeatKick(a.Enabled, a.Note)
	}
}

func cmdMIDIInputSelect(e *Engine, data json.RawMessage) {
	var a deviceArg
	if !decodeArgs(data, &a) {
		return
	}
	if a.Device == "" {
		e.midiControl.Disconnect()
		e.settings.Set(SettingMIDIInputID, "")
		return
	}
	if e.ports == nil {
		e.remote.Status(StatusError, "MIDI unavailable on this host")
		return
	}
	if err := e.midiControl.Connect(a.Device); err != nil {
		e.remote.Status(StatusError, err.Error())
		return
	}
	e.settings.Set(SettingMIDIInputID, a.Device)
}

func cmdMIDISynthInputSelect(e *Engine, data json.RawMessage) {
	var a deviceArg
	if !decodeArgs(data, &a) {
		return
	}
	if a.Device == "" {
		e.midiSynth.Disconnect()
		e.settings.Set(SettingMIDISynthInputID, "")
		return
	}
	if e.ports == nil {
		e.remote.Status(StatusError, "MIDI unavailable on this host")
		return
	}
	if err := e.midiSynth.Connect(a.Device); err != nil {
		e.remote.Status(StatusError, err.Error())
		return
	}
	e.settings.Set(SettingMIDISynthInputID, a.Device)
}

func cmdMIDIOutputSelect(e *Engine, data json.RawMessage) {
	var a deviceArg
	if !decodeArgs(data, &a) {
		return
	}
	if a.Device == "" {
		e.midiOut.Disconnect()
		e.settings.Set(SettingMIDIOutputID, "")
		return
	}
	if e.ports == nil {
		e.remote.Status(StatusError, "MIDI unavailable on this host")
		return
	}
	if err := e.midiOut.Connect(a.Device); err != nil {
		e.remote.Status(StatusError, err.Error())
		return
	}
	e.settings.Set(SettingMIDIOutputID, a.Device)
}

func cmdMIDIOutputChannel(e *Engine, data json.RawMessage) {
	var a channelArg
	if !decodeArgs(data, &a) {
		return
	}
	e.midiOut.SetChannel(a.Channel)
	e.settings.Set(SettingMIDIOutputChannel, strconv.Itoa(a.Channel))
}

func cmdReactiveOutputFrequency(e *Engine, data json.RawMessage) {
	var a enabledArg
	if !decodeArgs(data, &a) {
		return
	}
	e.midiOut.SetEnabled(a.Enabled)
}

func cmdReactiveOutputBeatKick(e *Engine, data json.RawMessage) {
	var a beatKickArg
	if !decodeArgs(data, &a) {
		return
	}
	e.midiOut.SetBeatKick(a.Enabled, a.Note)
}

func cmdRendererSelect(e *Engine, data json.RawMessage) {
	var a struct {
		Renderer string `json:"renderer"`
	}
	if !decodeArgs(data, &a) || a.Renderer == "" {
		return
	}
	e.settings.Set(SettingRenderer, a.Renderer)
	e.remote.Status(StatusInfo, "renderer change takes effect on restart")
}

func cmdProgramResolution(e *Engine, data json.RawMessage) {
	var a resolutionArg
	if !decodeArgs(data, &a) {
		return
	}
	res, err := ResolutionForPreset(a.Preset, a.Width, a.Height)
	if err != nil {
		e.remote.Status(StatusError, err.Error())
		return
	}
	e.fsm.SetResolution(res)
	e.state.setResolution(res)
	e.settings.Set(SettingProgramResolution, a.Preset)
	if a.Preset == "custom" {
		e.settings.Set(SettingCustomResWidth, strconv.Itoa(a.Width))
		e.settings.Set(SettingCustomResHeight, strconv.Itoa(a.Height))
	}
}

func cmdStreamLoad(e *Engine, data json.RawMessage) {
	var a urlArg
	if !decodeArgs(data, &a) || a.URL == "" {
		return
	}
	if mc, ok := e.renderers[ModeStream].(MediaCapable); ok {
		mc.LoadMedia(a.URL)
	}
}

func cmdMediaLoad(e *Engine, data json.RawMessage) {
	var a urlArg
	if !decodeArgs(data, &a) || a.URL == "" {
		return
	}
	if mc, ok := e.renderers[ModeMedia].(MediaCapable); ok {
		mc.LoadMedia(a.URL)
	}
}

func cmdMediaFeedLoad(e *Engine, data json.RawMessage) {
	var a urlArg
	if !decodeArgs(data, &a) || a.URL == "" {
		return
	}
	e.routing.MediaFeed().Load(a.URL)
}

func cmdMediaFeedRelease(e *Engine, data json.RawMessage) {
	e.routing.ReleaseMediaFeed()
}

func cmdWebpageLoad(e *Engine, data json.RawMessage) {
	var a urlArg
	if !decodeArgs(data, &a) || a.URL == "" {
		return
	}
	uc, ok := e.renderers[ModeWebpage].(URLCapable)
	if !ok {
		return
	}
	if err := uc.LoadURL(a.URL); err != nil {
		e.remote.Status(StatusError, err.Error())
	}
}

func cmdMilkdropSelect(e *Engine, data json.RawMessage) {
	var a indexArg
	if !decodeArgs(data, &a) {
		return
	}
	if err := e.fsm.SelectPreset(a.Index); err != nil {
		e.remote.Status(StatusError, err.Error())
		return
	}
	e.syncPresetState()
}

func cmdMilkdropNext(e *Engine, data json.RawMessage) {
	e.fsm.NextPreset()
	e.syncPresetState()
}

func cmdMilkdropPrev(e *Engine, data json.RawMessage) {
	e.fsm.PrevPreset()
	e.syncPresetState()
}

// eqSettingKeys maps kill-EQ band index to its persisted key.
var eqSettingKeys = [3]string{SettingEQLow, SettingEQMid, SettingEQHigh}

func cmdEQGain(e *Engine, data json.RawMessage) {
	var a eqArg
	if !decodeArgs(data, &a) {
		return
	}
	if a.Band < 0 || a.Band >= len(eqSettingKeys) {
		return
	}
	e.audio.EQ().SetKill(a.Band, a.Kill)
	e.settings.Set(eqSettingKeys[a.Band], strconv.FormatBool(a.Kill))
}

func cmdInputGain(e *Engine, data json.RawMessage) {
	var a valueArg
	if !decodeArgs(data, &a) {
		return
	}
	e.audio.SetTrim(a.Value)
	e.settings.Set(SettingInputGain, strconv.FormatFloat(a.Value, 'f', -1, 64))
}

func cmdBeatThreshold(e *Engine, data json.RawMessage) {
	var a valueArg
	if !decodeArgs(data, &a) {
		return
	}
	e.audio.Beats().SetThreshold(a.Value)
	e.settings.Set(SettingBeatThreshold, strconv.FormatFloat(a.Value, 'f', -1, 64))
}

func cmdBeatMinTime(e *Engine, data json.RawMessage) {
	var a valueArg
	if !decodeArgs(data, &a) || a.Value < 0 {
		return
	}
	e.audio.Beats().SetMinTime(time.Duration(a.Value) * time.Millisecond)
	e.settings.Set(SettingBeatMinTime, strconv.FormatFloat(a.Value, 'f', -1, 64))
}

func cmdAudioNoteDuration(e *Engine, data json.RawMessage) {
	var a valueArg
	if !decodeArgs(data, &a) || a.Value < 0 {
		return
	}
	e.audio.Notes().SetNoteDuration(time.Duration(a.Value) * time.Millisecond)
	e.settings.Set(SettingAudioNoteDuration, strconv.FormatFloat(a.Value, 'f', -1, 64))
}

func cmdOSCServer(e *Engine, data json.RawMessage) {
	var a oscArg
	if !decodeArgs(data, &a) {
		return
	}
	if a.Port > 0 {
		e.oscSrc.SetPort(a.Port)
	}
	if a.Enabled {
		if err := e.oscSrc.Start(); err != nil {
			e.remote.Status(StatusError, err.Error())
			return
		}
	} else {
		e.oscSrc.Stop()
	}
	e.settings.Set(SettingOSCServer, strconv.FormatBool(a.Enabled))
}

func cmdSysExEnable(e *Engine, data json.RawMessage) {
	var a enabledArg
	if !decodeArgs(data, &a) {
		return
	}
	e.sysex.SetEnabled(a.Enabled)
	e.settings.Set(SettingEnableSysEx, strconv.FormatBool(a.Enabled))
}

func cmdWebRTCMidiRole(e *Engine, data json.RawMessage) {
	var a roleArg
	if !decodeArgs(data, &a) || a.Role == "" {
		return
	}
	e.webrtcMIDI.SetRole(a.Role)
	e.remote.Send(MsgWebRTCMidiRoles, []string{e.webrtcMIDI.Role()})
}

func cmdRequestState(e *Engine, data json.RawMessage) {
	e.sendState()
}

func cmdRequestStreamStats(e *Engine, data json.RawMessage) {
	if mc, ok := e.renderers[ModeStream].(MediaCapable); ok {
		e.remote.Send(MsgStreamStats, mc.Media().Stats())
	}
}
