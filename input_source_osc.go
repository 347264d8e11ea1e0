// input_source_osc.go - OSC preset control server

package main

import (
	"fmt"
	"sync"

	"github.com/hypebeast/go-osc/osc"
	"github.com/sirupsen/logrus"
)

const defaultOSCPort = 8765

// OSCCommands is what the OSC surface can drive: mode switches and milkdrop
// preset navigation. The mode machine implements it.
type OSCCommands interface {
	SwitchMode(mode string)
	SelectPreset(index int) error
	NextPreset()
	PrevPreset()
}

// OSCSource runs a UDP OSC server exposing the preset vocabulary:
//
//	/preset/mode s <mode>
//	/preset/milkdrop/select i <index>
//	/preset/milkdrop/next
//	/preset/milkdrop/prev
//
// The server is off by default and toggled by the oscServer command.
type OSCSource struct {
	mu     sync.Mutex
	log    *logrus.Entry
	id     string
	bus    *InputManager
	sink   OSCCommands
	port   int
	server *osc.Server
}

func NewOSCSource(sink OSCCommands) *OSCSource {
	return &OSCSource{
		log:  componentLog("osc"),
		sink: sink,
		port: defaultOSCPort,
	}
}

func (s *OSCSource) ID() string       { return s.id }
func (s *OSCSource) Kind() SourceKind { return SourceKindOSC }

func (s *OSCSource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

func (s *OSCSource) Attach(bus *InputManager, id string) {
	s.mu.Lock()
	s.bus = bus
	s.id = id
	s.mu.Unlock()
}

// SetPort changes the listen port; takes effect on the next Start.
func (s *OSCSource) SetPort(port int) {
	s.mu.Lock()
	if port > 0 && port < 65536 {
		s.port = port
	}
	s.mu.Unlock()
}

// Start brings the server up. Restarting on a new port requires Stop first;
// a second Start while running is a no-op.
func (s *OSCSource) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return nil
	}
	port := s.port

	d := osc.NewStandardDispatcher()
	d.AddMsgHandler("/preset/mode", func(msg *osc.Message) {
		if len(msg.Arguments) == 0 {
			return
		}
		if mode, ok := msg.Arguments[0].(string); ok {
			s.log.WithField("mode", mode).Info("osc mode switch")
			s.sink.SwitchMode(mode)
		}
	})
	d.AddMsgHandler("/preset/milkdrop/select", func(msg *osc.Message) {
		if len(msg.Arguments) == 0 {
			return
		}
		if idx, ok := msg.Arguments[0].(int32); ok {
			if err := s.sink.SelectPreset(int(idx)); err != nil {
				s.log.Warnf("osc preset select: %v", err)
			}
		}
	})
	d.AddMsgHandler("/preset/milkdrop/next", func(*osc.Message) { s.sink.NextPreset() })
	d.AddMsgHandler("/preset/milkdrop/prev", func(*osc.Message) { s.sink.PrevPreset() })

	server := &osc.Server{
		Addr:       fmt.Sprintf("0.0.0.0:%d", port),
		Dispatcher: d,
	}
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.ListenAndServe(); err != nil {
			s.log.Warnf("osc server: %v", err)
			s.mu.Lock()
			if s.server == server {
				s.server = nil
			}
			s.mu.Unlock()
		}
	}()
	s.log.WithField("port", port).Info("osc server listening")
	return nil
}

// Stop shuts the server down.
func (s *OSCSource) Stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()
	if server != nil {
		server.CloseConnection()
	}
}

// Flush is a no-op; OSC carries no note state.
func (s *OSCSource) Flush() {}

func (s *OSCSource) Close() error {
	s.Stop()
	return nil
}
