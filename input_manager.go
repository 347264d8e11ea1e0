// input_manager.go - Source registry and typed event bus

package main

import (
	"sort"
	"sync"
)

// InputManager is the process-wide event bus. Named sources are registered
// into it and emit typed events; subscribers attach per kind. Handlers are
// invoked synchronously in registration order on the emitting goroutine.
//
// A handler that panics is recovered and logged; remaining handlers for the
// same emission still run. No error ever crosses a handler boundary.
type InputManager struct {
	mu       sync.RWMutex
	sources  map[string]InputSource
	handlers map[EventKind][]*busHandler
	nextID   uint64

	log interface {
		Warnf(format string, args ...interface{})
	}
}

type busHandler struct {
	id EventKind
	fn func(interface{})

	// seq preserves registration order across off/on churn
	seq uint64
}

// HandlerRef identifies a subscription for later removal.
type HandlerRef struct {
	kind EventKind
	seq  uint64
}

func NewInputManager() *InputManager {
	return &InputManager{
		sources:  make(map[string]InputSource),
		handlers: make(map[EventKind][]*busHandler),
		log:      componentLog("bus"),
	}
}

// RegisterSource attaches a source under id. Re-registering an id replaces
// the previous source after flushing and closing it.
func (m *InputManager) RegisterSource(id string, src InputSource) {
	m.mu.Lock()
	prev := m.sources[id]
	m.sources[id] = src
	m.mu.Unlock()

	if prev != nil && prev != src {
		prev.Flush()
		if err := prev.Close(); err != nil {
			m.log.Warnf("closing replaced source %q: %v", id, err)
		}
	}
	src.Attach(m, id)
}

// UnregisterSource flushes held notes, closes the source, and removes it.
// Unknown ids are a no-op.
func (m *InputManager) UnregisterSource(id string) {
	m.mu.Lock()
	src := m.sources[id]
	delete(m.sources, id)
	m.mu.Unlock()

	if src == nil {
		return
	}
	src.Flush()
	if err := src.Close(); err != nil {
		m.log.Warnf("closing source %q: %v", id, err)
	}
}

// Source returns the source registered under id, or nil.
func (m *InputManager) Source(id string) InputSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sources[id]
}

// SourceIDs returns the registered ids, sorted for stable iteration.
func (m *InputManager) SourceIDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// On subscribes fn to events of the given kind. The wildcard kind EventAny
// receives every emission wrapped in an EventEnvelope.
func (m *InputManager) On(kind EventKind, fn func(interface{})) HandlerRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	h := &busHandler{id: kind, fn: fn, seq: m.nextID}
	m.handlers[kind] = append(m.handlers[kind], h)
	return HandlerRef{kind: kind, seq: h.seq}
}

// Off removes a subscription previously returned by On.
func (m *InputManager) Off(ref HandlerRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hs := m.handlers[ref.kind]
	for i, h := range hs {
		if h.seq == ref.seq {
			m.handlers[ref.kind] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// Emit delivers payload to every subscriber of kind, then to wildcard
// subscribers wrapped in an envelope.
func (m *InputManager) Emit(kind EventKind, payload interface{}) {
	m.mu.RLock()
	direct := m.handlers[kind]
	wild := m.handlers[EventAny]
	m.mu.RUnlock()

	for _, h := range direct {
		m.invoke(kind, h, payload)
	}
	if len(wild) > 0 {
		env := EventEnvelope{Type: kind, Data: payload}
		for _, h := range wild {
			m.invoke(kind, h, env)
		}
	}
}

func (m *InputManager) invoke(kind EventKind, h *busHandler, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warnf("%s handler panicked: %v", kind, r)
		}
	}()
	h.fn(payload)
}

// Close unregisters every source. Used at unload.
func (m *InputManager) Close() {
	for _, id := range m.SourceIDs() {
		m.UnregisterSource(id)
	}
}
