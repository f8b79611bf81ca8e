package coretest

import (
	"errors"
	"sync"

	"github.com/dkeye/LiveClass/internal/core"
)

var ErrOffline = errors.New("offline")

// Channel records emitted messages and delivers inbound ones synchronously.
type Channel struct {
	mu       sync.Mutex
	emitted  []core.Message
	handlers map[core.Event][]func(core.Message)
	Offline  bool
	// OnEmit, when set, observes every successful emission.
	OnEmit   func(core.Message)
}

func NewChannel() *Channel {
	return &Channel{handlers: make(map[core.Event][]func(core.Message))}
}

func (c *Channel) Emit(msg core.Message) error {
	c.mu.Lock()
	if c.Offline {
		c.mu.Unlock()
		return ErrOffline
	}
	c.emitted = append(c.emitted, msg)
	hook := c.OnEmit
	c.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	return nil
}

func (c *Channel) On(event core.Event, h func(core.Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
	idx := len(c.handlers[event]) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.handlers[event][idx] = nil
	}
}

// Deliver hands msg to every handler registered for its type.
func (c *Channel) Deliver(msg core.Message) {
	c.mu.Lock()
	hs := append([]func(core.Message){}, c.handlers[msg.Type]...)
	c.mu.Unlock()
	for _, h := range hs {
		if h != nil {
			h(msg)
		}
	}
}

func (c *Channel) Emitted() []core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Message(nil), c.emitted...)
}

// EmittedOf filters emitted messages by type.
func (c *Channel) EmittedOf(t core.Event) []core.Message {
	var out []core.Message
	for _, m := range c.Emitted() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// Signals returns the emitted signal payloads, optionally filtered by SDP type.
func (c *Channel) Signals(sdpType string) []*core.Signal {
	var out []*core.Signal
	for _, m := range c.EmittedOf(core.EventSignal) {
		if sdpType == "" || m.Signal.Type == sdpType {
			out = append(out, m.Signal)
		}
	}
	return out
}
