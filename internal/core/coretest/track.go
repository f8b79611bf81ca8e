// Package coretest provides in-memory fakes of the core interfaces for tests.
package coretest

import (
	"sync"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Track is a fake local or remote track.
type Track struct {
	id   string
	kind core.TrackKind

	mu      sync.Mutex
	enabled bool
	ended   bool
}

func NewTrack(kind core.TrackKind) *Track {
	return &Track{id: string(kind) + "-" + uuid.NewString(), kind: kind, enabled: true}
}

func (t *Track) ID() string           { return t.id }
func (t *Track) Kind() core.TrackKind { return t.kind }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = v
}

func (t *Track) ReadyState() core.ReadyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return core.ReadyStateEnded
	}
	return core.ReadyStateLive
}

func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ended = true
}

func (t *Track) TrackLocal() webrtc.TrackLocal { return nil }
