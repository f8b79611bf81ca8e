// Package media owns the local capture stream of a call and the remote stream
// handed to it, and is the only place track enabled flags are flipped.
package media

import (
	"context"
	"sync"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	source core.MediaSource

	mu          sync.Mutex
	local       *core.MediaStream
	remote      *core.MediaStream
	audioDevice string
	videoDevice string
}

func NewManager(source core.MediaSource) *Manager {
	return &Manager{source: source}
}

// UseDevices sets the device ids used by later acquisitions. Empty means default.
func (m *Manager) UseDevices(audioID, videoID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioDevice, m.videoDevice = audioID, videoID
}

func (m *Manager) constraints(audio, video bool) core.Constraints {
	m.mu.Lock()
	defer m.mu.Unlock()
	return core.Constraints{
		Audio:         audio,
		Video:         video,
		AudioDeviceID: m.audioDevice,
		VideoDeviceID: m.videoDevice,
	}
}

// AcquireLocalStream walks video+audio, audio only, video only and finally an
// empty stream. It never fails; a call without devices still connects.
func (m *Manager) AcquireLocalStream(ctx context.Context, preferVideo, preferAudio bool) *core.MediaStream {
	type step struct {
		name         string
		audio, video bool
	}
	var steps []step
	if preferVideo && preferAudio {
		steps = append(steps, step{"audio+video", true, true})
	}
	if preferAudio {
		steps = append(steps, step{"audio", true, false})
	}
	if preferVideo {
		steps = append(steps, step{"video", false, true})
	}

	var stream *core.MediaStream
	for _, s := range steps {
		st, err := m.source.GetUserMedia(ctx, m.constraints(s.audio, s.video))
		if err != nil {
			log.Warn().Err(err).Str("module", "media").Str("step", s.name).Msg("capture failed, falling back")
			continue
		}
		if st == nil {
			continue
		}
		log.Info().Str("module", "media").Str("step", s.name).Int("tracks", st.Len()).Msg("local media acquired")
		stream = st
		break
	}
	if stream == nil {
		log.Warn().Str("module", "media").Msg("joining without local media")
		stream = core.NewMediaStream(uuid.NewString())
	}

	m.mu.Lock()
	prev := m.local
	m.local = stream
	m.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}
	return stream
}

// Local returns the current local stream, or nil before acquisition.
func (m *Manager) Local() *core.MediaStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.local
}

// LocalTracks lists the local tracks that can be sent.
func (m *Manager) LocalTracks() []core.LocalTrack {
	local := m.Local()
	if local == nil {
		return nil
	}
	var out []core.LocalTrack
	for _, t := range local.Tracks() {
		if lt, ok := t.(core.LocalTrack); ok {
			out = append(out, lt)
		}
	}
	return out
}

func (m *Manager) ToggleAudio(ctx context.Context) (core.LocalTrack, bool) {
	return m.toggle(ctx, core.KindAudio)
}

func (m *Manager) ToggleVideo(ctx context.Context) (core.LocalTrack, bool) {
	return m.toggle(ctx, core.KindVideo)
}

// toggle flips the first track of kind. Without one it captures that kind and
// reports added so the caller can attach it to the connection.
func (m *Manager) toggle(ctx context.Context, kind core.TrackKind) (core.LocalTrack, bool) {
	if t := m.first(kind); t != nil {
		t.SetEnabled(!t.Enabled())
		lt, _ := t.(core.LocalTrack)
		return lt, false
	}

	c := m.constraints(kind == core.KindAudio, kind == core.KindVideo)
	st, err := m.source.GetUserMedia(ctx, c)
	if err != nil || st == nil {
		log.Warn().Err(err).Str("module", "media").Str("kind", string(kind)).Msg("on-demand capture failed")
		return nil, false
	}
	var picked core.LocalTrack
	for _, t := range st.Tracks() {
		lt, ok := t.(core.LocalTrack)
		if ok && picked == nil && t.Kind() == kind {
			picked = lt
			continue
		}
		t.Stop()
	}
	if picked == nil {
		log.Warn().Str("module", "media").Str("kind", string(kind)).Msg("capture returned no usable track")
		return nil, false
	}

	m.mu.Lock()
	if m.local == nil {
		m.local = core.NewMediaStream(uuid.NewString())
	}
	m.local.AddTrack(picked)
	m.mu.Unlock()
	log.Info().Str("module", "media").Str("kind", string(kind)).Str("track", picked.ID()).Msg("track added on demand")
	return picked, true
}

// SetEnabled forces the first track of kind on or off and returns it.
func (m *Manager) SetEnabled(kind core.TrackKind, enabled bool) core.LocalTrack {
	t := m.first(kind)
	if t == nil {
		return nil
	}
	t.SetEnabled(enabled)
	lt, _ := t.(core.LocalTrack)
	return lt
}

func (m *Manager) first(kind core.TrackKind) core.Track {
	local := m.Local()
	if local == nil {
		return nil
	}
	return local.First(kind)
}

// IsMuted is true when there is no live enabled audio track.
func (m *Manager) IsMuted() bool { return !m.sending(core.KindAudio) }

// IsVideoOff is true when there is no live enabled video track.
func (m *Manager) IsVideoOff() bool { return !m.sending(core.KindVideo) }

func (m *Manager) sending(kind core.TrackKind) bool {
	t := m.first(kind)
	return t != nil && t.Enabled() && t.ReadyState() == core.ReadyStateLive
}

// SetRemoteStream records the stream rendered for the remote side so Release
// can stop it. A replaced stream is stopped.
func (m *Manager) SetRemoteStream(st *core.MediaStream) {
	m.mu.Lock()
	prev := m.remote
	m.remote = st
	m.mu.Unlock()
	if prev != nil && prev != st {
		prev.Stop()
	}
}

func (m *Manager) Remote() *core.MediaStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote
}

// Release stops every local and remote track. Safe to call repeatedly.
func (m *Manager) Release() {
	m.mu.Lock()
	local, remote := m.local, m.remote
	m.local, m.remote = nil, nil
	m.mu.Unlock()

	if local != nil {
		local.Stop()
	}
	if remote != nil {
		remote.Stop()
	}
	if local != nil || remote != nil {
		log.Info().Str("module", "media").Msg("media released")
	}
}
