// Package devices captures local cameras and microphones with pion/mediadevices.
// Drivers register themselves by blank import; with none registered every
// capture fails and callers fall back to an empty stream.
package devices

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNothingRequested = errors.New("neither audio nor video requested")

type Source struct {
	codecs *mediadevices.CodecSelector

	// getUserMedia is mediadevices.GetUserMedia outside of tests.
	getUserMedia func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
	enumerate    func() []mediadevices.MediaDeviceInfo
}

// NewSource builds a capture source. codecs may be nil when tracks are only
// inspected locally; a peer connection needs encoders to bind them.
func NewSource(codecs *mediadevices.CodecSelector) *Source {
	return &Source{
		codecs:       codecs,
		getUserMedia: mediadevices.GetUserMedia,
		enumerate:    mediadevices.EnumerateDevices,
	}
}

func (s *Source) constraints(c core.Constraints) mediadevices.MediaStreamConstraints {
	mc := mediadevices.MediaStreamConstraints{Codec: s.codecs}
	if c.Video {
		mc.Video = func(t *mediadevices.MediaTrackConstraints) {
			if c.VideoDeviceID != "" {
				t.DeviceID = prop.String(c.VideoDeviceID)
			}
		}
	}
	if c.Audio {
		mc.Audio = func(t *mediadevices.MediaTrackConstraints) {
			if c.AudioDeviceID != "" {
				t.DeviceID = prop.String(c.AudioDeviceID)
			}
		}
	}
	return mc
}

// GetUserMedia runs the blocking capture call off the caller's goroutine so
// ctx can abandon it. Tracks that arrive after ctx is done are closed.
func (s *Source) GetUserMedia(ctx context.Context, c core.Constraints) (*core.MediaStream, error) {
	if !c.Audio && !c.Video {
		return nil, ErrNothingRequested
	}

	type result struct {
		stream mediadevices.MediaStream
		err    error
	}
	done := make(chan result, 1)
	go func() {
		st, err := s.getUserMedia(s.constraints(c))
		done <- result{st, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				for _, t := range r.stream.GetTracks() {
					_ = t.Close()
				}
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("get user media: %w", r.err)
		}
		out := core.NewMediaStream(uuid.NewString())
		for _, t := range r.stream.GetTracks() {
			out.AddTrack(newLocalTrack(t))
		}
		log.Info().Str("module", "devices").Int("tracks", out.Len()).Bool("audio", c.Audio).Bool("video", c.Video).Msg("captured")
		return out, nil
	}
}

func (s *Source) EnumerateDevices(ctx context.Context) ([]core.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []core.DeviceInfo
	for _, d := range s.enumerate() {
		var kind core.TrackKind
		switch d.Kind {
		case mediadevices.VideoInput:
			kind = core.KindVideo
		case mediadevices.AudioInput:
			kind = core.KindAudio
		default:
			continue
		}
		out = append(out, core.DeviceInfo{DeviceID: d.DeviceID, Label: d.Label, Kind: kind})
	}
	return out, nil
}

// localTrack wraps a captured track. Enabled is a local flag; the peer
// connection honours it by detaching the sender.
type localTrack struct {
	track   mediadevices.Track
	enabled atomic.Bool
	ended   atomic.Bool
	once    sync.Once
}

func newLocalTrack(t mediadevices.Track) *localTrack {
	lt := &localTrack{track: t}
	lt.enabled.Store(true)
	t.OnEnded(func(err error) {
		if err != nil {
			log.Warn().Err(err).Str("module", "devices").Str("track_id", t.ID()).Msg("track ended")
		}
		lt.ended.Store(true)
	})
	return lt
}

func (t *localTrack) ID() string { return t.track.ID() }

func (t *localTrack) Kind() core.TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeVideo {
		return core.KindVideo
	}
	return core.KindAudio
}

func (t *localTrack) Enabled() bool     { return t.enabled.Load() }
func (t *localTrack) SetEnabled(v bool) { t.enabled.Store(v) }

func (t *localTrack) ReadyState() core.ReadyState {
	if t.ended.Load() {
		return core.ReadyStateEnded
	}
	return core.ReadyStateLive
}

func (t *localTrack) Stop() {
	t.once.Do(func() {
		t.ended.Store(true)
		if err := t.track.Close(); err != nil {
			log.Warn().Err(err).Str("module", "devices").Str("track_id", t.track.ID()).Msg("close track")
		}
	})
}

func (t *localTrack) TrackLocal() webrtc.TrackLocal { return t.track }
