package core

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

type ReadyState string

const (
	ReadyStateLive  ReadyState = "live"
	ReadyStateEnded ReadyState = "ended"
)

// Track mirrors the small part of a media track the call manipulates.
type Track interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(bool)
	ReadyState() ReadyState
	// Stop releases the track. It must be idempotent.
	Stop()
}

// LocalTrack is a captured track that can be sent over a peer connection.
type LocalTrack interface {
	Track
	TrackLocal() webrtc.TrackLocal
}

// MediaStream is a threadsafe ordered set of tracks.
type MediaStream struct {
	id string

	mu     sync.RWMutex
	tracks []Track
}

func NewMediaStream(id string, tracks ...Track) *MediaStream {
	return &MediaStream{id: id, tracks: tracks}
}

func (s *MediaStream) ID() string { return s.id }

func (s *MediaStream) AddTrack(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.tracks {
		if have.ID() == t.ID() {
			return
		}
	}
	s.tracks = append(s.tracks, t)
}

func (s *MediaStream) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *MediaStream) TracksOf(kind TrackKind) []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// First returns the first track of kind, or nil.
func (s *MediaStream) First(kind TrackKind) Track {
	if ts := s.TracksOf(kind); len(ts) > 0 {
		return ts[0]
	}
	return nil
}

func (s *MediaStream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tracks)
}

// Stop ends every track of the stream.
func (s *MediaStream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
