package coretest

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/google/uuid"
)

var ErrPermissionDenied = errors.New("permission denied")

// Source grants capture per kind. A request for a denied kind fails as a
// whole, like a browser permission prompt would.
type Source struct {
	mu         sync.Mutex
	AllowAudio bool
	AllowVideo bool
	Devices    []core.DeviceInfo
	Calls      []core.Constraints
	Issued     []*Track
}

func (s *Source) GetUserMedia(ctx context.Context, c core.Constraints) (*core.MediaStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, c)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if (c.Audio && !s.AllowAudio) || (c.Video && !s.AllowVideo) {
		return nil, ErrPermissionDenied
	}
	st := core.NewMediaStream(uuid.NewString())
	if c.Video {
		t := NewTrack(core.KindVideo)
		s.Issued = append(s.Issued, t)
		st.AddTrack(t)
	}
	if c.Audio {
		t := NewTrack(core.KindAudio)
		s.Issued = append(s.Issued, t)
		st.AddTrack(t)
	}
	return st, nil
}

func (s *Source) EnumerateDevices(ctx context.Context) ([]core.DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.DeviceInfo(nil), s.Devices...), ctx.Err()
}

// CallsSnapshot returns the constraints seen so far.
func (s *Source) CallsSnapshot() []core.Constraints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Constraints(nil), s.Calls...)
}
