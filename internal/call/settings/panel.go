// Package settings holds the in-call device and preference choices.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownDevice  = errors.New("settings: unknown device")
	ErrInvalidQuality = errors.New("settings: invalid video quality")
)

type VideoQuality string

const (
	QualityLow    VideoQuality = "low"
	QualityMedium VideoQuality = "medium"
	QualityHigh   VideoQuality = "high"
	QualityHD     VideoQuality = "hd"
)

func ParseVideoQuality(s string) (VideoQuality, error) {
	switch q := VideoQuality(s); q {
	case QualityLow, QualityMedium, QualityHigh, QualityHD:
		return q, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidQuality, s)
}

// VideoBitrate is the encoder target in bits per second.
func (q VideoQuality) VideoBitrate() int {
	switch q {
	case QualityLow:
		return 150_000
	case QualityMedium:
		return 400_000
	case QualityHD:
		return 2_500_000
	default:
		return 1_000_000
	}
}

// Settings is a value snapshot of the panel.
type Settings struct {
	Microphones []core.DeviceInfo
	Cameras     []core.DeviceInfo

	SelectedMicrophone string
	SelectedCamera     string
	VideoQuality       VideoQuality

	AutoJoinMuted    bool
	AutoJoinVideoOff bool
	Notifications    bool
}

type Panel struct {
	source core.MediaSource

	mu        sync.Mutex
	s         Settings
	nextID    int
	listeners map[int]func(Settings)
}

func NewPanel(source core.MediaSource) *Panel {
	return &Panel{
		source:    source,
		s:         Settings{VideoQuality: QualityHigh, Notifications: true},
		listeners: make(map[int]func(Settings)),
	}
}

func (p *Panel) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Panel) snapshotLocked() Settings {
	s := p.s
	s.Microphones = append([]core.DeviceInfo(nil), p.s.Microphones...)
	s.Cameras = append([]core.DeviceInfo(nil), p.s.Cameras...)
	return s
}

// OnChange subscribes to every accepted change.
func (p *Panel) OnChange(fn func(Settings)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// update applies fn under the lock and notifies listeners when it succeeds.
func (p *Panel) update(fn func(*Settings) error) error {
	p.mu.Lock()
	if err := fn(&p.s); err != nil {
		p.mu.Unlock()
		return err
	}
	snap := p.snapshotLocked()
	fns := make([]func(Settings), 0, len(p.listeners))
	for _, l := range p.listeners {
		fns = append(fns, l)
	}
	p.mu.Unlock()

	for _, l := range fns {
		l(snap)
	}
	return nil
}

// Refresh re-enumerates inputs. A selection whose device vanished falls back
// to the system default.
func (p *Panel) Refresh(ctx context.Context) error {
	devices, err := p.source.EnumerateDevices(ctx)
	if err != nil {
		return fmt.Errorf("settings: enumerate devices: %w", err)
	}
	var mics, cams []core.DeviceInfo
	for _, d := range devices {
		switch d.Kind {
		case core.KindAudio:
			mics = append(mics, d)
		case core.KindVideo:
			cams = append(cams, d)
		}
	}
	log.Info().Str("module", "settings").Int("microphones", len(mics)).Int("cameras", len(cams)).Msg("devices refreshed")

	return p.update(func(s *Settings) error {
		s.Microphones, s.Cameras = mics, cams
		if !contains(mics, s.SelectedMicrophone) {
			s.SelectedMicrophone = ""
		}
		if !contains(cams, s.SelectedCamera) {
			s.SelectedCamera = ""
		}
		return nil
	})
}

func contains(ds []core.DeviceInfo, id string) bool {
	if id == "" {
		return true
	}
	for _, d := range ds {
		if d.DeviceID == id {
			return true
		}
	}
	return false
}

// SelectMicrophone picks an enumerated microphone; "" selects the default.
func (p *Panel) SelectMicrophone(id string) error {
	return p.update(func(s *Settings) error {
		if !contains(s.Microphones, id) {
			return fmt.Errorf("%w: microphone %q", ErrUnknownDevice, id)
		}
		s.SelectedMicrophone = id
		return nil
	})
}

// SelectCamera picks an enumerated camera; "" selects the default.
func (p *Panel) SelectCamera(id string) error {
	return p.update(func(s *Settings) error {
		if !contains(s.Cameras, id) {
			return fmt.Errorf("%w: camera %q", ErrUnknownDevice, id)
		}
		s.SelectedCamera = id
		return nil
	})
}

func (p *Panel) SetVideoQuality(q VideoQuality) error {
	if _, err := ParseVideoQuality(string(q)); err != nil {
		return err
	}
	return p.update(func(s *Settings) error {
		s.VideoQuality = q
		return nil
	})
}

func (p *Panel) SetAutoJoinMuted(v bool) {
	_ = p.update(func(s *Settings) error { s.AutoJoinMuted = v; return nil })
}

func (p *Panel) SetAutoJoinVideoOff(v bool) {
	_ = p.update(func(s *Settings) error { s.AutoJoinVideoOff = v; return nil })
}

func (p *Panel) SetNotifications(v bool) {
	_ = p.update(func(s *Settings) error { s.Notifications = v; return nil })
}
