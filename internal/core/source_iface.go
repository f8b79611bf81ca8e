package core

import (
	"context"

	"github.com/dkeye/LiveClass/internal/domain"
)

// Constraints selects what a MediaSource should capture.
// Empty device ids mean "any device of that kind".
type Constraints struct {
	Audio         bool
	Video         bool
	AudioDeviceID string
	VideoDeviceID string
}

type DeviceInfo struct {
	DeviceID string
	Label    string
	Kind     TrackKind
}

// MediaSource captures local devices. GetUserMedia may block on the
// platform for as long as ctx allows.
type MediaSource interface {
	GetUserMedia(ctx context.Context, c Constraints) (*MediaStream, error)
	EnumerateDevices(ctx context.Context) ([]DeviceInfo, error)
}

// BookingDirectory resolves booking metadata.
type BookingDirectory interface {
	Booking(ctx context.Context, id domain.BookingID) (*domain.Booking, error)
}

// Identity is the authenticated local user.
type Identity interface {
	CurrentUser(ctx context.Context) (*domain.User, error)
}
