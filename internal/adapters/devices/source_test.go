package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/pion/mediadevices"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserMediaNothingRequested(t *testing.T) {
	s := NewSource(nil)
	_, err := s.GetUserMedia(context.Background(), core.Constraints{})
	require.ErrorIs(t, err, ErrNothingRequested)
}

func TestGetUserMediaError(t *testing.T) {
	s := NewSource(nil)
	s.getUserMedia = func(c mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
		assert.NotNil(t, c.Audio)
		assert.Nil(t, c.Video)
		return nil, errors.New("permission denied")
	}
	_, err := s.GetUserMedia(context.Background(), core.Constraints{Audio: true})
	require.ErrorContains(t, err, "permission denied")
}

func TestGetUserMediaCanceled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := NewSource(nil)
	s.getUserMedia = func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
		<-release
		return nil, errors.New("too late")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.GetUserMedia(ctx, core.Constraints{Video: true})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnumerateDevices(t *testing.T) {
	s := NewSource(nil)
	s.enumerate = func() []mediadevices.MediaDeviceInfo {
		return []mediadevices.MediaDeviceInfo{
			{DeviceID: "cam0", Label: "Front", Kind: mediadevices.VideoInput},
			{DeviceID: "mic0", Label: "Built-in", Kind: mediadevices.AudioInput},
			{DeviceID: "spk0", Label: "Speaker", Kind: mediadevices.AudioOutput},
		}
	}
	got, err := s.EnumerateDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.DeviceInfo{
		{DeviceID: "cam0", Label: "Front", Kind: core.KindVideo},
		{DeviceID: "mic0", Label: "Built-in", Kind: core.KindAudio},
	}, got)
}
