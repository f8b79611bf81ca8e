package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// PeerConnection is the slice of a WebRTC peer connection the call needs.
// Implementations trickle candidates and never block on ICE gathering.
type PeerConnection interface {
	// AddTrack attaches a local track and returns once the sender exists.
	AddTrack(LocalTrack) error
	// SetTrackEnabled gates the sender of a previously added local track.
	SetTrackEnabled(trackID string, enabled bool) error
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and sets it as the local description.
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	HasRemoteDescription() bool
	SignalingStable() bool
	AddICECandidate(webrtc.ICECandidateInit) error

	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack is invoked for each inbound track with the id of its stream.
	OnTrack(func(track Track, streamID string))
	OnICEConnectionStateChange(func(webrtc.ICEConnectionState))

	// Close should stop all underlying media resources.
	Close() error
}

// PeerFactory builds a fresh peer connection for one negotiation.
type PeerFactory func() (PeerConnection, error)
