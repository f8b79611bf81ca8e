package core

import (
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/pion/webrtc/v4"
)

// SessionID is the booking id a live call is scoped to.
type SessionID string

type Event string

const (
	EventJoinClass   Event = "join-class"
	EventJoined      Event = "joined"
	EventLeaveClass  Event = "leave-class"
	EventPeerLeft    Event = "peer-left"
	EventSignal      Event = "signal"
	EventMute        Event = "mute"
	EventUnmute      Event = "unmute"
	EventMuteVideo   Event = "mute-video"
	EventUnmuteVideo Event = "unmute-video"
	EventPing        Event = "ping"
	EventPong        Event = "pong"
	EventError       Event = "error"
)

// IsControl reports whether e is one of the mute/video presentation events.
func (e Event) IsControl() bool {
	switch e {
	case EventMute, EventUnmute, EventMuteVideo, EventUnmuteVideo:
		return true
	}
	return false
}

// Message is the single structured envelope exchanged on the signaling channel.
// Routing is done on SessionID, never on the event name.
type Message struct {
	Type            Event                  `json:"type"`
	SessionID       SessionID              `json:"sessionId,omitempty"`
	UserID          domain.UserID          `json:"userId,omitempty"`
	Role            domain.Role            `json:"role,omitempty"`
	Name            string                 `json:"name,omitempty"`
	Signal          *Signal                `json:"signal,omitempty"`
	NegotiationRole domain.NegotiationRole `json:"negotiationRole,omitempty"`
	Peers           []MemberDTO            `json:"peers,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

// Signal is either an SDP description ({type, sdp}) or an ICE candidate.
type Signal struct {
	Type      string                   `json:"type,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func DescriptionSignal(d webrtc.SessionDescription) *Signal {
	return &Signal{Type: d.Type.String(), SDP: d.SDP}
}

func CandidateSignal(c webrtc.ICECandidateInit) *Signal {
	return &Signal{Candidate: &c}
}

// Description returns the SDP carried by s, if any.
func (s *Signal) Description() (webrtc.SessionDescription, bool) {
	if s == nil || s.SDP == "" {
		return webrtc.SessionDescription{}, false
	}
	t := webrtc.NewSDPType(s.Type)
	if t != webrtc.SDPTypeOffer && t != webrtc.SDPTypeAnswer {
		return webrtc.SessionDescription{}, false
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, true
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID              domain.UserID          `json:"id"`
	Username        string                 `json:"username"`
	Role            domain.Role            `json:"role,omitempty"`
	NegotiationRole domain.NegotiationRole `json:"negotiationRole,omitempty"`
}
