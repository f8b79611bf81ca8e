package domain

type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusConnecting SessionStatus = "connecting"
	StatusConnected  SessionStatus = "connected"
	StatusFailed     SessionStatus = "failed"
	StatusEnded      SessionStatus = "ended"
)

// ConnectionQuality is a UX hint derived from ICE state, not a measurement.
type ConnectionQuality string

const (
	QualityUnknown   ConnectionQuality = ""
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityPoor      ConnectionQuality = "poor"
)

// NegotiationRole is assigned by the signaling server on join.
// The initiator creates offers, the responder only answers.
type NegotiationRole string

const (
	NegotiationUnknown   NegotiationRole = ""
	NegotiationInitiator NegotiationRole = "initiator"
	NegotiationResponder NegotiationRole = "responder"
)

// RemoteParticipant mirrors what the other party reports about itself
// over signaling. It is not derived from inbound media.
type RemoteParticipant struct {
	UserID     UserID `json:"userId"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	IsAudioOn  bool   `json:"isAudioOn"`
	IsVideoOn  bool   `json:"isVideoOn"`
	ProfileRef string `json:"profileRef,omitempty"`
}
