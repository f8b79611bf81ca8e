package session

import (
	"fmt"
	"time"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/domain"
)

// CallState is what a call screen renders.
type CallState struct {
	Status       domain.SessionStatus
	IsConnecting bool
	IsConnected  bool
	IsMuted      bool
	IsVideoOff   bool
	// CallDuration is HH:MM:SS since the call screen loaded.
	CallDuration string
	Quality      domain.ConnectionQuality

	NegotiationRole    domain.NegotiationRole
	SignalingConnected bool

	Remote       *domain.RemoteParticipant
	RemoteStream *core.MediaStream

	// Err is the last failure that moved the call to failed.
	Err string
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total/60%60, total%60)
}
