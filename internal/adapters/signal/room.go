package signal

import (
	"context"
	"errors"

	"github.com/dkeye/LiveClass/internal/app/orch"
	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	cid core.ConnID,
	scope core.SessionID,
	conn *WsSignalConn,
	msg core.Message,
) {
	sid := msg.SessionID
	if sid == "" {
		sid = scope
	}
	if sid != scope {
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Str("session", string(sid)).Str("scope", string(scope)).Msg("join outside connection scope")
		ctl.sendError(conn, sid, "session_mismatch")
		return
	}

	room, role, err := ctl.Orch.Join(ctx, cid, sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("cid", string(cid)).Str("session", string(sid)).Msg("join")
		ctl.sendError(conn, sid, joinErrorReason(err))
		return
	}
	user, _ := ctl.Orch.Registry.User(cid)

	peers := make([]core.MemberDTO, 0, 1)
	for _, m := range room.MembersSnapshot() {
		if m.ID != user.ID {
			peers = append(peers, m)
		}
	}
	ctl.sendJSON(conn, core.Message{
		Type:            core.EventJoined,
		SessionID:       sid,
		UserID:          user.ID,
		Role:            user.Role,
		NegotiationRole: role,
		Peers:           peers,
	})

	// The member already present learns about the newcomer through the
	// same join-class event and, as initiator, opens the negotiation.
	ctl.relayJSON(cid, core.Message{
		Type:      core.EventJoinClass,
		SessionID: sid,
		UserID:    user.ID,
		Role:      user.Role,
		Name:      user.Username,
	})
}

// handleLeave leaves the current session; the socket stays open.
func (ctl *SignalWSController) handleLeave(cid core.ConnID) {
	log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("leave")
	user, ok := ctl.Orch.Registry.User(cid)
	sid, removed := ctl.Orch.Leave(cid)
	if ok && removed {
		ctl.notifyPeerLeft(sid, user)
	}
}

func (ctl *SignalWSController) notifyPeerLeft(sid core.SessionID, user *domain.User) {
	ctl.BroadcastSession(sid, core.Message{
		Type:      core.EventPeerLeft,
		SessionID: sid,
		UserID:    user.ID,
		Role:      user.Role,
	})
}

func joinErrorReason(err error) string {
	switch {
	case errors.Is(err, core.ErrSessionFull):
		return "session_full"
	case errors.Is(err, orch.ErrNotParticipant):
		return "forbidden"
	default:
		return "join_failed"
	}
}
