package signal

import (
	"encoding/json"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/rs/zerolog/log"
)

// handleRelay forwards offer/answer/candidate and mute/video events to the
// other member. Identity fields are overwritten with the authenticated user
// so a client cannot speak for its peer.
func (ctl *SignalWSController) handleRelay(
	cid core.ConnID,
	conn *WsSignalConn,
	msg core.Message,
) {
	sid, sess, ok := ctl.Orch.Registry.SessionOf(cid)
	if !ok {
		ctl.sendError(conn, msg.SessionID, "not_joined")
		return
	}
	if msg.SessionID != "" && msg.SessionID != sid {
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Str("session", string(msg.SessionID)).Msg("relay outside joined session")
		ctl.sendError(conn, msg.SessionID, "session_mismatch")
		return
	}
	if msg.Type == core.EventSignal && msg.Signal == nil {
		ctl.sendError(conn, sid, "bad_payload")
		return
	}

	user := sess.Meta().User
	msg.SessionID = sid
	msg.UserID = user.ID
	msg.Role = user.Role
	msg.NegotiationRole = ""
	msg.Peers = nil
	msg.Error = ""
	ctl.relayJSON(cid, msg)
}

func (ctl *SignalWSController) relayJSON(cid core.ConnID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("relay marshal")
		return
	}
	res := ctl.Orch.Relay(cid, b)
	log.Debug().Str("module", "signal").Str("cid", string(cid)).Int("sent_to", res.SendTo).Msg("relayed")
}
