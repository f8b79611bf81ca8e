package orch

import (
	"github.com/dkeye/LiveClass/internal/app"
	"github.com/dkeye/LiveClass/internal/core"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	// Bookings is optional; when set only booking participants may join.
	Bookings core.BookingDirectory
}

// Relay fans a frame out to the other member of the sender's session.
func (o *Orchestrator) Relay(cid core.ConnID, data core.Frame) core.PublishResult {
	sid, sess, ok := o.Registry.SessionOf(cid)
	if !ok {
		return core.PublishResult{}
	}
	room, ok := o.Rooms.GetRoom(sid)
	if !ok {
		return core.PublishResult{}
	}

	res := room.Broadcast(sess.Meta().User.ID, data)
	if o.Policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			for _, snap := range o.Registry.MembersOfSession(sid) {
				if snap.Session == slow {
					log.Warn().Str("module", "orch").Str("cid", string(snap.CID)).Msg("kick slow member")
					o.Registry.Cancel(snap.CID)
					if sig := slow.Signal(); sig != nil {
						sig.Close()
					}
				}
			}
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
	return res
}
