package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotParticipant = errors.New("not a participant of this booking")
	ErrUnknownConn    = errors.New("unknown connection")
)

// Join admits the connection's user into the class session sid and returns
// the negotiation role the registrar assigned.
func (o *Orchestrator) Join(ctx context.Context, cid core.ConnID, sid core.SessionID) (core.ClassRoom, domain.NegotiationRole, error) {
	session, ok := o.Registry.GetSession(cid)
	if !ok {
		return nil, domain.NegotiationUnknown, ErrUnknownConn
	}
	user := session.Meta().User

	if o.Bookings != nil {
		b, err := o.Bookings.Booking(ctx, domain.BookingID(sid))
		if err != nil {
			return nil, domain.NegotiationUnknown, fmt.Errorf("booking lookup: %w", err)
		}
		if !b.Has(user.ID) {
			return nil, domain.NegotiationUnknown, ErrNotParticipant
		}
	}

	if current, _, ok := o.Registry.SessionOf(cid); ok && current != sid {
		o.Leave(cid)
		log.Info().Str("cid", string(cid)).Str("from_session", string(current)).Msg("left previous session")
	}

	room, role, err := o.Rooms.JoinRoom(sid, session)
	if err != nil {
		return nil, domain.NegotiationUnknown, err
	}
	o.Registry.UpdateSession(cid, sid)
	log.Info().Str("cid", string(cid)).Str("session", string(sid)).Str("negotiation_role", string(role)).Msg("joined session")
	return room, role, nil
}

// Leave removes the connection from its session. It reports the session
// and whether the member was actually removed (false when a newer
// connection of the same user replaced it).
func (o *Orchestrator) Leave(cid core.ConnID) (core.SessionID, bool) {
	sid, session, ok := o.Registry.SessionOf(cid)
	if !ok {
		return "", false
	}
	o.Registry.RemoveSession(cid)
	return sid, o.Rooms.LeaveRoom(sid, session.Meta().User.ID, session)
}

// OnDisconnect is the single cleanup path for a closed connection.
func (o *Orchestrator) OnDisconnect(cid core.ConnID) (core.SessionID, bool) {
	sid, removed := o.Leave(cid)
	o.Registry.Unbind(cid)
	return sid, removed
}

func (o *Orchestrator) EvictRoom(sid core.SessionID) {
	for _, snap := range o.Registry.MembersOfSession(sid) {
		o.Leave(snap.CID)
		o.Registry.Cancel(snap.CID)
	}
	o.Rooms.StopRoom(sid)
}
