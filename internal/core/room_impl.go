package core

import (
	"sync"

	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory class room.
// Members are kept in join order; the head of the list is the initiator.
// It never closes adapter-owned resources.
type roomImpl struct {
	id      SessionID
	mu      sync.RWMutex
	members []MemberSession
}

func NewClassRoom(id SessionID) ClassRoom {
	return &roomImpl{id: id}
}

func (r *roomImpl) ID() SessionID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *roomImpl) Join(ms MemberSession) (domain.NegotiationRole, error) {
	u := ms.Meta().User.ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(u); i >= 0 {
		r.members[i] = ms
		log.Info().Str("module", "core.room").Str("session", string(r.id)).Str("user", string(u)).Msg("member rejoined")
		return roleAt(i), nil
	}
	if len(r.members) >= MaxParticipants {
		return domain.NegotiationUnknown, ErrSessionFull
	}
	r.members = append(r.members, ms)
	i := len(r.members) - 1
	log.Info().Str("module", "core.room").Str("session", string(r.id)).Str("user", string(u)).Str("negotiation_role", string(roleAt(i))).Msg("member added")
	return roleAt(i), nil
}

func (r *roomImpl) Leave(uid domain.UserID, ms MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(uid)
	if i < 0 || (ms != nil && r.members[i] != ms) {
		return false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	log.Info().Str("module", "core.room").Str("session", string(r.id)).Str("user", string(uid)).Int("left", len(r.members)).Msg("member removed")
	return true
}

func (r *roomImpl) RoleOf(uid domain.UserID) domain.NegotiationRole {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(uid)
	if i < 0 {
		return domain.NegotiationUnknown
	}
	return roleAt(i)
}

func (r *roomImpl) Broadcast(from domain.UserID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, m := range r.members {
		if m.Meta().User.ID == from {
			continue
		}
		sig := m.Signal()
		if sig == nil {
			continue
		}
		if err := sig.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.members))
	for i, ms := range r.members {
		u := ms.Meta().User
		out = append(out, MemberDTO{ID: u.ID, Username: u.Username, Role: u.Role, NegotiationRole: roleAt(i)})
	}
	return out
}

func (r *roomImpl) indexOf(uid domain.UserID) int {
	for i, ms := range r.members {
		if ms.Meta().User.ID == uid {
			return i
		}
	}
	return -1
}

func roleAt(i int) domain.NegotiationRole {
	if i == 0 {
		return domain.NegotiationInitiator
	}
	return domain.NegotiationResponder
}
