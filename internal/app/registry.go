package app

import (
	"context"
	"sync"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	SessionID core.SessionID
	Session   core.MemberSession
	Cancel    context.CancelFunc
}

// Registry tracks every live signaling connection and the class session
// it has joined, if any.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[core.ConnID]*sessionEntry),
	}
}

func (r *Registry) BindSignal(cid core.ConnID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[cid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("user", string(sess.Meta().User.ID)).Msg("bound signal")
}

func (r *Registry) GetSession(cid core.ConnID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) User(cid core.ConnID) (*domain.User, bool) {
	sess, ok := r.GetSession(cid)
	if !ok {
		return nil, false
	}
	return sess.Meta().User, true
}

func (r *Registry) Unbind(cid core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, cid)
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("unbind connection")
}

func (r *Registry) SessionOf(cid core.ConnID) (core.SessionID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[cid]
	if !ok || entry.SessionID == "" {
		return "", nil, false
	}
	return entry.SessionID, entry.Session, true
}

func (r *Registry) UpdateSession(cid core.ConnID, sid core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[cid]
	if !ok {
		return false
	}
	entry.SessionID = sid
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("session", string(sid)).Msg("updated session")
	return true
}

func (r *Registry) RemoveSession(cid core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.conns[cid]; ok {
		entry.SessionID = ""
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("removed session association")
}

type regSnap struct {
	CID     core.ConnID
	Session core.MemberSession
}

func (r *Registry) MembersOfSession(sid core.SessionID) []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, 2)
	for cid, e := range r.conns {
		if e.SessionID == sid {
			out = append(out, regSnap{CID: cid, Session: e.Session})
		}
	}
	return out
}

// Cancel stops the pumps of a connection.
func (r *Registry) Cancel(cid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("canceled connection")
	return true
}
