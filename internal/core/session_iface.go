package core

import "github.com/dkeye/LiveClass/internal/domain"

// ConnID identifies one signaling connection on the server.
type ConnID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what a class room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
	UpdateSignal(SignalConnection) MemberSession
}

type memberSession struct {
	meta   *domain.Member
	signal SignalConnection
}

func NewMemberSession(meta *domain.Member) MemberSession {
	return &memberSession{meta: meta}
}

func (m *memberSession) Meta() *domain.Member     { return m.meta }
func (m *memberSession) Signal() SignalConnection { return m.signal }

func (m *memberSession) UpdateSignal(s SignalConnection) MemberSession {
	m.signal = s
	return m
}
