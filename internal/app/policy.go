package app

import "github.com/dkeye/LiveClass/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(room core.ClassRoom, member core.MemberSession) BackpressureAction
}

// SimplePolicy kicks a member whose send buffer is full. A signaling peer
// that cannot keep up would miss SDP or candidates anyway.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room core.ClassRoom, member core.MemberSession) BackpressureAction {
	return KickMember
}
