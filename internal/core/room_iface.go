package core

import (
	"errors"

	"github.com/dkeye/LiveClass/internal/domain"
)

// MaxParticipants bounds a live class to one teacher/student pair.
const MaxParticipants = 2

var ErrSessionFull = errors.New("session full")

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// ClassRoom is the core-facing API of one live class session.
// It owns the membership set and the negotiation roles but never
// touches transport resources.
type ClassRoom interface {
	ID() SessionID
	MemberCount() int
	MembersSnapshot() []MemberDTO

	// Join admits ms and returns the negotiation role it holds.
	// A user that joins again replaces its previous session in place.
	Join(ms MemberSession) (domain.NegotiationRole, error)
	// Leave removes uid only if its current session is ms.
	Leave(uid domain.UserID, ms MemberSession) bool
	RoleOf(uid domain.UserID) domain.NegotiationRole
	Broadcast(from domain.UserID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          SessionID `json:"id"`
	MemberCount int       `json:"client_count"`
}

type RoomManager interface {
	GetOrCreate(id SessionID) ClassRoom
	GetRoom(id SessionID) (ClassRoom, bool)
	List() []RoomInfo
	StopRoom(id SessionID)

	// JoinRoom admits ms into room id, creating it when missing. A room
	// the join leaves empty is dropped again.
	JoinRoom(id SessionID, ms MemberSession) (ClassRoom, domain.NegotiationRole, error)
	// LeaveRoom removes uid if ms is its current session and drops the
	// room once empty. The manager lock covers the whole step.
	LeaveRoom(id SessionID, uid domain.UserID, ms MemberSession) (removed bool)
}
