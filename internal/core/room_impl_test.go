package core

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recConn struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
}

func (c *recConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("buffer full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recConn) Close() {}

func (c *recConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func member(id string) (MemberSession, *recConn) {
	conn := &recConn{}
	u := &domain.User{ID: domain.UserID(id), Username: id, Role: domain.RoleStudent}
	return NewMemberSession(domain.NewMember(u, time.Now())).UpdateSignal(conn), conn
}

func TestRoomAssignsRolesInJoinOrder(t *testing.T) {
	r := NewClassRoom("s1")
	a, _ := member("a")
	b, _ := member("b")
	c, _ := member("c")

	role, err := r.Join(a)
	require.NoError(t, err)
	assert.Equal(t, domain.NegotiationInitiator, role)

	role, err = r.Join(b)
	require.NoError(t, err)
	assert.Equal(t, domain.NegotiationResponder, role)

	_, err = r.Join(c)
	assert.ErrorIs(t, err, ErrSessionFull)
	assert.Equal(t, 2, r.MemberCount())
	assert.Equal(t, domain.NegotiationUnknown, r.RoleOf("c"))
}

func TestRoomRejoinReplacesInPlace(t *testing.T) {
	r := NewClassRoom("s1")
	a1, _ := member("a")
	b, _ := member("b")
	a2, _ := member("a")
	_, _ = r.Join(a1)
	_, _ = r.Join(b)

	role, err := r.Join(a2)
	require.NoError(t, err)
	assert.Equal(t, domain.NegotiationInitiator, role)
	assert.Equal(t, 2, r.MemberCount())

	// the stale session must not evict the fresh one
	assert.False(t, r.Leave("a", a1))
	assert.Equal(t, 2, r.MemberCount())
	assert.True(t, r.Leave("a", a2))
}

func TestRoomLeavePromotesRemaining(t *testing.T) {
	r := NewClassRoom("s1")
	a, _ := member("a")
	b, _ := member("b")
	_, _ = r.Join(a)
	_, _ = r.Join(b)

	assert.True(t, r.Leave("a", nil))
	assert.Equal(t, domain.NegotiationInitiator, r.RoleOf("b"))
	assert.False(t, r.Leave("a", nil))

	snap := r.MembersSnapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, domain.UserID("b"), snap[0].ID)
	assert.Equal(t, domain.NegotiationInitiator, snap[0].NegotiationRole)
}

func TestRoomBroadcastSkipsSender(t *testing.T) {
	r := NewClassRoom("s1")
	a, ca := member("a")
	b, cb := member("b")
	_, _ = r.Join(a)
	_, _ = r.Join(b)

	res := r.Broadcast("a", Frame(`{}`))
	assert.Equal(t, 1, res.SendTo)
	assert.Empty(t, res.Dropped)
	assert.Equal(t, 0, ca.count())
	assert.Equal(t, 1, cb.count())

	cb.full = true
	res = r.Broadcast("a", Frame(`{}`))
	assert.Equal(t, 0, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, domain.UserID("b"), res.Dropped[0].Meta().User.ID)
}
