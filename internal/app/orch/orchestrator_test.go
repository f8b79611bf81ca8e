package orch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/LiveClass/internal/app"
	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conn struct {
	mu     sync.Mutex
	frames int
	full   bool
	closed bool
}

func (c *conn) TrySend(core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("full")
	}
	c.frames++
	return nil
}

func (c *conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

type bookings map[domain.BookingID]*domain.Booking

func (b bookings) Booking(_ context.Context, id domain.BookingID) (*domain.Booking, error) {
	if bk, ok := b[id]; ok {
		return bk, nil
	}
	return nil, errors.New("not found")
}

type fixture struct {
	o        *Orchestrator
	canceled map[core.ConnID]bool
}

func newFixture() *fixture {
	f := &fixture{canceled: map[core.ConnID]bool{}}
	f.o = &Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.SimplePolicy{},
		Bookings: bookings{"b1": {ID: "b1", Participants: []domain.Participant{
			{UserID: "t1", Role: domain.RoleTeacher},
			{UserID: "s1", Role: domain.RoleStudent},
			{UserID: "p1", Role: domain.RoleParent},
		}}},
	}
	return f
}

func (f *fixture) connect(cid core.ConnID, uid domain.UserID) *conn {
	c := &conn{}
	u := &domain.User{ID: uid, Username: string(uid)}
	sess := core.NewMemberSession(domain.NewMember(u, time.Now())).UpdateSignal(c)
	f.o.Registry.BindSignal(cid, sess, func() { f.canceled[cid] = true })
	return c
}

func TestJoinChecksBooking(t *testing.T) {
	f := newFixture()
	f.connect("c1", "t1")
	f.connect("c2", "x9")

	_, role, err := f.o.Join(context.Background(), "c1", "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.NegotiationInitiator, role)

	_, _, err = f.o.Join(context.Background(), "c2", "b1")
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, _, err = f.o.Join(context.Background(), "c1", "missing")
	assert.Error(t, err)

	_, _, err = f.o.Join(context.Background(), "nope", "b1")
	assert.ErrorIs(t, err, ErrUnknownConn)
}

func TestThirdJoinerIsRejectedAndRoomSurvives(t *testing.T) {
	f := newFixture()
	f.connect("c1", "t1")
	f.connect("c2", "s1")
	f.connect("c3", "p1")

	_, _, err := f.o.Join(context.Background(), "c1", "b1")
	require.NoError(t, err)
	_, role, err := f.o.Join(context.Background(), "c2", "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.NegotiationResponder, role)

	_, _, err = f.o.Join(context.Background(), "c3", "b1")
	assert.ErrorIs(t, err, core.ErrSessionFull)

	room, ok := f.o.Rooms.GetRoom("b1")
	require.True(t, ok)
	assert.Equal(t, 2, room.MemberCount())
	_, _, joined := f.o.Registry.SessionOf("c3")
	assert.False(t, joined)
}

func TestRelayReachesOtherMemberOnly(t *testing.T) {
	f := newFixture()
	c1 := f.connect("c1", "t1")
	c2 := f.connect("c2", "s1")
	_, _, _ = f.o.Join(context.Background(), "c1", "b1")
	_, _, _ = f.o.Join(context.Background(), "c2", "b1")

	res := f.o.Relay("c1", core.Frame(`{}`))
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, 0, c1.frames)
	assert.Equal(t, 1, c2.frames)

	f.connect("c3", "p1")
	assert.Zero(t, f.o.Relay("c3", core.Frame(`{}`)).SendTo)
}

func TestRelayKicksSlowMember(t *testing.T) {
	f := newFixture()
	f.connect("c1", "t1")
	c2 := f.connect("c2", "s1")
	_, _, _ = f.o.Join(context.Background(), "c1", "b1")
	_, _, _ = f.o.Join(context.Background(), "c2", "b1")

	c2.full = true
	res := f.o.Relay("c1", core.Frame(`{}`))
	require.Len(t, res.Dropped, 1)
	assert.True(t, f.canceled["c2"])
	assert.True(t, c2.closed)
}

func TestLeaveAndDisconnect(t *testing.T) {
	f := newFixture()
	f.connect("c1", "t1")
	f.connect("c2", "s1")
	_, _, _ = f.o.Join(context.Background(), "c1", "b1")
	room, _, _ := f.o.Join(context.Background(), "c2", "b1")

	sid, removed := f.o.Leave("c1")
	assert.Equal(t, core.SessionID("b1"), sid)
	assert.True(t, removed)
	assert.Equal(t, domain.NegotiationInitiator, room.RoleOf("s1"))

	sid, removed = f.o.OnDisconnect("c2")
	assert.Equal(t, core.SessionID("b1"), sid)
	assert.True(t, removed)
	_, ok := f.o.Rooms.GetRoom("b1")
	assert.False(t, ok, "empty room is stopped")
	_, ok = f.o.Registry.GetSession("c2")
	assert.False(t, ok)
}

func TestReconnectedUserKeepsSeat(t *testing.T) {
	f := newFixture()
	f.connect("old", "t1")
	f.connect("c2", "s1")
	f.connect("new", "t1")
	_, _, _ = f.o.Join(context.Background(), "old", "b1")
	_, _, _ = f.o.Join(context.Background(), "c2", "b1")

	room, role, err := f.o.Join(context.Background(), "new", "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.NegotiationInitiator, role)

	// the stale connection closing must not remove the fresh seat
	_, removed := f.o.OnDisconnect("old")
	assert.False(t, removed)
	assert.Equal(t, 2, room.MemberCount())
}

func TestEvictRoom(t *testing.T) {
	f := newFixture()
	f.connect("c1", "t1")
	f.connect("c2", "s1")
	_, _, _ = f.o.Join(context.Background(), "c1", "b1")
	_, _, _ = f.o.Join(context.Background(), "c2", "b1")

	f.o.EvictRoom("b1")
	assert.True(t, f.canceled["c1"])
	assert.True(t, f.canceled["c2"])
	assert.Empty(t, f.o.Rooms.List())
}
