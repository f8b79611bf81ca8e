package session

import (
	"context"
	"sync"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/core/coretest"
	"github.com/dkeye/LiveClass/internal/domain"
)

type fakeSignal struct {
	*coretest.Channel

	mu          sync.Mutex
	connected   bool
	connectErr  error
	connects    int
	disconnects int
	stateFns    []func(bool)
	reconFns    []func()

	// beforeConnect runs at the start of Connect, outside the lock.
	beforeConnect func()
}

func newFakeSignal() *fakeSignal {
	return &fakeSignal{Channel: coretest.NewChannel()}
}

func (f *fakeSignal) Connect(context.Context, core.SessionID) error {
	f.mu.Lock()
	hook := f.beforeConnect
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeSignal) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeSignal) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSignal) OnStateChange(fn func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateFns = append(f.stateFns, fn)
	return func() {}
}

func (f *fakeSignal) OnReconnect(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconFns = append(f.reconFns, fn)
	return func() {}
}

func (f *fakeSignal) fireReconnect() {
	f.mu.Lock()
	fns := append([]func(){}, f.reconFns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeSignal) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

type identity struct {
	user *domain.User
	err  error
}

func (i identity) CurrentUser(context.Context) (*domain.User, error) { return i.user, i.err }

// gate holds a call until released, after signalling that it was reached.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) wait() {
	close(g.entered)
	<-g.release
}

type gatedIdentity struct {
	user *domain.User
	g    *gate
}

func (i gatedIdentity) CurrentUser(context.Context) (*domain.User, error) {
	i.g.wait()
	return i.user, nil
}

type bookings map[domain.BookingID]*domain.Booking

func (b bookings) Booking(_ context.Context, id domain.BookingID) (*domain.Booking, error) {
	if bk, ok := b[id]; ok {
		return bk, nil
	}
	return nil, context.DeadlineExceeded
}

// hub routes messages between two fake signals like the signaling server:
// first joiner initiates, the other member gets relays and peer-left.
type hub struct {
	mu      sync.Mutex
	members []*hubMember
}

type hubMember struct {
	sig  *fakeSignal
	user *domain.User
}

func (h *hub) attach(sig *fakeSignal, u *domain.User) {
	m := &hubMember{sig: sig, user: u}
	sig.OnEmit = func(msg core.Message) { h.route(m, msg) }
}

func (h *hub) other(m *hubMember) *hubMember {
	for _, x := range h.members {
		if x != m {
			return x
		}
	}
	return nil
}

func (h *hub) route(from *hubMember, msg core.Message) {
	h.mu.Lock()
	switch msg.Type {
	case core.EventJoinClass:
		idx := -1
		for i, x := range h.members {
			if x == from {
				idx = i
			}
		}
		if idx < 0 {
			h.members = append(h.members, from)
			idx = len(h.members) - 1
		}
		role := domain.NegotiationResponder
		if idx == 0 {
			role = domain.NegotiationInitiator
		}
		var peers []core.MemberDTO
		other := h.other(from)
		if other != nil {
			peers = append(peers, core.MemberDTO{ID: other.user.ID, Username: other.user.Username, Role: other.user.Role})
		}
		h.mu.Unlock()
		from.sig.Deliver(core.Message{Type: core.EventJoined, SessionID: msg.SessionID, UserID: from.user.ID, NegotiationRole: role, Peers: peers})
		if other != nil {
			other.sig.Deliver(msg)
		}
	case core.EventLeaveClass:
		other := h.other(from)
		kept := h.members[:0]
		for _, x := range h.members {
			if x != from {
				kept = append(kept, x)
			}
		}
		h.members = kept
		h.mu.Unlock()
		if other != nil {
			other.sig.Deliver(core.Message{Type: core.EventPeerLeft, SessionID: msg.SessionID, UserID: from.user.ID, Role: from.user.Role})
		}
	default:
		other := h.other(from)
		h.mu.Unlock()
		if other != nil {
			other.sig.Deliver(msg)
		}
	}
}
