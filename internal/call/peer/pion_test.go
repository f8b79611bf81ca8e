package peer

import (
	"strings"
	"testing"
	"time"

	"github.com/dkeye/LiveClass/internal/adapters/rtc"
	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/core/coretest"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wire relays everything emitted on from to the manager at the other end,
// in order, on its own goroutine.
func wire(t *testing.T, from *coretest.Channel, to func() *Manager) {
	t.Helper()
	queue := make(chan core.Message, 256)
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	from.OnEmit = func(msg core.Message) {
		select {
		case queue <- msg:
		case <-done:
		}
	}
	go func() {
		for {
			select {
			case <-done:
				return
			case msg := <-queue:
				switch msg.Type {
				case core.EventSignal:
					to().HandleSignal(msg)
				case core.EventJoinClass:
					to().HandleJoin(msg)
				}
			}
		}
	}()
}

func TestTracklessPartiesConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}
	none := func() []core.LocalTrack { return nil }
	chA, chB := coretest.NewChannel(), coretest.NewChannel()

	var a, b *Manager
	a = NewManager(Options{SessionID: sid, UserID: "a", CandidateBuffer: 32},
		chA, rtc.Factory(nil, webrtc.Configuration{}, sid), none, Listener{})
	b = NewManager(Options{SessionID: sid, UserID: "b", CandidateBuffer: 32},
		chB, rtc.Factory(nil, webrtc.Configuration{}, sid), none, Listener{})
	t.Cleanup(a.Close)
	t.Cleanup(b.Close)
	a.SetRole(domain.NegotiationInitiator)
	b.SetRole(domain.NegotiationResponder)
	wire(t, chA, func() *Manager { return b })
	wire(t, chB, func() *Manager { return a })

	a.HandleJoin(core.Message{Type: core.EventJoinClass, SessionID: sid, UserID: "b"})

	require.Eventually(t, func() bool {
		return a.State() == StateConnected && b.State() == StateConnected
	}, 10*time.Second, 20*time.Millisecond)

	offers := chA.Signals("offer")
	require.NotEmpty(t, offers)
	assert.True(t, strings.Contains(offers[0].SDP, "m=audio"), "offer asks for audio")
	assert.True(t, strings.Contains(offers[0].SDP, "m=video"), "offer asks for video")
	assert.Len(t, chB.Signals("answer"), 1)
}
