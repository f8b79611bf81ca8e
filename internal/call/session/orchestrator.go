// Package session runs one live class call: identity, media, signaling and
// the peer connection behind a single observable CallState.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/LiveClass/internal/call/media"
	"github.com/dkeye/LiveClass/internal/call/peer"
	"github.com/dkeye/LiveClass/internal/call/settings"
	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyStarted = errors.New("session: already started")
	ErrEnded          = errors.New("session: call ended")
	ErrNotStarted     = errors.New("session: not started")
)

// SignalClient is the signaling transport the call drives.
type SignalClient interface {
	core.SignalChannel
	Connect(ctx context.Context, sid core.SessionID) error
	Disconnect()
	Connected() bool
	OnStateChange(func(connected bool)) func()
	OnReconnect(func()) func()
}

type Options struct {
	SessionID   core.SessionID
	PreferAudio bool
	PreferVideo bool

	NegotiationTimeout time.Duration
	CandidateBuffer    int
	// TickInterval paces duration updates; defaults to one second.
	TickInterval time.Duration
}

type Deps struct {
	Identity core.Identity
	// Bookings is optional; without it the remote side is learned from signaling.
	Bookings core.BookingDirectory
	Media    *media.Manager
	Signal   SignalClient
	Peers    core.PeerFactory
	// Settings is optional.
	Settings *settings.Panel
}

type Orchestrator struct {
	opts Options
	deps Deps
	now  func() time.Time

	mu        sync.Mutex
	started   bool
	closing   bool
	ended     bool
	user      *domain.User
	peer      *peer.Manager
	state     CallState
	remote    *domain.RemoteParticipant
	startedAt time.Time
	endedAt   time.Time
	stopTick  chan struct{}
	unsubs    []func()
	nextID    int
	listeners map[int]func(CallState)
}

func New(opts Options, deps Deps) *Orchestrator {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &Orchestrator{
		opts:      opts,
		deps:      deps,
		now:       time.Now,
		state:     CallState{Status: domain.StatusIdle},
		listeners: make(map[int]func(CallState)),
	}
}

// Start joins the call. Only a missing identity, or ErrEnded when the call
// was closed while starting, is returned; everything else is absorbed into
// CallState.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return ErrEnded
	}
	if o.started {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	o.started = true
	o.mu.Unlock()

	user, err := o.deps.Identity.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("session: resolve identity: %w", err)
	}

	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return ErrEnded
	}
	o.user = user
	// The timer starts when the call screen loads, not when media flows.
	o.startedAt = o.now()
	o.state.Status = domain.StatusConnecting
	o.state.IsConnecting = true
	o.stopTick = make(chan struct{})
	go o.tick(o.stopTick)
	o.mu.Unlock()

	log.Info().Str("module", "session").Str("session", string(o.opts.SessionID)).Str("user", string(user.ID)).Str("role", string(user.Role)).Msg("starting call")

	o.loadRemote(ctx, user)
	if o.isEnded() {
		return ErrEnded
	}

	var prefs settings.Settings
	if p := o.deps.Settings; p != nil {
		prefs = p.Settings()
		o.deps.Media.UseDevices(prefs.SelectedMicrophone, prefs.SelectedCamera)
		o.addUnsub(p.OnChange(func(s settings.Settings) {
			// Applies to the next acquisition; the live connection is left alone.
			o.deps.Media.UseDevices(s.SelectedMicrophone, s.SelectedCamera)
		}))
	}
	o.deps.Media.AcquireLocalStream(ctx, o.opts.PreferVideo, o.opts.PreferAudio)
	if prefs.AutoJoinMuted {
		o.deps.Media.SetEnabled(core.KindAudio, false)
	}
	if prefs.AutoJoinVideoOff {
		o.deps.Media.SetEnabled(core.KindVideo, false)
	}

	pm := peer.NewManager(peer.Options{
		SessionID:          o.opts.SessionID,
		UserID:             user.ID,
		NegotiationTimeout: o.opts.NegotiationTimeout,
		CandidateBuffer:    o.opts.CandidateBuffer,
	}, o.deps.Signal, o.deps.Peers, o.deps.Media.LocalTracks, o.peerListener())

	o.mu.Lock()
	closing := o.closing
	if !closing {
		o.peer = pm
	}
	o.mu.Unlock()
	if closing {
		return o.unwind(pm)
	}

	sig := o.deps.Signal
	o.addUnsub(sig.On(core.EventJoined, o.onJoined))
	o.addUnsub(sig.On(core.EventJoinClass, o.onJoinClass))
	o.addUnsub(sig.On(core.EventSignal, pm.HandleSignal))
	o.addUnsub(sig.On(core.EventPeerLeft, o.onPeerLeft))
	o.addUnsub(sig.On(core.EventError, o.onServerError))
	for _, ev := range []core.Event{core.EventMute, core.EventUnmute, core.EventMuteVideo, core.EventUnmuteVideo} {
		o.addUnsub(sig.On(ev, o.onControl))
	}
	o.addUnsub(sig.OnStateChange(o.onSignalingState))
	o.addUnsub(sig.OnReconnect(o.onReconnect))

	err = sig.Connect(ctx, o.opts.SessionID)
	if o.isEnded() {
		return o.unwind(nil)
	}
	if err != nil {
		log.Error().Err(err).Str("module", "session").Msg("signaling connect failed")
		o.fail(err)
		return nil
	}
	o.update(func(s *CallState) { s.SignalingConnected = true })
	o.emit(core.EventJoinClass)
	return nil
}

// loadRemote pre-populates the other participant from the booking.
func (o *Orchestrator) loadRemote(ctx context.Context, user *domain.User) {
	if o.deps.Bookings == nil {
		return
	}
	b, err := o.deps.Bookings.Booking(ctx, domain.BookingID(o.opts.SessionID))
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("booking lookup failed")
		return
	}
	p, ok := b.Counterpart(user.ID)
	if !ok {
		return
	}
	o.update(func(*CallState) {
		o.remote = &domain.RemoteParticipant{
			UserID:     p.UserID,
			Name:       p.Name,
			Role:       p.Role,
			IsAudioOn:  true,
			IsVideoOn:  true,
			ProfileRef: p.ProfileRef,
		}
	})
}

// unwind releases what a Start overtaken by teardown acquired after
// teardown already ran.
func (o *Orchestrator) unwind(pm *peer.Manager) error {
	log.Info().Str("module", "session").Msg("call ended while starting")
	o.deps.Signal.Disconnect()
	if pm != nil {
		pm.Close()
	}
	o.deps.Media.Release()
	return ErrEnded
}

// addUnsub keeps fn for teardown, or runs it at once when teardown is done.
func (o *Orchestrator) addUnsub(fn func()) {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		fn()
		return
	}
	o.unsubs = append(o.unsubs, fn)
	o.mu.Unlock()
}

func (o *Orchestrator) peerListener() peer.Listener {
	return peer.Listener{
		State: func(s peer.State) {
			o.update(func(cs *CallState) {
				switch s {
				case peer.StateConnected:
					cs.Status = domain.StatusConnected
					cs.IsConnecting = false
					cs.IsConnected = true
				case peer.StateFailed:
					cs.Status = domain.StatusFailed
					cs.IsConnecting = false
					cs.IsConnected = false
				case peer.StateDisconnected, peer.StateIdle, peer.StateOffering, peer.StateAnswering:
					cs.Status = domain.StatusConnecting
					cs.IsConnecting = true
					if s != peer.StateDisconnected {
						cs.IsConnected = false
					}
				}
			})
		},
		Quality: func(q domain.ConnectionQuality) {
			o.update(func(cs *CallState) { cs.Quality = q })
		},
		Connectivity: func(up bool) {
			o.update(func(cs *CallState) { cs.IsConnected = up })
		},
		RemoteStream: func(st *core.MediaStream) {
			o.deps.Media.SetRemoteStream(st)
			o.update(func(cs *CallState) { cs.RemoteStream = st })
		},
		Failed: func(err error) {
			log.Warn().Err(err).Str("module", "session").Msg("peer connection failed")
			o.update(func(cs *CallState) { cs.Err = err.Error() })
		},
	}
}

// update mutates the state unless the call ended, then publishes a snapshot.
func (o *Orchestrator) update(fn func(*CallState)) {
	o.mu.Lock()
	if o.ended {
		o.mu.Unlock()
		return
	}
	fn(&o.state)
	snap := o.snapshotLocked()
	fns := o.listenersLocked()
	o.mu.Unlock()
	for _, l := range fns {
		l(snap)
	}
}

func (o *Orchestrator) listenersLocked() []func(CallState) {
	fns := make([]func(CallState), 0, len(o.listeners))
	for _, l := range o.listeners {
		fns = append(fns, l)
	}
	return fns
}

func (o *Orchestrator) snapshotLocked() CallState {
	s := o.state
	s.IsMuted = o.deps.Media.IsMuted()
	s.IsVideoOff = o.deps.Media.IsVideoOff()
	s.CallDuration = o.durationLocked()
	if o.remote != nil {
		r := *o.remote
		s.Remote = &r
	}
	return s
}

func (o *Orchestrator) durationLocked() string {
	switch {
	case o.startedAt.IsZero():
		return formatDuration(0)
	case o.ended:
		return formatDuration(o.endedAt.Sub(o.startedAt))
	}
	return formatDuration(o.now().Sub(o.startedAt))
}

// State returns a snapshot of the call.
func (o *Orchestrator) State() CallState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// OnStateChange subscribes to state snapshots.
func (o *Orchestrator) OnStateChange(fn func(CallState)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	o.listeners[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

func (o *Orchestrator) tick(stop <-chan struct{}) {
	t := time.NewTicker(o.opts.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			o.update(func(*CallState) {})
		}
	}
}

func (o *Orchestrator) fail(err error) {
	o.update(func(cs *CallState) {
		cs.Status = domain.StatusFailed
		cs.IsConnecting = false
		cs.IsConnected = false
		cs.Err = err.Error()
	})
}

func (o *Orchestrator) self() *domain.User {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.user
}

func (o *Orchestrator) peerManager() *peer.Manager {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.peer
}

func (o *Orchestrator) emit(ev core.Event) {
	u := o.self()
	if u == nil {
		return
	}
	msg := core.Message{
		Type:      ev,
		SessionID: o.opts.SessionID,
		UserID:    u.ID,
		Role:      u.Role,
		Name:      u.Username,
	}
	if err := o.deps.Signal.Emit(msg); err != nil {
		log.Warn().Err(err).Str("module", "session").Str("type", string(ev)).Msg("emit failed")
	}
}

// isLoopback filters events this user caused.
func (o *Orchestrator) isLoopback(msg core.Message) bool {
	u := o.self()
	return u != nil && msg.UserID == u.ID
}

func (o *Orchestrator) isEnded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closing
}
