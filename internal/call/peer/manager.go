// Package peer drives one WebRTC peer connection through offer/answer,
// trickled ICE and renegotiation for a two-party session.
package peer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrNegotiationTimeout = errors.New("peer: negotiation timed out")

type State string

const (
	StateIdle         State = "idle"
	StateOffering     State = "offering"
	StateAnswering    State = "answering"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

type Options struct {
	SessionID core.SessionID
	UserID    domain.UserID
	// NegotiationTimeout bounds offering/answering; zero disables it.
	NegotiationTimeout time.Duration
	CandidateBuffer    int
}

// Listener receives manager events. Any field may be nil. Callbacks never
// run under the manager lock.
type Listener struct {
	State        func(State)
	Quality      func(domain.ConnectionQuality)
	Connectivity func(connected bool)
	RemoteStream func(*core.MediaStream)
	Failed       func(error)
}

type Manager struct {
	opts     Options
	channel  core.SignalChannel
	factory  core.PeerFactory
	local    func() []core.LocalTrack
	listener Listener

	mu      sync.Mutex
	pc      core.PeerConnection
	gen     uint64
	state   State
	role    domain.NegotiationRole
	pending []webrtc.ICECandidateInit
	remote  *core.MediaStream
	timer   *time.Timer
	notes   []func()
}

// NewManager wires a manager. local lists the tracks attached to every new
// connection.
func NewManager(opts Options, channel core.SignalChannel, factory core.PeerFactory, local func() []core.LocalTrack, l Listener) *Manager {
	if opts.CandidateBuffer <= 0 {
		opts.CandidateBuffer = 64
	}
	if local == nil {
		local = func() []core.LocalTrack { return nil }
	}
	return &Manager{
		opts:     opts,
		channel:  channel,
		factory:  factory,
		local:    local,
		listener: l,
		state:    StateIdle,
	}
}

// unlock releases the lock and then runs the callbacks queued under it.
func (m *Manager) unlock() {
	notes := m.notes
	m.notes = nil
	m.mu.Unlock()
	for _, fn := range notes {
		fn()
	}
}

func (m *Manager) later(fn func()) { m.notes = append(m.notes, fn) }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetRole records the negotiation role assigned by the server.
func (m *Manager) SetRole(r domain.NegotiationRole) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.role != r {
		log.Info().Str("module", "peer").Str("role", string(r)).Msg("negotiation role")
	}
	m.role = r
}

func (m *Manager) Role() domain.NegotiationRole {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

func (m *Manager) foreign(msg core.Message) bool {
	if msg.UserID == m.opts.UserID {
		return true
	}
	return msg.SessionID != "" && msg.SessionID != m.opts.SessionID
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	log.Debug().Str("module", "peer").Str("from", string(m.state)).Str("to", string(s)).Msg("state")
	m.state = s
	if fn := m.listener.State; fn != nil {
		m.later(func() { fn(s) })
	}
}

func (m *Manager) emitLater(msg core.Message) {
	msg.SessionID = m.opts.SessionID
	msg.UserID = m.opts.UserID
	m.later(func() {
		if err := m.channel.Emit(msg); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("type", string(msg.Type)).Msg("emit failed")
		}
	})
}

// HandleJoin reacts to the other participant joining. The initiator offers;
// with no role assigned the receiver of the join offers.
func (m *Manager) HandleJoin(msg core.Message) {
	if m.foreign(msg) {
		return
	}
	m.mu.Lock()
	defer m.unlock()

	switch {
	case m.state == StateClosed:
		return
	case m.role == domain.NegotiationResponder:
		log.Debug().Str("module", "peer").Str("from", string(msg.UserID)).Msg("responder waits for offer")
		return
	case m.state == StateOffering:
		log.Debug().Str("module", "peer").Msg("offer already in flight")
		return
	case m.state == StateAnswering:
		return
	}

	if m.pc != nil {
		log.Info().Str("module", "peer").Str("from", string(msg.UserID)).Msg("peer re-joined, rebuilding connection")
		m.closePCLocked()
		m.dropRemoteLocked()
	}
	m.offerLocked()
}

// offerLocked builds a fresh connection and sends its offer.
func (m *Manager) offerLocked() {
	if err := m.newPCLocked(); err != nil {
		m.failLocked(err)
		return
	}
	m.setStateLocked(StateOffering)
	m.armTimerLocked()
	m.sendOfferLocked()
}

func (m *Manager) sendOfferLocked() {
	offer, err := m.pc.CreateOffer(context.Background())
	if err != nil {
		log.Error().Err(err).Str("module", "peer").Msg("create offer")
		m.failLocked(err)
		return
	}
	m.emitLater(core.Message{Type: core.EventSignal, Signal: core.DescriptionSignal(offer)})
}

// HandleSignal applies a relayed description or candidate.
func (m *Manager) HandleSignal(msg core.Message) {
	if m.foreign(msg) || msg.Signal == nil {
		return
	}
	m.mu.Lock()
	defer m.unlock()
	if m.state == StateClosed {
		return
	}

	if d, ok := msg.Signal.Description(); ok {
		switch d.Type {
		case webrtc.SDPTypeOffer:
			m.handleOfferLocked(d)
		case webrtc.SDPTypeAnswer:
			m.handleAnswerLocked(d)
		}
		return
	}
	if msg.Signal.Candidate != nil {
		m.handleCandidateLocked(*msg.Signal.Candidate)
	}
}

func (m *Manager) handleOfferLocked(d webrtc.SessionDescription) {
	renegotiation := false
	switch {
	case m.pc == nil:
		log.Debug().Str("module", "peer").Msg("offer without connection, creating one")
		if err := m.newPCLocked(); err != nil {
			m.failLocked(err)
			return
		}
	case m.state == StateOffering:
		if m.role == domain.NegotiationInitiator {
			log.Warn().Str("module", "peer").Msg("offer collision, keeping local offer")
			return
		}
		m.closePCLocked()
		if err := m.newPCLocked(); err != nil {
			m.failLocked(err)
			return
		}
	case !m.pc.HasRemoteDescription():
		// connection built ahead of any description; reuse it
	case m.pc.SignalingStable():
		renegotiation = true
	case m.role == domain.NegotiationInitiator:
		log.Warn().Str("module", "peer").Msg("renegotiation collision, keeping local offer")
		return
	default:
		// A pending local offer cannot be rolled back in place. Drop the
		// connection and rejoin so the initiator offers a fresh one.
		log.Warn().Str("module", "peer").Msg("renegotiation collision, rejoining")
		m.closePCLocked()
		m.dropRemoteLocked()
		m.pending = nil
		m.setStateLocked(StateIdle)
		m.emitLater(core.Message{Type: core.EventJoinClass})
		return
	}

	if !renegotiation {
		m.setStateLocked(StateAnswering)
		m.armTimerLocked()
	}
	if err := m.pc.SetRemoteDescription(d); err != nil {
		log.Error().Err(err).Str("module", "peer").Msg("set remote offer")
		return
	}
	m.flushCandidatesLocked()

	answer, err := m.pc.CreateAnswer(context.Background())
	if err != nil {
		log.Error().Err(err).Str("module", "peer").Msg("create answer")
		m.failLocked(err)
		return
	}
	m.emitLater(core.Message{Type: core.EventSignal, Signal: core.DescriptionSignal(answer)})
}

func (m *Manager) handleAnswerLocked(d webrtc.SessionDescription) {
	if m.pc == nil {
		log.Warn().Str("module", "peer").Msg("answer without connection, ignored")
		return
	}
	if m.pc.SignalingStable() {
		log.Debug().Str("module", "peer").Msg("duplicate answer ignored")
		return
	}
	if err := m.pc.SetRemoteDescription(d); err != nil {
		log.Error().Err(err).Str("module", "peer").Msg("set remote answer")
		return
	}
	m.flushCandidatesLocked()
	m.stopTimerLocked()
	m.setStateLocked(StateConnected)
}

func (m *Manager) handleCandidateLocked(c webrtc.ICECandidateInit) {
	if m.pc != nil && m.pc.HasRemoteDescription() {
		if err := m.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("add candidate")
		}
		return
	}
	if len(m.pending) >= m.opts.CandidateBuffer {
		log.Warn().Str("module", "peer").Int("limit", m.opts.CandidateBuffer).Msg("candidate buffer full, dropping oldest")
		m.pending = m.pending[1:]
	}
	m.pending = append(m.pending, c)
}

func (m *Manager) flushCandidatesLocked() {
	if len(m.pending) == 0 {
		return
	}
	log.Debug().Str("module", "peer").Int("count", len(m.pending)).Msg("flushing buffered candidates")
	for _, c := range m.pending {
		if err := m.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("add buffered candidate")
		}
	}
	m.pending = nil
}

func (m *Manager) newPCLocked() error {
	pc, err := m.factory()
	if err != nil {
		log.Error().Err(err).Str("module", "peer").Msg("create peer connection")
		return err
	}
	m.gen++
	gen := m.gen
	m.pc = pc

	pc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		m.mu.Lock()
		defer m.unlock()
		if gen != m.gen || m.state == StateClosed {
			return
		}
		m.emitLater(core.Message{Type: core.EventSignal, Signal: core.CandidateSignal(c)})
	})
	pc.OnTrack(func(t core.Track, streamID string) { m.onTrack(gen, t, streamID) })
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) { m.onICEState(gen, s) })

	for _, t := range m.local() {
		if err := pc.AddTrack(t); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("track", t.ID()).Msg("attach local track")
		}
	}
	return nil
}

func (m *Manager) onTrack(gen uint64, t core.Track, streamID string) {
	m.mu.Lock()
	defer m.unlock()
	if gen != m.gen || m.state == StateClosed {
		t.Stop()
		return
	}
	if m.remote == nil || m.remote.ID() != streamID {
		m.dropRemoteLocked()
		m.remote = core.NewMediaStream(streamID)
	}
	m.remote.AddTrack(t)
	log.Info().Str("module", "peer").Str("kind", string(t.Kind())).Str("stream", streamID).Msg("remote track")

	st := m.remote
	if fn := m.listener.RemoteStream; fn != nil {
		m.later(func() { fn(st) })
	}
	m.stopTimerLocked()
	m.setStateLocked(StateConnected)
}

// quality maps an ICE state to link quality. ok reports whether the state
// says anything about connectivity.
func quality(s webrtc.ICEConnectionState) (q domain.ConnectionQuality, connected, ok bool) {
	switch s {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return domain.QualityExcellent, true, true
	case webrtc.ICEConnectionStateChecking:
		return domain.QualityGood, false, false
	case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed:
		return domain.QualityPoor, false, true
	}
	return "", false, false
}

func (m *Manager) onICEState(gen uint64, s webrtc.ICEConnectionState) {
	m.mu.Lock()
	defer m.unlock()
	if gen != m.gen || m.state == StateClosed {
		return
	}
	log.Info().Str("module", "peer").Str("ice", s.String()).Msg("ice state")

	q, connected, ok := quality(s)
	if q != "" {
		if fn := m.listener.Quality; fn != nil {
			m.later(func() { fn(q) })
		}
	}
	if ok {
		if fn := m.listener.Connectivity; fn != nil {
			m.later(func() { fn(connected) })
		}
	}
	switch s {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		m.stopTimerLocked()
		m.setStateLocked(StateConnected)
	case webrtc.ICEConnectionStateDisconnected:
		if m.state == StateConnected {
			m.setStateLocked(StateDisconnected)
		}
	case webrtc.ICEConnectionStateFailed:
		m.stopTimerLocked()
		m.setStateLocked(StateFailed)
	}
}

func (m *Manager) armTimerLocked() {
	m.stopTimerLocked()
	if m.opts.NegotiationTimeout <= 0 {
		return
	}
	gen := m.gen
	m.timer = time.AfterFunc(m.opts.NegotiationTimeout, func() { m.onTimeout(gen) })
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) onTimeout(gen uint64) {
	m.mu.Lock()
	defer m.unlock()
	if gen != m.gen {
		return
	}
	if m.state != StateOffering && m.state != StateAnswering {
		return
	}
	log.Warn().Str("module", "peer").Dur("after", m.opts.NegotiationTimeout).Msg("negotiation timed out")
	m.failLocked(ErrNegotiationTimeout)
}

// failLocked drops the connection and reports err.
func (m *Manager) failLocked(err error) {
	m.closePCLocked()
	m.pending = nil
	m.setStateLocked(StateFailed)
	if fn := m.listener.Failed; fn != nil {
		m.later(func() { fn(err) })
	}
}

// AddTrack attaches a track captured after the call started. On a live
// connection this starts a renegotiation offer from this side.
func (m *Manager) AddTrack(t core.LocalTrack) {
	m.mu.Lock()
	defer m.unlock()
	if m.pc == nil || m.state == StateClosed {
		return
	}
	if err := m.pc.AddTrack(t); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("track", t.ID()).Msg("attach track")
		return
	}
	if m.state != StateConnected {
		return
	}
	log.Info().Str("module", "peer").Str("track", t.ID()).Msg("renegotiating for new track")
	m.sendOfferLocked()
}

// SetTrackEnabled gates the sender of a local track.
func (m *Manager) SetTrackEnabled(id string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pc == nil {
		return
	}
	if err := m.pc.SetTrackEnabled(id, enabled); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("track", id).Msg("gate track")
	}
}

func (m *Manager) closePCLocked() {
	m.stopTimerLocked()
	if m.pc == nil {
		return
	}
	// Closing waits for in-flight callbacks, which need the lock.
	pc := m.pc
	m.later(func() {
		if err := pc.Close(); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("close peer connection")
		}
	})
	m.pc = nil
	m.gen++
}

func (m *Manager) dropRemoteLocked() {
	if m.remote == nil {
		return
	}
	m.remote.Stop()
	m.remote = nil
	if fn := m.listener.RemoteStream; fn != nil {
		m.later(func() { fn(nil) })
	}
}

// Reset closes the connection and returns to idle, keeping the role.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.unlock()
	if m.state == StateClosed {
		return
	}
	m.closePCLocked()
	m.dropRemoteLocked()
	m.pending = nil
	m.setStateLocked(StateIdle)
}

// Close tears everything down. Safe to call more than once or before any
// connection existed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.unlock()
	if m.state == StateClosed {
		return
	}
	m.closePCLocked()
	m.dropRemoteLocked()
	m.pending = nil
	m.setStateLocked(StateClosed)
}
