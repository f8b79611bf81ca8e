package session

import (
	"context"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/dkeye/LiveClass/internal/domain"
	"github.com/rs/zerolog/log"
)

// ToggleMute flips the microphone and tells the other side.
func (o *Orchestrator) ToggleMute(ctx context.Context) {
	o.toggle(ctx, core.KindAudio)
}

// ToggleVideo flips the camera and tells the other side.
func (o *Orchestrator) ToggleVideo(ctx context.Context) {
	o.toggle(ctx, core.KindVideo)
}

func (o *Orchestrator) toggle(ctx context.Context, kind core.TrackKind) {
	if o.isEnded() {
		return
	}
	m := o.deps.Media
	var (
		track core.LocalTrack
		added bool
	)
	if kind == core.KindAudio {
		track, added = m.ToggleAudio(ctx)
	} else {
		track, added = m.ToggleVideo(ctx)
	}
	if track == nil {
		log.Warn().Str("module", "session").Str("kind", string(kind)).Msg("toggle without a track")
		return
	}

	if pm := o.peerManager(); pm != nil {
		if added {
			pm.AddTrack(track)
		} else {
			pm.SetTrackEnabled(track.ID(), track.Enabled())
		}
	}

	var ev core.Event
	switch {
	case kind == core.KindAudio && m.IsMuted():
		ev = core.EventMute
	case kind == core.KindAudio:
		ev = core.EventUnmute
	case m.IsVideoOff():
		ev = core.EventMuteVideo
	default:
		ev = core.EventUnmuteVideo
	}
	o.emit(ev)
	o.update(func(*CallState) {})
}

// announce repeats the local off states so a newly present peer renders them.
func (o *Orchestrator) announce() {
	if o.deps.Media.IsMuted() {
		o.emit(core.EventMute)
	}
	if o.deps.Media.IsVideoOff() {
		o.emit(core.EventMuteVideo)
	}
}

// adoptRemote records who the other side is. The server is authoritative,
// so a different id replaces the booking guess.
func (o *Orchestrator) adoptRemote(uid domain.UserID, name string, role domain.Role) {
	o.update(func(*CallState) {
		r := o.remote
		if r == nil || (r.UserID != "" && r.UserID != uid) {
			if r != nil {
				log.Warn().Str("module", "session").Str("expected", string(r.UserID)).Str("got", string(uid)).Msg("remote participant differs from booking")
			}
			r = &domain.RemoteParticipant{IsAudioOn: true, IsVideoOn: true}
			o.remote = r
		}
		r.UserID = uid
		if name != "" {
			r.Name = name
		}
		if role != "" {
			r.Role = role
		}
	})
}

// onJoined handles the server acknowledgement of our own join.
func (o *Orchestrator) onJoined(msg core.Message) {
	pm := o.peerManager()
	if pm == nil {
		return
	}
	role := msg.NegotiationRole
	pm.SetRole(role)
	o.update(func(cs *CallState) { cs.NegotiationRole = role })
	log.Info().Str("module", "session").Str("role", string(role)).Int("peers", len(msg.Peers)).Msg("joined")

	if len(msg.Peers) == 0 {
		return
	}
	p := msg.Peers[0]
	o.adoptRemote(p.ID, p.Username, p.Role)
	if role == domain.NegotiationInitiator {
		// Re-joined as initiator: the peer waiting for us will not offer.
		pm.HandleJoin(core.Message{Type: core.EventJoinClass, SessionID: o.opts.SessionID, UserID: p.ID, Role: p.Role})
	}
	o.announce()
}

func (o *Orchestrator) onJoinClass(msg core.Message) {
	if o.isLoopback(msg) {
		return
	}
	o.adoptRemote(msg.UserID, msg.Name, msg.Role)
	if pm := o.peerManager(); pm != nil {
		pm.HandleJoin(msg)
	}
	o.announce()
}

// onControl applies a remote mute or video event from the tracked peer only.
func (o *Orchestrator) onControl(msg core.Message) {
	if o.isLoopback(msg) {
		return
	}
	o.update(func(*CallState) {
		r := o.remote
		switch {
		case r == nil:
			r = &domain.RemoteParticipant{UserID: msg.UserID, Role: msg.Role, IsAudioOn: true, IsVideoOn: true}
			o.remote = r
		case r.UserID == "":
			r.UserID = msg.UserID
		case r.UserID != msg.UserID:
			log.Debug().Str("module", "session").Str("from", string(msg.UserID)).Msg("control event from unknown sender")
			return
		}
		switch msg.Type {
		case core.EventMute:
			r.IsAudioOn = false
		case core.EventUnmute:
			r.IsAudioOn = true
		case core.EventMuteVideo:
			r.IsVideoOn = false
		case core.EventUnmuteVideo:
			r.IsVideoOn = true
		}
	})
}

// onPeerLeft drops the remote media and waits for the peer to come back.
// The remaining member becomes the initiator on the server.
func (o *Orchestrator) onPeerLeft(msg core.Message) {
	if o.isLoopback(msg) {
		return
	}
	o.mu.Lock()
	r := o.remote
	o.mu.Unlock()
	if r != nil && r.UserID != "" && r.UserID != msg.UserID {
		return
	}
	log.Info().Str("module", "session").Str("user", string(msg.UserID)).Msg("peer left")

	if pm := o.peerManager(); pm != nil {
		pm.Reset()
		pm.SetRole(domain.NegotiationInitiator)
	}
	o.deps.Media.SetRemoteStream(nil)
	o.update(func(cs *CallState) {
		cs.Status = domain.StatusConnecting
		cs.IsConnecting = true
		cs.IsConnected = false
		cs.Quality = domain.QualityUnknown
		cs.RemoteStream = nil
		cs.NegotiationRole = domain.NegotiationInitiator
		if o.remote != nil {
			o.remote.IsAudioOn, o.remote.IsVideoOn = true, true
		}
	})
}

func (o *Orchestrator) onServerError(msg core.Message) {
	log.Warn().Str("module", "session").Str("reason", msg.Error).Msg("server error")
	switch msg.Error {
	case "session_full", "forbidden", "session_mismatch":
		o.fail(errServer(msg.Error))
	}
}

type errServer string

func (e errServer) Error() string { return "session: server rejected join: " + string(e) }

func (o *Orchestrator) onSignalingState(up bool) {
	o.update(func(cs *CallState) { cs.SignalingConnected = up })
}

// onReconnect rejoins after the signaling socket was redialed. The server
// told the peer we left, so negotiation starts over.
func (o *Orchestrator) onReconnect() {
	if o.isEnded() {
		return
	}
	if pm := o.peerManager(); pm != nil {
		pm.Reset()
	}
	o.emit(core.EventJoinClass)
}

// Retry restarts negotiation after a failure.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	ended, started, status := o.closing, o.started, o.state.Status
	o.mu.Unlock()
	switch {
	case ended:
		return ErrEnded
	case !started:
		return ErrNotStarted
	case status != domain.StatusFailed:
		return nil
	}
	log.Info().Str("module", "session").Msg("retrying call")

	if pm := o.peerManager(); pm != nil {
		pm.Reset()
	}
	o.update(func(cs *CallState) {
		cs.Status = domain.StatusConnecting
		cs.IsConnecting = true
		cs.Err = ""
	})
	if !o.deps.Signal.Connected() {
		if err := o.deps.Signal.Connect(ctx, o.opts.SessionID); err != nil {
			o.fail(err)
			return err
		}
		o.update(func(cs *CallState) { cs.SignalingConnected = true })
	}
	o.emit(core.EventJoinClass)
	return nil
}

// LeaveCall ends the call on purpose.
func (o *Orchestrator) LeaveCall() { o.teardown("leave") }

// Close ends the call when its owner goes away.
func (o *Orchestrator) Close() { o.teardown("close") }

// teardown is shared by every exit path and runs once.
func (o *Orchestrator) teardown(reason string) {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return
	}
	o.closing = true
	connected := o.started && o.user != nil
	stop := o.stopTick
	o.stopTick = nil
	unsubs := o.unsubs
	o.unsubs = nil
	pm := o.peer
	o.mu.Unlock()

	log.Info().Str("module", "session").Str("reason", reason).Msg("ending call")

	if stop != nil {
		close(stop)
	}
	for _, fn := range unsubs {
		fn()
	}
	if connected && o.deps.Signal.Connected() {
		o.emit(core.EventLeaveClass)
	}
	o.deps.Signal.Disconnect()
	if pm != nil {
		pm.Close()
	}
	o.deps.Media.Release()

	o.mu.Lock()
	o.endedAt = o.now()
	o.ended = true
	o.state.Status = domain.StatusEnded
	o.state.IsConnecting = false
	o.state.IsConnected = false
	o.state.SignalingConnected = false
	o.state.Quality = domain.QualityUnknown
	o.state.RemoteStream = nil
	snap := o.snapshotLocked()
	fns := o.listenersLocked()
	o.mu.Unlock()
	for _, l := range fns {
		l(snap)
	}
}
