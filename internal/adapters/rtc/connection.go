package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/LiveClass/internal/config"
	"github.com/dkeye/LiveClass/internal/core"
	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrUnknownTrack = errors.New("unknown local track")

type senderEntry struct {
	sender *webrtc.RTPSender
	track  webrtc.TrackLocal
}

// WebRTCConnection adapts a pion PeerConnection to core.PeerConnection.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	sid    core.SessionID
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	senders    map[string]*senderEntry
	onICE      func(webrtc.ICECandidateInit)
	onTrack    func(core.Track, string)
	onICEState func(webrtc.ICEConnectionState)
	closed     bool
}

// DefaultWebRTCConfig builds the ICE configuration. With no servers
// configured it falls back to a public STUN server.
func DefaultWebRTCConfig(servers []config.ICEServer) webrtc.Configuration {
	if len(servers) == 0 {
		servers = []config.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		out = append(out, ice)
	}
	return webrtc.Configuration{ICEServers: out}
}

// NewAPI builds a pion API whose media engine carries the encoders of
// codecs, so captured tracks can be bound. A nil selector keeps pion's
// default codecs.
func NewAPI(codecs *mediadevices.CodecSelector) (*webrtc.API, error) {
	me := &webrtc.MediaEngine{}
	if codecs == nil {
		if err := me.RegisterDefaultCodecs(); err != nil {
			return nil, fmt.Errorf("register codecs: %w", err)
		}
	} else {
		codecs.Populate(me)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(me)), nil
}

// Factory returns a core.PeerFactory producing connections for sid. api may
// be nil.
func Factory(api *webrtc.API, cfg webrtc.Configuration, sid core.SessionID) core.PeerFactory {
	return func() (core.PeerConnection, error) {
		return NewWebRTCConnection(api, cfg, sid)
	}
}

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, sid core.SessionID) (*WebRTCConnection, error) {
	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if api != nil {
		pc, err = api.NewPeerConnection(cfg)
	} else {
		pc, err = webrtc.NewPeerConnection(cfg)
	}
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &WebRTCConnection{
		pc:      pc,
		sid:     sid,
		ctx:     ctx,
		cancel:  cancel,
		senders: make(map[string]*senderEntry),
	}
	c.bind()
	return c, nil
}

func (c *WebRTCConnection) bind() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
		c.mu.Lock()
		fn := c.onICEState
		c.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		logger := log.With().
			Str("module", "webrtc").
			Str("sid", string(c.sid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Logger()
		logger.Info().Msg("OnTrack received")

		rt := newRemoteTrack(track, receiver)
		go rt.loop(c.ctx, &logger)

		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(rt, track.StreamID())
		}
	})
}

func (c *WebRTCConnection) AddTrack(t core.LocalTrack) error {
	sender, err := c.pc.AddTrack(t.TrackLocal())
	if err != nil {
		return fmt.Errorf("add track %s: %w", t.ID(), err)
	}
	c.mu.Lock()
	c.senders[t.ID()] = &senderEntry{sender: sender, track: t.TrackLocal()}
	c.mu.Unlock()

	// RTCP must be read for interceptors (NACK, reports) to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	if !t.Enabled() {
		return c.SetTrackEnabled(t.ID(), false)
	}
	return nil
}

// SetTrackEnabled detaches the sender's track while disabled, which sends
// nothing instead of black frames or silence.
func (c *WebRTCConnection) SetTrackEnabled(trackID string, enabled bool) error {
	c.mu.Lock()
	e, ok := c.senders[trackID]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownTrack
	}
	if enabled {
		return e.sender.ReplaceTrack(e.track)
	}
	return e.sender.ReplaceTrack(nil)
}

// ensureReceivers adds a receive-only transceiver for every kind without a
// local track. An offer with no m-lines never starts ICE, and the remote
// side could not send that kind to us.
func (c *WebRTCConnection) ensureReceivers() error {
	have := map[webrtc.RTPCodecType]bool{}
	for _, t := range c.pc.GetTransceivers() {
		have[t.Kind()] = true
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		_, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly})
		if err != nil {
			return fmt.Errorf("add %s receiver: %w", kind, err)
		}
	}
	return nil
}

func (c *WebRTCConnection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.ensureReceivers(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local offer: %w", err)
	}
	return offer, nil
}

func (c *WebRTCConnection) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	return answer, nil
}

func (c *WebRTCConnection) SetRemoteDescription(d webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(d)
}

func (c *WebRTCConnection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *WebRTCConnection) SignalingStable() bool {
	return c.pc.SignalingState() == webrtc.SignalingStateStable
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(core.Track, string)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	c.mu.Lock()
	c.onICEState = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("close error")
		return err
	}
	log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("closed")
	return nil
}
