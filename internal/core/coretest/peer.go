package coretest

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/pion/webrtc/v4"
)

var ErrClosed = errors.New("peer closed")

// Peer is a scripted core.PeerConnection. Callbacks fire synchronously
// from the Fire* helpers on the caller's goroutine.
type Peer struct {
	Name string

	mu           sync.Mutex
	Tracks       []core.LocalTrack
	Disabled     map[string]bool
	Offers       int
	Answers      int
	Local        *webrtc.SessionDescription
	Remote       *webrtc.SessionDescription
	Candidates   []webrtc.ICECandidateInit
	CandidateErr error
	Closed       bool
	signaling    webrtc.SignalingState

	onICE      func(webrtc.ICECandidateInit)
	onTrack    func(core.Track, string)
	onICEState func(webrtc.ICEConnectionState)
}

func (p *Peer) AddTrack(t core.LocalTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Tracks = append(p.Tracks, t)
	return nil
}

func (p *Peer) SetTrackEnabled(id string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Disabled == nil {
		p.Disabled = map[string]bool{}
	}
	p.Disabled[id] = !enabled
	return nil
}

func (p *Peer) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	p.Offers++
	d := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-from-" + p.Name}
	p.Local = &d
	p.signaling = webrtc.SignalingStateHaveLocalOffer
	return d, nil
}

func (p *Peer) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return webrtc.SessionDescription{}, ErrClosed
	}
	p.Answers++
	d := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-from-" + p.Name}
	p.Local = &d
	p.signaling = webrtc.SignalingStateStable
	return d, nil
}

func (p *Peer) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return ErrClosed
	}
	p.Remote = &d
	if d.Type == webrtc.SDPTypeOffer {
		p.signaling = webrtc.SignalingStateHaveRemoteOffer
	} else {
		p.signaling = webrtc.SignalingStateStable
	}
	return nil
}

func (p *Peer) HasRemoteDescription() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Remote != nil
}

// SignalingStable follows the offer/answer state machine; a fresh peer is stable.
func (p *Peer) SignalingStable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaling == webrtc.SignalingStateUnknown || p.signaling == webrtc.SignalingStateStable
}

func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CandidateErr != nil {
		return p.CandidateErr
	}
	p.Candidates = append(p.Candidates, c)
	return nil
}

func (p *Peer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = fn
}

func (p *Peer) OnTrack(fn func(core.Track, string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *Peer) OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICEState = fn
}

func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

func (p *Peer) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Closed
}

func (p *Peer) AppliedCandidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.Candidates...)
}

func (p *Peer) FireICECandidate(c webrtc.ICECandidateInit) {
	p.mu.Lock()
	fn := p.onICE
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (p *Peer) FireTrack(t core.Track, streamID string) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	if fn != nil {
		fn(t, streamID)
	}
}

func (p *Peer) FireICEState(s webrtc.ICEConnectionState) {
	p.mu.Lock()
	fn := p.onICEState
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Peers is a core.PeerFactory that remembers every peer it built.
type Peers struct {
	mu    sync.Mutex
	Name  string
	Built []*Peer
	Err   error
}

func (f *Peers) New() (core.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p := &Peer{Name: f.Name}
	f.Built = append(f.Built, p)
	return p, nil
}

// Last returns the most recently built peer, or nil.
func (f *Peers) Last() *Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Built) == 0 {
		return nil
	}
	return f.Built[len(f.Built)-1]
}

func (f *Peers) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Built)
}
