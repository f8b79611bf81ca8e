package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type TrackStats struct {
	Packets uint64
	Lost    uint64
	Bytes   uint64
}

// RemoteTrack is an inbound track. Its loop drains RTP so the receiver's
// buffers never fill, and keeps loss counters from sequence gaps.
type RemoteTrack struct {
	src      *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver
	id       string
	kind     core.TrackKind

	ended   atomic.Bool
	enabled atomic.Bool

	mu      sync.Mutex
	stats   TrackStats
	lastSeq uint16
	seen    bool
}

func newRemoteTrack(src *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) *RemoteTrack {
	kind := core.KindAudio
	if src.Kind() == webrtc.RTPCodecTypeVideo {
		kind = core.KindVideo
	}
	t := &RemoteTrack{src: src, receiver: receiver, id: src.ID(), kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *RemoteTrack) ID() string           { return t.id }
func (t *RemoteTrack) Kind() core.TrackKind { return t.kind }
func (t *RemoteTrack) Enabled() bool        { return t.enabled.Load() }
func (t *RemoteTrack) SetEnabled(v bool)    { t.enabled.Store(v) }

func (t *RemoteTrack) ReadyState() core.ReadyState {
	if t.ended.Load() {
		return core.ReadyStateEnded
	}
	return core.ReadyStateLive
}

func (t *RemoteTrack) Stop() {
	if !t.ended.CompareAndSwap(false, true) {
		return
	}
	if t.receiver != nil {
		_ = t.receiver.Stop()
	}
}

func (t *RemoteTrack) Stats() TrackStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *RemoteTrack) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("remote track ctx done")
			t.Stop()
			return
		default:
		}
		pkt, _, err := t.src.ReadRTP()
		if err != nil {
			st := t.Stats()
			logger.Info().Err(err).Uint64("packets", st.Packets).Uint64("lost", st.Lost).Msg("remote track ended")
			t.Stop()
			return
		}
		t.observe(pkt)
	}
}

func (t *RemoteTrack) observe(pkt *rtp.Packet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Packets++
	t.stats.Bytes += uint64(len(pkt.Payload))
	seq := pkt.SequenceNumber
	if t.seen {
		// uint16 arithmetic handles wrap-around; late or duplicate
		// packets fall in the upper half and are not counted as loss.
		if gap := seq - t.lastSeq; gap > 1 && gap < 1<<15 {
			t.stats.Lost += uint64(gap - 1)
		}
		if diff := seq - t.lastSeq; diff == 0 || diff >= 1<<15 {
			return
		}
	}
	t.lastSeq = seq
	t.seen = true
}
