package rtc

import (
	"testing"

	"github.com/dkeye/LiveClass/internal/config"
	"github.com/dkeye/LiveClass/internal/core"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
)

func packet(seq uint16, n int) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: make([]byte, n)}
}

func TestObserveLoss(t *testing.T) {
	tests := []struct {
		name string
		seqs []uint16
		lost uint64
	}{
		{name: "in order", seqs: []uint16{1, 2, 3, 4}, lost: 0},
		{name: "gap", seqs: []uint16{1, 2, 5, 6}, lost: 2},
		{name: "wrap", seqs: []uint16{65534, 65535, 0, 2}, lost: 1},
		{name: "late packet", seqs: []uint16{10, 12, 11, 13}, lost: 1},
		{name: "duplicate", seqs: []uint16{7, 7, 8}, lost: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &RemoteTrack{}
			for _, s := range tt.seqs {
				rt.observe(packet(s, 10))
			}
			st := rt.Stats()
			assert.Equal(t, tt.lost, st.Lost)
			assert.Equal(t, uint64(len(tt.seqs)), st.Packets)
			assert.Equal(t, uint64(10*len(tt.seqs)), st.Bytes)
		})
	}
}

func TestRemoteTrackStop(t *testing.T) {
	rt := &RemoteTrack{}
	assert.Equal(t, core.ReadyStateLive, rt.ReadyState())
	rt.Stop()
	rt.Stop()
	assert.Equal(t, core.ReadyStateEnded, rt.ReadyState())
}

func TestDefaultWebRTCConfig(t *testing.T) {
	cfg := DefaultWebRTCConfig(nil)
	if assert.Len(t, cfg.ICEServers, 1) {
		assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers[0].URLs)
	}

	cfg = DefaultWebRTCConfig([]config.ICEServer{
		{URLs: []string{"stun:a"}},
		{URLs: []string{"turn:b"}, Username: "u", Credential: "p"},
	})
	if assert.Len(t, cfg.ICEServers, 2) {
		assert.Equal(t, "u", cfg.ICEServers[1].Username)
		assert.Equal(t, "p", cfg.ICEServers[1].Credential)
	}
}
