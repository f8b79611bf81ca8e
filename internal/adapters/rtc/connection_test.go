package rtc

import (
	"context"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracklessOfferReceivesBothKinds(t *testing.T) {
	c, err := NewWebRTCConnection(nil, webrtc.Configuration{}, "s1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	offer, err := c.CreateOffer(context.Background())
	require.NoError(t, err)
	assert.Contains(t, offer.SDP, "m=audio")
	assert.Contains(t, offer.SDP, "m=video")
	assert.Equal(t, 2, strings.Count(offer.SDP, "a=recvonly"))

	// later offers do not stack more receivers
	require.NoError(t, c.ensureReceivers())
	assert.Len(t, c.pc.GetTransceivers(), 2)
}
