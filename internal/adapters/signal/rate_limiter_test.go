package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoomRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRoomRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "windows are per user")

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("a"))

	rl.Forget("b")
	rl.mu.Lock()
	_, ok := rl.history["b"]
	rl.mu.Unlock()
	assert.False(t, ok)
}
