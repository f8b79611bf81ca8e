package turn

import (
	"testing"

	"github.com/dkeye/LiveClass/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUsers(t *testing.T) {
	keys, user, pass := parseUsers("alice=one,bob=two", "liveclass")
	require.Len(t, keys, 2)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "one", pass)
	assert.NotEqual(t, keys["alice"], keys["bob"])
}

func TestStartWithoutUsers(t *testing.T) {
	s := New(config.TURNConfig{Port: 0, Realm: "liveclass", PublicIP: "127.0.0.1"})
	require.ErrorIs(t, s.Start(), ErrNoUsers)
	require.NoError(t, s.Close())
}

func TestStartClose(t *testing.T) {
	s := New(config.TURNConfig{Port: 0, Realm: "liveclass", PublicIP: "127.0.0.1", Users: "lc=secret"})
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())

	ice := s.ICEServer()
	assert.Equal(t, "lc", ice.Username)
	assert.Equal(t, "secret", ice.Credential)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
