package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	*httptest.Server
	conns   chan *websocket.Conn
	dials   atomic.Int32
	session atomic.Value
	auth    atomic.Value
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{conns: make(chan *websocket.Conn, 8)}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ws/signal", func(w http.ResponseWriter, r *http.Request) {
		fs.dials.Add(1)
		fs.session.Store(r.URL.Query().Get("session"))
		fs.auth.Store(r.Header.Get("Authorization"))
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-fs.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func newTestClient(fs *fakeServer) *Client {
	return NewClient(Options{
		ServerURL:        fs.URL,
		Token:            "tok",
		ReconnectInitial: 10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
		ReconnectElapsed: 2 * time.Second,
	})
}

func TestEndpoint(t *testing.T) {
	c := NewClient(Options{ServerURL: "https://example.com/base/"})
	u, err := c.Endpoint("sess 1")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/base/api/ws/signal?session=sess+1", u)

	c = NewClient(Options{ServerURL: "ftp://example.com"})
	_, err = c.Endpoint("s")
	assert.Error(t, err)
}

func TestConnectEmitAndDispatch(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background(), "sess-42"))
	srv := fs.accept(t)
	assert.Equal(t, "sess-42", fs.session.Load())
	assert.Equal(t, "Bearer tok", fs.auth.Load())
	assert.True(t, c.Connected())

	require.NoError(t, c.Connect(context.Background(), "sess-42"), "same session is a no-op")
	assert.ErrorIs(t, c.Connect(context.Background(), "other"), ErrAlreadyConnected)

	require.NoError(t, c.Emit(core.Message{Type: core.EventMute, UserID: "u1"}))
	var got core.Message
	require.NoError(t, srv.ReadJSON(&got))
	assert.Equal(t, core.EventMute, got.Type)
	assert.Equal(t, core.SessionID("sess-42"), got.SessionID)

	first := make(chan core.Message, 1)
	second := make(chan core.Message, 1)
	c.On(core.EventJoinClass, func(m core.Message) { first <- m })
	unsub := c.On(core.EventJoinClass, func(m core.Message) { second <- m })
	unsub()

	require.NoError(t, srv.WriteJSON(core.Message{Type: core.EventJoinClass, UserID: "peer"}))
	select {
	case m := <-first:
		assert.Equal(t, "peer", string(m.UserID))
	case <-time.After(2 * time.Second):
		t.Fatal("listener not called")
	}
	assert.Empty(t, second)
}

func TestEmitWhenOffline(t *testing.T) {
	c := NewClient(Options{ServerURL: "http://127.0.0.1:1"})
	assert.ErrorIs(t, c.Emit(core.Message{Type: core.EventPing}), ErrNotConnected)
	assert.Error(t, c.Connect(context.Background(), "s"))
	assert.False(t, c.Connected())
	c.Disconnect()
}

func TestReconnectAfterDrop(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)
	defer c.Disconnect()

	states := make(chan bool, 4)
	reconnected := make(chan struct{}, 1)
	c.OnStateChange(func(up bool) { states <- up })
	c.OnReconnect(func() { reconnected <- struct{}{} })

	require.NoError(t, c.Connect(context.Background(), "sess-42"))
	srv := fs.accept(t)
	assert.True(t, <-states)

	require.NoError(t, srv.Close())
	assert.False(t, <-states)

	srv2 := fs.accept(t)
	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect")
	}
	assert.True(t, <-states)
	assert.EqualValues(t, 2, fs.dials.Load())

	require.NoError(t, c.Emit(core.Message{Type: core.EventPing}))
	var got core.Message
	require.NoError(t, srv2.ReadJSON(&got))
	assert.Equal(t, core.EventPing, got.Type)
}

func TestSilentServerIsDropped(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)
	c.opts.ReadTimeout = 100 * time.Millisecond
	defer c.Disconnect()

	states := make(chan bool, 4)
	c.OnStateChange(func(up bool) { states <- up })

	require.NoError(t, c.Connect(context.Background(), "sess-42"))
	fs.accept(t)
	assert.True(t, <-states)

	select {
	case up := <-states:
		assert.False(t, up)
	case <-time.After(2 * time.Second):
		t.Fatal("silent socket kept open")
	}
	fs.accept(t)
	assert.True(t, <-states, "redialed after the timeout")
}

func TestServerPingsKeepSocketOpen(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)
	c.opts.ReadTimeout = 150 * time.Millisecond
	defer c.Disconnect()

	require.NoError(t, c.Connect(context.Background(), "sess-42"))
	srv := fs.accept(t)

	var pongs atomic.Int32
	srv.SetPongHandler(func(string) error { pongs.Add(1); return nil })
	go func() {
		for {
			if _, _, err := srv.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for i := 0; i < 8; i++ {
		require.NoError(t, srv.WriteControl(websocket.PingMessage, []byte("hb"), time.Now().Add(time.Second)))
		time.Sleep(50 * time.Millisecond)
	}

	assert.True(t, c.Connected())
	assert.EqualValues(t, 1, fs.dials.Load())
	assert.Eventually(t, func() bool { return pongs.Load() > 0 }, time.Second, 10*time.Millisecond)
}

func TestDisconnectStopsReconnect(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)

	require.NoError(t, c.Connect(context.Background(), "sess-42"))
	srv := fs.accept(t)

	c.Disconnect()
	c.Disconnect()
	assert.False(t, c.Connected())

	_, _, err := srv.ReadMessage()
	assert.Error(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, fs.dials.Load())
}

func TestMalformedMessageIgnored(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)
	defer c.Disconnect()

	got := make(chan core.Message, 1)
	c.On(core.EventPong, func(m core.Message) { got <- m })
	require.NoError(t, c.Connect(context.Background(), "sess-42"))
	srv := fs.accept(t)

	require.NoError(t, srv.WriteMessage(websocket.TextMessage, []byte("{not json")))
	raw, _ := json.Marshal(core.Message{Type: core.EventPong})
	require.NoError(t, srv.WriteMessage(websocket.TextMessage, raw))

	select {
	case m := <-got:
		assert.Equal(t, core.EventPong, m.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("pong not dispatched")
	}
	assert.True(t, c.Connected())
}
