// Package signaling is the agent side of the session-scoped signaling channel.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dkeye/LiveClass/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected     = errors.New("signaling: not connected")
	ErrAlreadyConnected = errors.New("signaling: connected to another session")
	errClosed           = errors.New("signaling: closed")
)

const writeWait = 5 * time.Second

type Options struct {
	// ServerURL is the http(s) or ws(s) base of the signaling server.
	ServerURL string
	Token     string

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	// ReconnectElapsed bounds the whole reconnect attempt; zero retries forever.
	ReconnectElapsed time.Duration
	// ReadTimeout drops a socket that delivered neither a message nor a
	// server ping for this long. Defaults just above the server ping period.
	ReadTimeout time.Duration

	Dialer *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.ReconnectInitial <= 0 {
		o.ReconnectInitial = 500 * time.Millisecond
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateConnected
	stateReconnecting
)

type handler struct {
	id int
	fn func(core.Message)
}

// Client is a core.SignalChannel over one gorilla websocket.
type Client struct {
	opts Options

	mu       sync.Mutex
	conn     *websocket.Conn
	session  core.SessionID
	state    state
	cancel   context.CancelFunc
	nextID   int
	handlers map[core.Event][]handler
	stateFns map[int]func(bool)
	reconFns map[int]func()

	writeMu sync.Mutex
}

func NewClient(opts Options) *Client {
	return &Client{
		opts:     opts.withDefaults(),
		handlers: make(map[core.Event][]handler),
		stateFns: make(map[int]func(bool)),
		reconFns: make(map[int]func()),
	}
}

// Endpoint builds the websocket url for sid.
func (c *Client) Endpoint(sid core.SessionID) (string, error) {
	u, err := url.Parse(c.opts.ServerURL)
	if err != nil {
		return "", fmt.Errorf("signaling: bad server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("signaling: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws/signal"
	u.RawQuery = url.Values{"session": {string(sid)}}.Encode()
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context, sid core.SessionID) (*websocket.Conn, error) {
	endpoint, err := c.Endpoint(sid)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("signaling: dial %s: %s: %w", endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("signaling: dial %s: %w", endpoint, err)
	}
	return conn, nil
}

// Connect opens the channel for sid. Connecting again to the same session is a no-op.
func (c *Client) Connect(ctx context.Context, sid core.SessionID) error {
	c.mu.Lock()
	if c.state != stateIdle {
		same := c.session == sid
		c.mu.Unlock()
		if same {
			return nil
		}
		return ErrAlreadyConnected
	}
	c.state = stateConnecting
	c.session = sid
	c.mu.Unlock()

	conn, err := c.dial(ctx, sid)

	c.mu.Lock()
	if err != nil {
		c.state = stateIdle
		c.mu.Unlock()
		return err
	}
	if c.state != stateConnecting {
		// Disconnect raced the dial.
		c.mu.Unlock()
		_ = conn.Close()
		return errClosed
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.conn = conn
	c.state = stateConnected
	c.mu.Unlock()

	log.Info().Str("module", "signaling").Str("session", string(sid)).Msg("connected")
	go c.readLoop(runCtx, conn)
	c.fireState(true)
	return nil
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// Emit sends msg stamped with the connected session. Delivery is not acknowledged.
func (c *Client) Emit(msg core.Message) error {
	c.mu.Lock()
	conn, sid := c.conn, c.session
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if msg.SessionID == "" {
		msg.SessionID = sid
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("signaling: encode %s: %w", msg.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("signaling: write %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) On(event core.Event, fn func(core.Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], handler{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		hs := c.handlers[event]
		for i, h := range hs {
			if h.id == id {
				c.handlers[event] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

// OnStateChange observes coarse connect and disconnect transitions.
func (c *Client) OnStateChange(fn func(connected bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.stateFns[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateFns, id)
	}
}

// OnReconnect fires after a dropped socket was redialed.
func (c *Client) OnReconnect(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.reconFns[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.reconFns, id)
	}
}

func (c *Client) fireState(connected bool) {
	c.mu.Lock()
	fns := make([]func(bool), 0, len(c.stateFns))
	for _, fn := range c.stateFns {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(connected)
	}
}

func (c *Client) fireReconnect() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.reconFns))
	for _, fn := range c.reconFns {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Client) dispatch(msg core.Message) {
	c.mu.Lock()
	hs := append([]handler(nil), c.handlers[msg.Type]...)
	c.mu.Unlock()
	if len(hs) == 0 {
		log.Debug().Str("module", "signaling").Str("type", string(msg.Type)).Msg("no listener")
		return
	}
	for _, h := range hs {
		h.fn(msg)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	wait := c.opts.ReadTimeout
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.dropped(ctx, conn, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		var msg core.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "signaling").Msg("bad message")
			continue
		}
		c.dispatch(msg)
	}
}

// dropped handles the end of a read loop. Unless Disconnect caused it, the
// client enters reconnecting and redials in the background.
func (c *Client) dropped(ctx context.Context, conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.state = stateReconnecting
	sid := c.session
	c.mu.Unlock()
	_ = conn.Close()

	log.Warn().Err(cause).Str("module", "signaling").Str("session", string(sid)).Msg("connection lost, reconnecting")
	c.fireState(false)
	go c.reconnect(ctx, sid)
}

func (c *Client) reconnect(ctx context.Context, sid core.SessionID) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectInitial
	b.MaxInterval = c.opts.ReconnectMax
	b.MaxElapsedTime = c.opts.ReconnectElapsed

	var conn *websocket.Conn
	op := func() error {
		cn, err := c.dial(ctx, sid)
		if err != nil {
			return err
		}
		conn = cn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Debug().Err(err).Str("module", "signaling").Dur("wait", wait).Msg("redial failed")
	}
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)

	c.mu.Lock()
	if err != nil || ctx.Err() != nil || c.state != stateReconnecting {
		if c.state == stateReconnecting {
			c.state = stateIdle
		}
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		if ctx.Err() == nil {
			log.Error().Err(err).Str("module", "signaling").Str("session", string(sid)).Msg("reconnect gave up")
		}
		return
	}
	c.conn = conn
	c.state = stateConnected
	c.mu.Unlock()

	log.Info().Str("module", "signaling").Str("session", string(sid)).Msg("reconnected")
	go c.readLoop(ctx, conn)
	c.fireState(true)
	c.fireReconnect()
}

// Disconnect closes the socket and stops any pending reconnect. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == stateIdle {
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == stateConnected
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	c.state = stateIdle
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	log.Info().Str("module", "signaling").Msg("disconnected")
	if wasConnected {
		c.fireState(false)
	}
}
