package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/LiveClass/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cid core.ConnID, scope core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		ctl.onClosed(cid)
		c.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, cid, scope, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cid core.ConnID, scope core.SessionID, c *WsSignalConn, data []byte) {
	var msg core.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, msg.SessionID, "bad_payload")
		return
	}

	if user, ok := ctl.Orch.Registry.User(cid); ok && ctl.Limiter != nil && !ctl.Limiter.Allow(user.ID) {
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Str("type", string(msg.Type)).Msg("rate limited")
		ctl.sendError(c, msg.SessionID, "rate_limited")
		return
	}

	switch {
	case msg.Type == core.EventJoinClass:
		ctl.handleJoin(ctx, cid, scope, c, msg)
	case msg.Type == core.EventLeaveClass:
		ctl.handleLeave(cid)
	case msg.Type == core.EventPing:
		ctl.handlePing(c, msg)
	case msg.Type == core.EventSignal, msg.Type.IsControl():
		ctl.handleRelay(cid, c, msg)
	default:
		log.Warn().Str("module", "signal").Str("type", string(msg.Type)).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, sid core.SessionID, reason string) {
	ctl.sendJSON(c, core.Message{Type: core.EventError, SessionID: sid, Error: reason})
}

func (ctl *SignalWSController) onClosed(cid core.ConnID) {
	user, ok := ctl.Orch.Registry.User(cid)
	sid, removed := ctl.Orch.OnDisconnect(cid)
	if ok && removed {
		ctl.notifyPeerLeft(sid, user)
	}
	if ok && ctl.Limiter != nil {
		ctl.Limiter.Forget(user.ID)
	}
}
