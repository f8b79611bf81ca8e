package signal

import "github.com/dkeye/LiveClass/internal/core"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
	msg core.Message,
) {
	ctl.sendJSON(conn, core.Message{Type: core.EventPong, SessionID: msg.SessionID})
}
