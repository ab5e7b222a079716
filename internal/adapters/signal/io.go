package signal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"time"

	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// writePump drains the send queue to the socket and closes the socket when
// the queue is closed, a write fails, or ctx ends.
func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var tick <-chan time.Time
	if ctl.opts.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			writeClose(c.conn, websocket.CloseGoingAway)
			return
		case data, ok := <-c.send:
			if !ok {
				writeClose(c.conn, websocket.CloseNormalClosure)
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-tick:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func writeClose(conn WSConn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// readFrame waits for the next message, bounded by timeout when positive.
func (ctl *SignalWSController) readFrame(s *session, timeout time.Duration) ([]byte, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := s.conn.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, data, err := s.conn.conn.ReadMessage()
	return data, err
}

// logReadError reports why a read loop ended at a level matching the cause.
func logReadError(s *session, err error) {
	ev := log.Warn()
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		ev = log.Info()
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		ev = log.Info()
	default:
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			ev = log.Info()
		}
	}
	ev.Err(err).Str("module", "signal").Str("conn", string(s.id)).Str("state", s.state.String()).Msg("read loop ended")
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON enqueue")
	}
}
