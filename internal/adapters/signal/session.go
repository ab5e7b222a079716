package signal

import (
	"context"
	"sync"

	"github.com/dkeye/RoomRelay/internal/app"
	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/dkeye/RoomRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

type state int

const (
	stateConnecting state = iota
	stateIdentifying
	stateActive
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateIdentifying:
		return "identifying"
	case stateActive:
		return "active"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// session is the lifecycle state of one connection. Only the goroutine
// running Serve touches it.
type session struct {
	id       core.ConnID
	conn     *WsSignalConn
	clientIP string
	state    state

	ident  domain.Identification
	joined app.Joined
	once   sync.Once
}

func (s *session) roomID() domain.RoomID { return s.joined.Assignment.RoomID }

func (ctl *SignalWSController) run(ctx context.Context, s *session) {
	s.state = stateConnecting
	ctl.sendJSON(s.conn, connectionMsg{Type: "connection", Message: "Connected successfully"})

	s.state = stateIdentifying
	if !ctl.identify(ctx, s) {
		return
	}

	s.state = stateActive
	ctl.loop(ctx, s)
}

// finalize is the single teardown path of a connection, whatever state it
// reached.
func (ctl *SignalWSController) finalize(ctx context.Context, s *session, cancel context.CancelFunc, pumpDone <-chan struct{}) {
	s.once.Do(func() {
		from := s.state
		s.state = stateClosed
		ctl.Orch.OnDisconnect(ctx, s.id, s.joined.ConnectionID)
		s.conn.Close()
		<-pumpDone
		cancel()
		log.Info().Str("module", "signal").Str("conn", string(s.id)).Str("device", string(s.ident.DeviceID)).
			Str("room", string(s.roomID())).Str("from_state", from.String()).Msg("connection closed")
	})
}
