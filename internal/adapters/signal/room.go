package signal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/RoomRelay/internal/app"
	"github.com/dkeye/RoomRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// identify reads the first frame and places the connection into a room.
// It returns false when the connection must be closed.
func (ctl *SignalWSController) identify(ctx context.Context, s *session) bool {
	data, err := ctl.readFrame(s, ctl.opts.IdentifyTimeout)
	if err != nil {
		logReadError(s, err)
		return false
	}

	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.id)).Msg("bad identity payload")
		ctl.sendError(s.conn, "Invalid JSON format for identity")
		return false
	}
	ident := env.Identification()
	if err := ident.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.id)).Msg("identity rejected")
		ctl.sendError(s.conn, identityError(err))
		return false
	}
	s.ident = ident

	joined, err := ctl.Orch.Identify(ctx, s.id, s.conn, ident, s.clientIP)
	switch {
	case errors.Is(err, app.ErrRoomNotFound):
		ctl.sendError(s.conn, fmt.Sprintf("Room %s does not exist", ident.RoomID))
		return false
	case err != nil:
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.id)).Msg("identify failed")
		ctl.sendError(s.conn, err.Error())
		return false
	}
	s.joined = joined

	a := joined.Assignment
	ctl.sendJSON(s.conn, roomMsg{
		Type:    "room",
		RoomID:  a.RoomID,
		Status:  a.Status,
		Message: fmt.Sprintf("%s: joined room %s", a.Status, a.RoomID),
	})
	log.Info().Str("module", "signal").Str("conn", string(s.id)).Str("device", string(ident.DeviceID)).
		Str("room", string(a.RoomID)).Str("status", string(a.Status)).Bool("memory_only", a.Status.Fallback()).Msg("joined")
	return true
}

func identityError(err error) string {
	switch {
	case errors.Is(err, domain.ErrIdentityEmpty):
		return "Missing identity field"
	case errors.Is(err, domain.ErrDeviceIDEmpty):
		return "Missing device_id field"
	}
	return err.Error()
}

// loop relays frames until the socket fails or closes.
func (ctl *SignalWSController) loop(ctx context.Context, s *session) {
	if idle := ctl.opts.IdleTimeout; idle > 0 {
		s.conn.conn.SetPongHandler(func(string) error {
			return s.conn.conn.SetReadDeadline(time.Now().Add(idle))
		})
	}
	for {
		data, err := ctl.readFrame(s, ctl.opts.IdleTimeout)
		if err != nil {
			logReadError(s, err)
			return
		}
		ctl.handleMessage(ctx, s, data)
	}
}

func (ctl *SignalWSController) handleMessage(ctx context.Context, s *session, data []byte) {
	if ctl.limiter != nil && !ctl.limiter.Allow(s.ident.DeviceID) {
		log.Warn().Str("module", "signal").Str("device", string(s.ident.DeviceID)).Msg("rate limited")
		ctl.sendError(s.conn, "rate limit exceeded")
		return
	}

	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(s.id)).Msg("bad message payload")
		ctl.sendError(s.conn, "Invalid JSON format")
		return
	}

	if env.Type() == domain.TypeQueryRoom {
		ctl.handleQueryRoom(ctx, s)
		return
	}

	if _, err := ctl.Orch.OnMessage(ctx, s.id, s.ident.DeviceID, s.roomID(), env); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(s.id)).Msg("route failed")
		ctl.sendError(s.conn, err.Error())
	}
}

func (ctl *SignalWSController) handleQueryRoom(ctx context.Context, s *session) {
	snap := ctl.Orch.QueryRoom(ctx, s.id, s.ident.DeviceID, s.roomID())
	ctl.sendJSON(s.conn, roomInfoMsg{
		Type:         "room_info",
		RoomID:       snap.RoomID,
		TotalClients: snap.Total,
		Clients:      snap.Clients,
	})
}
