package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/dkeye/RoomRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrTargetNotFound = errors.New("target_not_found")

// Delivery summarizes one dispatch.
type Delivery struct {
	Kind      domain.MessageKind
	Target    domain.DeviceID
	Attempted int
	Delivered int
}

// Relay validates inbound messages and fans them out within a room.
// Auditing is best-effort and never affects delivery.
type Relay struct {
	Rooms core.RoomRegistry
	Audit core.AuditStore
}

func NewRelay(rooms core.RoomRegistry, audit core.AuditStore) *Relay {
	return &Relay{Rooms: rooms, Audit: audit}
}

func (r *Relay) Route(
	ctx context.Context,
	env *domain.Envelope,
	roomID domain.RoomID,
	sender core.ConnID,
	senderDevice domain.DeviceID,
) (Delivery, error) {
	room, ok := r.Rooms.Get(roomID)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("room", string(roomID)).Msg("message for unknown room")
		return Delivery{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	msg, err := env.Message()
	if err != nil {
		return Delivery{}, err
	}
	frame, err := json.Marshal(domain.NewForwarded(msg, senderDevice))
	if err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}

	if msg.Kind() == domain.KindDirect {
		return r.direct(ctx, room, msg, frame, senderDevice)
	}
	return r.broadcast(ctx, room, msg, frame, sender, senderDevice), nil
}

func (r *Relay) direct(
	ctx context.Context,
	room core.RoomService,
	msg domain.Message,
	frame core.Frame,
	from domain.DeviceID,
) (Delivery, error) {
	d := Delivery{Kind: domain.KindDirect, Target: msg.TargetDeviceID}
	target, ok := room.FindByDevice(msg.TargetDeviceID)
	if !ok {
		return d, fmt.Errorf("%w: target device %s not found in room", ErrTargetNotFound, msg.TargetDeviceID)
	}
	d.Attempted = 1
	if err := target.Signal().TrySend(frame); err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("room", string(room.ID())).
			Str("to", string(msg.TargetDeviceID)).Msg("direct send failed")
		return d, fmt.Errorf("error sending direct message: %w", err)
	}
	d.Delivered = 1

	r.audit(ctx, domain.MessageRecord{
		From:    from,
		To:      msg.TargetDeviceID,
		RoomID:  room.ID(),
		Content: string(msg.Raw),
		Kind:    domain.KindDirect,
	})
	log.Info().Str("module", "app.relay").Str("room", string(room.ID())).Str("from", string(from)).
		Str("to", string(msg.TargetDeviceID)).Msg("direct message sent")
	return d, nil
}

func (r *Relay) broadcast(
	ctx context.Context,
	room core.RoomService,
	msg domain.Message,
	frame core.Frame,
	sender core.ConnID,
	from domain.DeviceID,
) Delivery {
	res := room.Broadcast(sender, frame)
	for _, drop := range res.Dropped {
		log.Warn().Err(drop.Err).Str("module", "app.relay").Str("room", string(room.ID())).
			Str("conn", string(drop.Session.ID())).Msg("broadcast send failed, skipping")
	}

	r.audit(ctx, domain.MessageRecord{
		From:    from,
		RoomID:  room.ID(),
		Content: string(msg.Raw),
		Kind:    domain.KindBroadcast,
	})
	log.Info().Str("module", "app.relay").Str("room", string(room.ID())).Str("from", string(from)).
		Int("attempted", res.Attempted).Int("delivered", res.SendTo).Msg("broadcast sent")
	return Delivery{Kind: domain.KindBroadcast, Attempted: res.Attempted, Delivered: res.SendTo}
}

func (r *Relay) audit(ctx context.Context, rec domain.MessageRecord) {
	if r.Audit == nil {
		return
	}
	if err := r.Audit.LogMessage(ctx, rec); err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("room", string(rec.RoomID)).
			Str("kind", string(rec.Kind)).Msg("message log failed")
	}
}
