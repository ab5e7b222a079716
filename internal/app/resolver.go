package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/dkeye/RoomRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrRoomNotFound = errors.New("room not found")

// Resolver decides which room an identified device lands in.
type Resolver struct {
	Store core.DeviceStore
	Rooms core.RoomRegistry
	// NewRoomID generates candidate ids; domain.NewRoomID when nil.
	NewRoomID func() domain.RoomID
}

func NewResolver(store core.DeviceStore, rooms core.RoomRegistry) *Resolver {
	return &Resolver{Store: store, Rooms: rooms}
}

// Resolve joins the requested room, rejoins the device's last room, or
// creates a new one. ErrRoomNotFound is the only error returned; storage
// failures degrade to a memory-only room with a fallback status.
func (r *Resolver) Resolve(ctx context.Context, ident domain.Identification) (domain.Assignment, error) {
	a, err := r.resolve(ctx, ident)
	switch {
	case errors.Is(err, ErrRoomNotFound):
		log.Warn().Str("module", "app.resolver").Str("device", string(ident.DeviceID)).
			Str("room", string(ident.RoomID)).Msg("requested room does not exist")
		return domain.Assignment{Status: domain.StatusRoomNotFound}, err
	case err != nil:
		status := domain.StatusError
		if errors.Is(err, core.ErrUnavailable) {
			status = domain.StatusCreatedNewFallback
		}
		a = r.fallback(status)
		log.Error().Err(err).Str("module", "app.resolver").Str("device", string(ident.DeviceID)).
			Str("room", string(a.RoomID)).Str("status", string(status)).Msg("storage failed, using memory-only room")
		return a, nil
	}

	r.Rooms.Ensure(a.RoomID)
	log.Info().Str("module", "app.resolver").Str("device", string(ident.DeviceID)).
		Str("room", string(a.RoomID)).Str("status", string(a.Status)).Bool("new_device", a.NewDevice).Msg("room resolved")
	return a, nil
}

func (r *Resolver) resolve(ctx context.Context, ident domain.Identification) (domain.Assignment, error) {
	if ident.RoomID != "" {
		return r.joinSpecified(ctx, ident)
	}

	dev, err := r.Store.FindDevice(ctx, ident.DeviceID)
	switch {
	case err == nil && dev.LastRoomID != "":
		if err := r.Store.RefreshDevice(ctx, ident.DeviceID, ident.Identity); err != nil {
			return domain.Assignment{}, err
		}
		return domain.Assignment{RoomID: dev.LastRoomID, Status: domain.StatusReconnected}, nil
	case err != nil && !errors.Is(err, core.ErrNotFound):
		return domain.Assignment{}, err
	}

	id, err := r.uniqueRoomID(ctx)
	if err != nil {
		return domain.Assignment{}, err
	}
	created, err := r.Store.AssignDevice(ctx, core.DeviceAssignment{
		DeviceID:   ident.DeviceID,
		Identity:   ident.Identity,
		RoomID:     id,
		CreateRoom: true,
	})
	if err != nil {
		return domain.Assignment{}, err
	}
	return domain.Assignment{RoomID: id, NewDevice: created, Status: domain.StatusCreatedNew}, nil
}

func (r *Resolver) joinSpecified(ctx context.Context, ident domain.Identification) (domain.Assignment, error) {
	exists, err := r.Store.RoomExists(ctx, ident.RoomID)
	if err != nil {
		return domain.Assignment{}, err
	}
	if !exists {
		return domain.Assignment{}, fmt.Errorf("%w: %s", ErrRoomNotFound, ident.RoomID)
	}
	created, err := r.Store.AssignDevice(ctx, core.DeviceAssignment{
		DeviceID: ident.DeviceID,
		Identity: ident.Identity,
		RoomID:   ident.RoomID,
	})
	if err != nil {
		return domain.Assignment{}, err
	}
	return domain.Assignment{RoomID: ident.RoomID, NewDevice: created, Status: domain.StatusJoinedExisting}, nil
}

// uniqueRoomID draws ids until storage has none by that name.
func (r *Resolver) uniqueRoomID(ctx context.Context) (domain.RoomID, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		id := r.newID()
		exists, err := r.Store.RoomExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
}

// fallback mints a room with no durable backing.
func (r *Resolver) fallback(status domain.AssignStatus) domain.Assignment {
	id := r.newID()
	for r.Rooms.RoomExists(id) {
		id = r.newID()
	}
	r.Rooms.Ensure(id)
	return domain.Assignment{RoomID: id, NewDevice: true, Status: status}
}

func (r *Resolver) newID() domain.RoomID {
	if r.NewRoomID != nil {
		return r.NewRoomID()
	}
	return domain.NewRoomID()
}
