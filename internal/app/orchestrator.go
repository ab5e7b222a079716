package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/dkeye/RoomRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// auditTimeout bounds audit writes made after a connection context is gone.
const auditTimeout = 5 * time.Second

// Orchestrator is the use-case layer the signal controller drives.
type Orchestrator struct {
	Registry *Registry
	Rooms    core.RoomRegistry
	Resolver *Resolver
	Relay    *Relay
	Audit    core.AuditStore
	Policy   Policy
}

// NewOrchestrator wires the room subsystem over one store.
func NewOrchestrator(store core.Store, policy Policy) *Orchestrator {
	rooms := NewRoomManager()
	if policy == nil {
		policy = AllowAll{}
	}
	return &Orchestrator{
		Registry: NewRegistry(),
		Rooms:    rooms,
		Resolver: NewResolver(store, rooms),
		Relay:    NewRelay(rooms, store),
		Audit:    store,
		Policy:   policy,
	}
}

// Joined is the state a connection keeps after a successful identification.
type Joined struct {
	Assignment   domain.Assignment
	Session      core.MemberSession
	ConnectionID int64
}

// RoomSnapshot answers a membership query.
type RoomSnapshot struct {
	RoomID  domain.RoomID
	Total   int
	Clients []domain.Member
}

func (o *Orchestrator) Connect(id core.ConnID, cancel context.CancelFunc) int {
	return o.Registry.BindSignal(id, cancel)
}

// Identify admits, resolves and registers a connection. On error the
// connection holds no room and no durable connection id.
func (o *Orchestrator) Identify(
	ctx context.Context,
	id core.ConnID,
	sig core.SignalConnection,
	ident domain.Identification,
	clientIP string,
) (Joined, error) {
	if err := o.Policy.Admit(ident, clientIP); err != nil {
		return Joined{}, fmt.Errorf("%w: %v", ErrIdentityRejected, err)
	}

	a, err := o.Resolver.Resolve(ctx, ident)
	if err != nil {
		return Joined{Assignment: a}, err
	}

	sess := core.NewMemberSession(id, domain.NewMember(ident.DeviceID, ident.Identity), sig)
	o.Rooms.AddMember(a.RoomID, sess)
	o.Registry.BindRoom(id, a.RoomID, sess)

	joined := Joined{Assignment: a, Session: sess}
	if o.Audit != nil {
		dbID, err := o.Audit.OpenConnection(ctx, domain.ConnectionRecord{
			DeviceID: ident.DeviceID,
			RoomID:   a.RoomID,
			Identity: ident.Identity,
			ClientIP: clientIP,
		})
		if err != nil {
			log.Error().Err(err).Str("module", "app.orch").Str("conn", string(id)).Msg("connection log failed")
		}
		joined.ConnectionID = dbID
	}
	return joined, nil
}

func (o *Orchestrator) OnMessage(
	ctx context.Context,
	id core.ConnID,
	device domain.DeviceID,
	roomID domain.RoomID,
	env *domain.Envelope,
) (Delivery, error) {
	return o.Relay.Route(ctx, env, roomID, id, device)
}

// QueryRoom reports the room's occupants, the asker excluded from Clients.
func (o *Orchestrator) QueryRoom(ctx context.Context, id core.ConnID, device domain.DeviceID, roomID domain.RoomID) RoomSnapshot {
	if o.Audit != nil {
		if err := o.Audit.LogRoomQuery(ctx, device, roomID); err != nil {
			log.Error().Err(err).Str("module", "app.orch").Str("room", string(roomID)).Msg("room query log failed")
		}
	}
	return RoomSnapshot{
		RoomID:  roomID,
		Total:   o.Rooms.MemberCount(roomID),
		Clients: o.Rooms.ListMembers(roomID, id),
	}
}

// OnDisconnect releases everything a connection acquired. The room comes
// from the registry; connectionID is zero when no open event was recorded.
func (o *Orchestrator) OnDisconnect(ctx context.Context, id core.ConnID, connectionID int64) {
	if connectionID != 0 && o.Audit != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
		if err := o.Audit.CloseConnection(actx, connectionID); err != nil {
			log.Error().Err(err).Str("module", "app.orch").Int64("connection_id", connectionID).Msg("disconnect log failed")
		}
		cancel()
	}
	if roomID, _, ok := o.Registry.RoomOf(id); ok {
		o.Rooms.RemoveMember(roomID, id)
	}
	o.Registry.Unbind(id)
}
