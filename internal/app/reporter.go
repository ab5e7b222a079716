package app

import (
	"context"
	"time"

	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/rs/zerolog/log"
)

// Status is a point-in-time view of the relay.
type Status struct {
	Clients int             `json:"clients"`
	Rooms   []core.RoomInfo `json:"rooms"`
}

// Reporter periodically logs connected clients and occupied rooms.
type Reporter struct {
	Registry *Registry
	Rooms    core.RoomRegistry
	Interval time.Duration
}

func (r *Reporter) Snapshot() Status {
	return Status{Clients: r.Registry.Count(), Rooms: r.Rooms.List()}
}

// Run blocks until ctx is done. A non-positive interval disables reporting.
func (r *Reporter) Run(ctx context.Context) {
	if r.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	st := r.Snapshot()
	log.Info().Str("module", "app.reporter").Int("clients", st.Clients).Int("rooms", len(st.Rooms)).Msg("server status")
	for _, info := range st.Rooms {
		if info.MemberCount == 0 {
			continue
		}
		room, ok := r.Rooms.Get(info.ID)
		if !ok {
			continue
		}
		labels := memberLabels(room)
		log.Info().Str("module", "app.reporter").Str("room", string(info.ID)).Strs("members", labels).Msg("room status")
	}
}

func memberLabels(room core.RoomService) []string {
	members := room.MembersSnapshot("")
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, string(m.DeviceID)+":"+m.Identity)
	}
	return out
}
