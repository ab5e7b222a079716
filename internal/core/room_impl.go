package core

import (
	"slices"
	"sync"

	"github.com/dkeye/RoomRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	id     domain.RoomID
	mu     sync.RWMutex
	byConn map[ConnID]MemberSession
	order  []ConnID
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:     id,
		byConn: make(map[ConnID]MemberSession),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *roomImpl) AddMember(ms MemberSession) {
	id := ms.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byConn[id]; !ok {
		r.order = append(r.order, id)
	}
	r.byConn[id] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(id)).
		Str("device", string(ms.Meta().DeviceID)).Int("members", len(r.byConn)).Msg("member added")
}

func (r *roomImpl) RemoveMember(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byConn[id]; !ok {
		return false
	}
	delete(r.byConn, id)
	r.order = slices.DeleteFunc(r.order, func(c ConnID) bool { return c == id })
	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("conn", string(id)).
		Int("members", len(r.byConn)).Msg("member removed")
	return true
}

func (r *roomImpl) Broadcast(from ConnID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, id := range r.order {
		if id == from {
			continue
		}
		m := r.byConn[id]
		res.Attempted++
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, Drop{Session: m, Err: err})
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("from", string(from)).
		Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) FindByDevice(device domain.DeviceID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if ms := r.byConn[id]; ms.Meta().DeviceID == device {
			return ms, true
		}
	}
	return nil, false
}

func (r *roomImpl) MembersSnapshot(exclude ConnID) []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Member, 0, len(r.order))
	for _, id := range r.order {
		if id == exclude {
			continue
		}
		out = append(out, r.byConn[id].Meta())
	}
	return out
}
