package app

import (
	"sort"
	"sync"

	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/dkeye/RoomRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManager is the process-wide room registry. The map lock only guards
// room lookup and creation; member sets are locked per room.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
}

var _ core.RoomRegistry = (*RoomManager)(nil)

func NewRoomManager() *RoomManager {
	return &RoomManager{rooms: make(map[domain.RoomID]core.RoomService)}
}

// Ensure returns the room, creating an empty entry when absent.
func (f *RoomManager) Ensure(id domain.RoomID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(id)
	f.rooms[id] = room
	log.Debug().Str("module", "app.rooms").Str("room", string(id)).Int("rooms", len(f.rooms)).Msg("room entry created")
	return room
}

func (f *RoomManager) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManager) RoomExists(id domain.RoomID) bool {
	_, ok := f.Get(id)
	return ok
}

func (f *RoomManager) AddMember(roomID domain.RoomID, ms core.MemberSession) {
	f.Ensure(roomID).AddMember(ms)
}

// RemoveMember is a no-op for unknown rooms or members; the room entry stays.
func (f *RoomManager) RemoveMember(roomID domain.RoomID, id core.ConnID) bool {
	room, ok := f.Get(roomID)
	if !ok {
		return false
	}
	return room.RemoveMember(id)
}

func (f *RoomManager) ListMembers(roomID domain.RoomID, exclude core.ConnID) []domain.Member {
	room, ok := f.Get(roomID)
	if !ok {
		return []domain.Member{}
	}
	return room.MembersSnapshot(exclude)
}

func (f *RoomManager) MemberCount(roomID domain.RoomID) int {
	room, ok := f.Get(roomID)
	if !ok {
		return 0
	}
	return room.MemberCount()
}

// List returns every known room sorted by id.
func (f *RoomManager) List() []core.RoomInfo {
	f.mu.RLock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
