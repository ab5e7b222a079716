package app

import (
	"context"
	"sync"

	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/dkeye/RoomRelay/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	RoomID  domain.RoomID
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry indexes every live connection, joined or not.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.ConnID]*sessionEntry),
	}
}

// BindSignal tracks a freshly accepted connection and returns the live count.
func (r *Registry) BindSignal(id core.ConnID, cancel context.CancelFunc) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{Cancel: cancel}
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Int("clients", len(r.sessions)).Msg("bound signal")
	return len(r.sessions)
}

// BindRoom records the room a tracked connection joined.
func (r *Registry) BindRoom(id core.ConnID, roomID domain.RoomID, sess core.MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[id]
	if !ok {
		return false
	}
	entry.RoomID = roomID
	entry.Session = sess
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(roomID)).Msg("bound room")
	return true
}

func (r *Registry) RoomOf(id core.ConnID) (domain.RoomID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[id]
	if !ok || entry.RoomID == "" {
		return "", nil, false
	}
	return entry.RoomID, entry.Session, true
}

func (r *Registry) Unbind(id core.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Int("clients", len(r.sessions)).Msg("unbind session")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CancelAll cancels every tracked connection so its controller tears down.
func (r *Registry) CancelAll() int {
	r.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.Cancel != nil {
			cancels = append(cancels, e.Cancel)
		}
	}
	r.mu.RUnlock()
	for _, cancel := range cancels {
		cancel()
	}
	log.Info().Str("module", "app.registry").Int("sessions", len(cancels)).Msg("canceled sessions")
	return len(cancels)
}
