package app

import (
	"context"
	"sync"

	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/dkeye/RoomRelay/internal/domain"
)

// fakeStore is an in-memory core.Store with injectable failures.
type fakeStore struct {
	mu       sync.Mutex
	rooms    map[domain.RoomID]bool
	devices  map[domain.DeviceID]*domain.Device
	messages []domain.MessageRecord
	queries  []domain.RoomID
	opened   []domain.ConnectionRecord
	closed   []int64

	err error // returned by every device call when set
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:   make(map[domain.RoomID]bool),
		devices: make(map[domain.DeviceID]*domain.Device),
	}
}

func (f *fakeStore) RoomExists(_ context.Context, id domain.RoomID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.rooms[id], nil
}

func (f *fakeStore) FindDevice(_ context.Context, id domain.DeviceID) (*domain.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.devices[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) AssignDevice(_ context.Context, a core.DeviceAssignment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if a.CreateRoom {
		f.rooms[a.RoomID] = true
	}
	d, ok := f.devices[a.DeviceID]
	if !ok {
		d = &domain.Device{ID: a.DeviceID}
		f.devices[a.DeviceID] = d
	}
	d.Identity = a.Identity
	d.LastRoomID = a.RoomID
	return !ok, nil
}

func (f *fakeStore) RefreshDevice(_ context.Context, id domain.DeviceID, identity string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if d, ok := f.devices[id]; ok {
		d.Identity = identity
	}
	return nil
}

func (f *fakeStore) OpenConnection(_ context.Context, rec domain.ConnectionRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, rec)
	return int64(len(f.opened)), nil
}

func (f *fakeStore) CloseConnection(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeStore) LogMessage(_ context.Context, rec domain.MessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, rec)
	return nil
}

func (f *fakeStore) LogRoomQuery(_ context.Context, _ domain.DeviceID, room domain.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, room)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) messageLog() []domain.MessageRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.MessageRecord(nil), f.messages...)
}

// chanSignal collects frames; a non-nil err makes every send fail.
type chanSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	err    error
}

func (s *chanSignal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *chanSignal) Close() {}

func (s *chanSignal) received() []core.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Frame(nil), s.frames...)
}

// sequenceIDs yields ids in order, then repeats the last one.
func sequenceIDs(ids ...domain.RoomID) func() domain.RoomID {
	var mu sync.Mutex
	i := 0
	return func() domain.RoomID {
		mu.Lock()
		defer mu.Unlock()
		id := ids[min(i, len(ids)-1)]
		i++
		return id
	}
}
