package store

import (
	"context"

	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/dkeye/RoomRelay/internal/domain"
)

// Disabled stands in when no database is configured.
// Resolution degrades to memory-only rooms; audit writes are dropped.
type Disabled struct{}

var _ core.Store = Disabled{}

func (Disabled) RoomExists(context.Context, domain.RoomID) (bool, error) {
	return false, core.ErrUnavailable
}

func (Disabled) FindDevice(context.Context, domain.DeviceID) (*domain.Device, error) {
	return nil, core.ErrUnavailable
}

func (Disabled) AssignDevice(context.Context, core.DeviceAssignment) (bool, error) {
	return false, core.ErrUnavailable
}

func (Disabled) RefreshDevice(context.Context, domain.DeviceID, string) error {
	return core.ErrUnavailable
}

func (Disabled) OpenConnection(context.Context, domain.ConnectionRecord) (int64, error) {
	return 0, nil
}

func (Disabled) CloseConnection(context.Context, int64) error { return nil }

func (Disabled) LogMessage(context.Context, domain.MessageRecord) error { return nil }

func (Disabled) LogRoomQuery(context.Context, domain.DeviceID, domain.RoomID) error { return nil }

func (Disabled) Close() error { return nil }
