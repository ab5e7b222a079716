package core

import (
	"context"
	"errors"

	"github.com/dkeye/RoomRelay/internal/domain"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable means no durable storage could be reached.
	ErrUnavailable = errors.New("storage unavailable")
)

// DeviceAssignment links a device to a room, creating the room when CreateRoom is set.
type DeviceAssignment struct {
	DeviceID   domain.DeviceID
	Identity   string
	RoomID     domain.RoomID
	CreateRoom bool
}

// DeviceStore is the durable surface room resolution depends on.
type DeviceStore interface {
	RoomExists(ctx context.Context, id domain.RoomID) (bool, error)
	FindDevice(ctx context.Context, id domain.DeviceID) (*domain.Device, error)
	// AssignDevice upserts the device with its new room; created reports a first sighting.
	AssignDevice(ctx context.Context, a DeviceAssignment) (created bool, err error)
	// RefreshDevice updates identity and last-connected time only.
	RefreshDevice(ctx context.Context, id domain.DeviceID, identity string) error
}

// AuditStore records connection history and relayed traffic.
type AuditStore interface {
	OpenConnection(ctx context.Context, rec domain.ConnectionRecord) (int64, error)
	CloseConnection(ctx context.Context, id int64) error
	LogMessage(ctx context.Context, rec domain.MessageRecord) error
	LogRoomQuery(ctx context.Context, device domain.DeviceID, room domain.RoomID) error
}

type Store interface {
	DeviceStore
	AuditStore
	Close() error
}
