package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/dkeye/RoomRelay/internal/domain"
)

// RoomExists reports whether the room has a durable record.
func (s *Store) RoomExists(ctx context.Context, id domain.RoomID) (bool, error) {
	var count int64
	err := s.withConn(ctx, "room exists", func(tx *gorm.DB) error {
		return tx.Model(&Room{}).Where("room_id = ?", string(id)).Count(&count).Error
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindDevice returns core.ErrNotFound for devices never seen before.
func (s *Store) FindDevice(ctx context.Context, id domain.DeviceID) (*domain.Device, error) {
	var row Device
	err := s.withConn(ctx, "find device", func(tx *gorm.DB) error {
		if err := tx.First(&row, "device_id = ?", string(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// AssignDevice creates the room when asked and upserts the device link in one transaction.
func (s *Store) AssignDevice(ctx context.Context, a core.DeviceAssignment) (bool, error) {
	created := false
	now := s.now()
	room := string(a.RoomID)
	err := s.withConn(ctx, "assign device", func(tx *gorm.DB) error {
		return tx.Transaction(func(tx *gorm.DB) error {
			if a.CreateRoom {
				if err := tx.Create(&Room{RoomID: room, CreatedAt: now}).Error; err != nil {
					return err
				}
			}

			var existing []Device
			if err := tx.Where("device_id = ?", string(a.DeviceID)).Limit(1).Find(&existing).Error; err != nil {
				return err
			}
			if len(existing) == 0 {
				created = true
				return tx.Create(&Device{
					DeviceID:         string(a.DeviceID),
					FirstConnectedAt: now,
					LastConnectedAt:  now,
					LastRoomID:       &room,
					LastIdentity:     a.Identity,
				}).Error
			}
			return tx.Model(&Device{}).Where("device_id = ?", string(a.DeviceID)).Updates(map[string]any{
				"last_connected_at": now,
				"last_room_id":      room,
				"last_identity":     a.Identity,
			}).Error
		})
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// RefreshDevice touches a known device on reconnect.
func (s *Store) RefreshDevice(ctx context.Context, id domain.DeviceID, identity string) error {
	return s.withConn(ctx, "refresh device", func(tx *gorm.DB) error {
		return tx.Model(&Device{}).Where("device_id = ?", string(id)).Updates(map[string]any{
			"last_connected_at": s.now(),
			"last_identity":     identity,
		}).Error
	})
}

func (d *Device) toDomain() *domain.Device {
	out := &domain.Device{
		ID:               domain.DeviceID(d.DeviceID),
		Identity:         d.LastIdentity,
		FirstConnectedAt: d.FirstConnectedAt,
		LastConnectedAt:  d.LastConnectedAt,
	}
	if d.LastRoomID != nil {
		out.LastRoomID = domain.RoomID(*d.LastRoomID)
	}
	return out
}
