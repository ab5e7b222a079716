// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
	"time"
)

const (
	MaxDeviceIDLen = 255
	MaxIdentityLen = 255
)

var (
	ErrDeviceIDEmpty = errors.New("device_id empty")
	ErrIdentityEmpty = errors.New("identity empty")
	ErrFieldTooLong  = errors.New("field too long")
)

type DeviceID string

// Device is a client identity persisted across reconnects.
// LastRoomID is empty when the device has never been placed in a room.
type Device struct {
	ID               DeviceID
	Identity         string
	LastRoomID       RoomID
	FirstConnectedAt time.Time
	LastConnectedAt  time.Time
}

// Identification is the first payload a connection sends.
type Identification struct {
	DeviceID DeviceID
	Identity string
	RoomID   RoomID
}

// Validate reports the first missing or oversized field.
func (i Identification) Validate() error {
	if i.Identity == "" {
		return ErrIdentityEmpty
	}
	if i.DeviceID == "" {
		return ErrDeviceIDEmpty
	}
	if len(i.Identity) > MaxIdentityLen {
		return fmt.Errorf("%w: identity exceeds %d bytes", ErrFieldTooLong, MaxIdentityLen)
	}
	if len(i.DeviceID) > MaxDeviceIDLen {
		return fmt.Errorf("%w: device_id exceeds %d bytes", ErrFieldTooLong, MaxDeviceIDLen)
	}
	return nil
}
