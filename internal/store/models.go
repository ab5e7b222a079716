package store

import (
	"time"
)

// Room is a persisted room record.
type Room struct {
	RoomID    string    `gorm:"primaryKey;size:8"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for Room model.
func (Room) TableName() string { return "rooms" }

// Device is the durable identity of a client across reconnects.
type Device struct {
	DeviceID         string    `gorm:"primaryKey;size:255"`
	FirstConnectedAt time.Time `gorm:"not null"`
	LastConnectedAt  time.Time `gorm:"not null"`
	LastRoomID       *string   `gorm:"size:8"`
	LastIdentity     string    `gorm:"size:255"`
}

func (Device) TableName() string { return "devices" }

// Connection records one live session. DisconnectedAt stays NULL while it is open.
type Connection struct {
	ID             int64      `gorm:"primaryKey;autoIncrement"`
	DeviceID       string     `gorm:"size:255;index"`
	RoomID         string     `gorm:"size:8;index"`
	Identity       string     `gorm:"size:255"`
	ConnectedAt    time.Time  `gorm:"not null"`
	DisconnectedAt *time.Time `gorm:"default:null"`
	ClientIP       string     `gorm:"size:45"`
}

func (Connection) TableName() string { return "connections" }

// Message is the audit entry of a relayed payload.
type Message struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	FromDeviceID   string    `gorm:"size:255"`
	ToDeviceID     *string   `gorm:"size:255"`
	RoomID         string    `gorm:"size:8;index"`
	MessageContent string    `gorm:"type:text"`
	MessageType    string    `gorm:"size:16;not null;default:broadcast"`
	SentAt         time.Time `gorm:"not null"`
}

func (Message) TableName() string { return "messages" }

type RoomQuery struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	DeviceID  string    `gorm:"size:255"`
	RoomID    string    `gorm:"size:8"`
	QueriedAt time.Time `gorm:"not null"`
}

func (RoomQuery) TableName() string { return "room_queries" }

func models() []any {
	return []any{&Room{}, &Device{}, &Connection{}, &Message{}, &RoomQuery{}}
}
