package domain

import (
	"math/rand/v2"
	"time"
)

const (
	RoomIDLen    = 8
	roomIDLetter = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type RoomID string

type Room struct {
	ID        RoomID
	CreatedAt time.Time
}

// NewRoomID returns a random token of RoomIDLen upper-case letters and digits.
// Uniqueness is the caller's concern.
func NewRoomID() RoomID {
	b := make([]byte, RoomIDLen)
	for i := range b {
		b[i] = roomIDLetter[rand.IntN(len(roomIDLetter))]
	}
	return RoomID(b)
}
