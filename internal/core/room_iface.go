package core

import (
	"github.com/dkeye/RoomRelay/internal/domain"
)

// Drop is a member a fan-out could not reach.
type Drop struct {
	Session MemberSession
	Err     error
}

// PublishResult reports delivery stats to the relay.
type PublishResult struct {
	Attempted int
	SendTo    int
	Dropped   []Drop
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int
	// MembersSnapshot lists members in join order, leaving out exclude.
	MembersSnapshot(exclude ConnID) []domain.Member
	// FindByDevice returns the earliest joined session of the device.
	FindByDevice(id domain.DeviceID) (MemberSession, bool)

	AddMember(ms MemberSession)
	RemoveMember(id ConnID) bool
	Broadcast(from ConnID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"room_id"`
	MemberCount int           `json:"client_count"`
}

// RoomRegistry is the authoritative in-memory map of live room membership.
// Room entries are never removed once created.
type RoomRegistry interface {
	Ensure(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	RoomExists(id domain.RoomID) bool
	List() []RoomInfo

	AddMember(roomID domain.RoomID, ms MemberSession)
	RemoveMember(roomID domain.RoomID, id ConnID) bool
	ListMembers(roomID domain.RoomID, exclude ConnID) []domain.Member
	MemberCount(roomID domain.RoomID) int
}
