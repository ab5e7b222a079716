package domain

// AssignStatus tells a client how it ended up in its room.
type AssignStatus string

const (
	StatusCreatedNew         AssignStatus = "created_new"
	StatusReconnected        AssignStatus = "reconnected"
	StatusJoinedExisting     AssignStatus = "joined_existing"
	StatusCreatedNewFallback AssignStatus = "created_new_fallback"
	StatusError              AssignStatus = "error"
	StatusRoomNotFound       AssignStatus = "room_not_found"
)

// Fallback reports whether the room has no durable backing.
func (s AssignStatus) Fallback() bool {
	return s == StatusCreatedNewFallback || s == StatusError
}

// Assignment is the outcome of resolving a device to a room.
type Assignment struct {
	RoomID    RoomID
	NewDevice bool
	Status    AssignStatus
}

// ConnectionRecord is the durable open event of a connection.
type ConnectionRecord struct {
	DeviceID DeviceID
	RoomID   RoomID
	Identity string
	ClientIP string
}

// MessageRecord is the audit entry of one dispatch. To is empty for broadcasts.
type MessageRecord struct {
	From    DeviceID
	To      DeviceID
	RoomID  RoomID
	Content string
	Kind    MessageKind
}
