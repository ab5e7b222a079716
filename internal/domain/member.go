package domain

// Member is how a room occupant appears to other clients.
type Member struct {
	DeviceID DeviceID `json:"device_id"`
	Identity string   `json:"identity"`
}

func NewMember(deviceID DeviceID, identity string) Member {
	return Member{DeviceID: deviceID, Identity: identity}
}
