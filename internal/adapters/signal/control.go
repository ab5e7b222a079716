package signal

import (
	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/dkeye/RoomRelay/internal/domain"
)

type connectionMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type roomMsg struct {
	Type    string              `json:"type"`
	RoomID  domain.RoomID       `json:"room_id"`
	Status  domain.AssignStatus `json:"status"`
	Message string              `json:"message"`
}

type roomInfoMsg struct {
	Type         string          `json:"type"`
	RoomID       domain.RoomID   `json:"room_id"`
	TotalClients int             `json:"total_clients"`
	Clients      []domain.Member `json:"clients"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (ctl *SignalWSController) sendError(c core.SignalConnection, message string) {
	ctl.sendJSON(c, errorMsg{Type: "error", Message: message})
}
