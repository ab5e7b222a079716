package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/RoomRelay/internal/app"
	"github.com/dkeye/RoomRelay/internal/core"
)

// StatusSource is satisfied by *app.Reporter.
type StatusSource interface {
	Snapshot() app.Status
}

type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
	Rooms   int    `json:"rooms"`
}

func Health(src StatusSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := src.Snapshot()
		c.JSON(http.StatusOK, HealthResponse{
			Status:  "ok",
			Clients: st.Clients,
			Rooms:   len(st.Rooms),
		})
	}
}

func Rooms(src StatusSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms := src.Snapshot().Rooms
		if rooms == nil {
			rooms = []core.RoomInfo{}
		}
		c.JSON(http.StatusOK, rooms)
	}
}
