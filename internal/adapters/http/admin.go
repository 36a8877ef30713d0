package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/store"
)

// AdminHandlers expose read-only reporting over the directory and ledger.
// They never write; lifecycle changes only happen through the coordinator.
type AdminHandlers struct {
	Store store.Store
	Coord *app.Coordinator
}

func (h *AdminHandlers) Rooms(c *gin.Context) {
	rooms, err := h.Store.ListOpenRooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms, "total": len(rooms)})
}

func (h *AdminHandlers) RoomDetail(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))
	snap, err := h.Store.RoomSnapshot(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room":            snap.Room,
		"participants":    snap.Participants,
		"liveConnections": h.Coord.Registry.RoomSize(roomID),
	})
}

func (h *AdminHandlers) Stats(c *gin.Context) {
	rooms, err := h.Store.ListOpenRooms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	activeParticipants := 0
	for _, r := range rooms {
		activeParticipants += r.ParticipantCount
	}
	c.JSON(http.StatusOK, gin.H{
		"openRooms":          len(rooms),
		"activeParticipants": activeParticipants,
		"liveConnections":    h.Coord.LiveConnections(),
	})
}
