package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/store"
)

type RoomHandlers struct {
	Store store.Store
}

type CreateRoomResponse struct {
	RoomID   string `json:"roomId"`
	JoinLink string `json:"joinLink"`
}

// CreateRoom mints a new room; the authenticated user is recorded as its
// creator.
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	creator := c.GetString("user_id")

	room, err := h.Store.CreateRoom(c.Request.Context(), creator)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create room")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}

	log.Info().Str("module", "adapters.http").Str("room", string(room.ID)).Str("creator", creator).Msg("room created")
	c.JSON(http.StatusCreated, CreateRoomResponse{
		RoomID:   string(room.ID),
		JoinLink: "/room/" + string(room.ID),
	})
}

// ListRooms returns every open room with its active participant count.
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.Store.ListOpenRooms(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list rooms")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// GetRoom returns a point-in-time snapshot of one room.
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))

	snap, err := h.Store.RoomSnapshot(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(roomID)).Msg("room snapshot")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roomId":           snap.Room.ID,
		"status":           snap.Room.Status,
		"createdAt":        snap.Room.CreatedAt,
		"participantCount": len(snap.Participants),
		"participants":     snap.Participants,
	})
}

// DeleteRoom closes a room. Only its creator may do so; live connections
// are not dropped, they drain through the normal disconnect path.
func (h *RoomHandlers) DeleteRoom(c *gin.Context) {
	userID := c.GetString("user_id")
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
	if snap.Room.CreatedBy != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the room creator can delete the room"})
		return
	}

	if err := h.Store.CloseRoom(c.Request.Context(), roomID); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", string(roomID)).Msg("close room")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
		return
	}

	log.Info().Str("module", "adapters.http").Str("room", string(roomID)).Str("user", userID).Msg("room deleted")
	c.JSON(http.StatusOK, gin.H{"message": "room closed"})
}
