package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/bridge-signaling/internal/logging"
	"github.com/mossy-p/bridge-signaling/internal/middleware"
	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/rooms"
)

// Rooms serves the discovery API.
type Rooms struct {
	store rooms.Store
	hub   *Hub
	log   *logrus.Entry
}

func NewRooms(store rooms.Store, hub *Hub, log logrus.FieldLogger) *Rooms {
	return &Rooms{store: store, hub: hub, log: logging.Component(log, "rooms")}
}

// ListRooms returns every room that currently has a host (public)
func (r *Rooms) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()
	all, err := r.store.List(ctx)
	if err != nil {
		r.log.WithError(err).Error("Failed to list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rooms"})
		return
	}

	list := models.RoomList{
		Rooms:     []models.RoomInfo{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, meta := range all {
		if meta.HostPeer == "" {
			continue
		}
		members, err := r.store.PeerCount(ctx, meta.ID)
		if errors.Is(err, rooms.ErrNotFound) {
			continue
		}
		if err != nil {
			r.log.WithError(err).WithField("room", meta.ID).Warn("Failed to count peers")
			continue
		}
		list.Rooms = append(list.Rooms, rooms.Info(meta, members))
	}

	c.JSON(http.StatusOK, list)
}

// GetRoom gets room information by id (public)
func (r *Rooms) GetRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	meta, err := r.store.Get(ctx, roomID)
	if errors.Is(err, rooms.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if err != nil {
		r.log.WithError(err).Error("Failed to get room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get room"})
		return
	}

	members, err := r.store.PeerCount(ctx, roomID)
	if err != nil && !errors.Is(err, rooms.ErrNotFound) {
		r.log.WithError(err).Warn("Failed to count peers")
	}

	c.JSON(http.StatusOK, rooms.Info(meta, members))
}

// DeleteRoom closes a room (requires authentication as its host)
func (r *Rooms) DeleteRoom(c *gin.Context) {
	peerID := c.GetString(middleware.PeerIDKey)
	if peerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Peer not authenticated"})
		return
	}

	roomID := c.Param("roomId")
	ctx := c.Request.Context()

	meta, err := r.store.Get(ctx, roomID)
	if errors.Is(err, rooms.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	if err != nil {
		r.log.WithError(err).Error("Failed to get room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get room"})
		return
	}

	if meta.HostPeer != peerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the room host can delete the room"})
		return
	}

	r.hub.CloseRoom(roomID)
	if err := r.store.Delete(ctx, roomID); err != nil && !errors.Is(err, rooms.ErrNotFound) {
		r.log.WithError(err).Error("Failed to delete room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete room"})
		return
	}

	r.log.WithFields(logrus.Fields{"room": roomID, "peer": peerID}).Info("Room deleted")

	c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
}
