package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/bridge-signaling/config"
	"github.com/mossy-p/bridge-signaling/internal/logging"
	"github.com/mossy-p/bridge-signaling/internal/middleware"
	"github.com/mossy-p/bridge-signaling/internal/rooms"
)

// NewRouter wires the rendezvous routes. The returned Hub is the one serving
// the websocket endpoints.
func NewRouter(cfg *config.Config, store rooms.Store, log logrus.FieldLogger) (*gin.Engine, *Hub) {
	hub := NewHub(HubOptions{
		Store:        store,
		JWTSecret:    cfg.JWTSecret,
		RequireToken: cfg.AuthKey != "",
		MaxGuests:    cfg.MaxGuests,
		Logger:       log,
	})
	roomsAPI := NewRooms(store, hub, log)

	router := gin.New()
	router.Use(gin.Recovery())

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/auth", Login(cfg.JWTSecret, cfg.AuthKey, cfg.TokenTTL, logging.Component(log, "auth")))

	router.GET("/rooms", roomsAPI.ListRooms)
	router.GET("/rooms/:roomId", roomsAPI.GetRoom)
	router.DELETE("/rooms/:roomId", middleware.JWTAuth(cfg.JWTSecret), roomsAPI.DeleteRoom)

	// WebSocket signaling
	router.GET("/", hub.HandleSignaling)
	router.GET("/ws", hub.HandleSignaling)

	return router, hub
}
