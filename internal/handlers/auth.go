package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mossy-p/bridge-signaling/internal/auth"
	"github.com/mossy-p/bridge-signaling/internal/models"
)

// Login exchanges the shared auth key for a signed token bound to the
// caller's peer id and client type. With an empty authKey every request is
// refused.
func Login(jwtSecret, authKey string, ttl time.Duration, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AuthRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		if authKey == "" || subtle.ConstantTimeCompare([]byte(req.AuthKey), []byte(authKey)) != 1 {
			log.WithField("peer", req.PeerID).Warn("Rejected credentials")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		token, expires, err := auth.IssueToken(jwtSecret, req.PeerID, req.ClientType, ttl, time.Now())
		if err != nil {
			log.WithError(err).Error("Failed to generate token")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		c.JSON(http.StatusOK, models.AuthResponse{
			Token:     token,
			ExpiresAt: expires.UnixMilli(),
		})
	}
}
