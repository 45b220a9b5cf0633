package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/bridge-signaling/internal/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(secret string) *gin.Engine {
	r := gin.New()
	r.GET("/private", JWTAuth(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"peer": c.GetString(PeerIDKey),
			"type": c.GetString(ClientTypeKey),
		})
	})
	return r
}

func TestJWTAuth(t *testing.T) {
	r := newRouter("secret")
	token, _, err := auth.IssueToken("secret", "host_abc", "host", time.Hour, time.Now())
	require.NoError(t, err)
	expired, _, err := auth.IssueToken("secret", "host_abc", "host", time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	foreign, _, err := auth.IssueToken("other", "host_abc", "host", time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"peer":"host_abc","type":"host"}`, w.Body.String())
			}
		})
	}
}
