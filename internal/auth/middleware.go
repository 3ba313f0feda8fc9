package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding *Claims after GinAuth.
const ClaimsKey = "auth_claims"

// GinAuth rejects requests without a valid bearer token. The token may also
// come from the "token" query parameter, which browsers need for WebSocket
// upgrades. It passes everything through when auth is disabled.
func (s *Service) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Enabled() {
			c.Next()
			return
		}
		claims, err := s.Verify(tokenFrom(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// LoginHandler accepts basic credentials or a JSON LoginRequest.
func (s *Service) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Enabled() {
			c.JSON(http.StatusNotFound, gin.H{"error": "auth is disabled"})
			return
		}
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			var req LoginRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
			username, password = req.Username, req.Password
		}
		tok, err := s.Login(username, password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Invalid credentials",
			})
			return
		}
		c.JSON(http.StatusOK, tok)
	}
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}
