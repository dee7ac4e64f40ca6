package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminTokenHeader carries the shared operator token
const AdminTokenHeader = "X-Admin-Token"

// AdminAuth guards operator routes with a static token. An empty token
// disables the admin surface entirely.
func AdminAuth(token string, logger *slog.Logger) gin.HandlerFunc {
	expected := []byte(token)

	return func(c *gin.Context) {
		if len(expected) == 0 {
			abortWithError(c, http.StatusForbidden, "ADMIN_DISABLED", "Admin API is not configured")
			return
		}

		provided := []byte(c.GetHeader(AdminTokenHeader))
		if subtle.ConstantTimeCompare(provided, expected) != 1 {
			RequestLogger(c, logger).Warn("Admin token rejected",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid admin token")
			return
		}

		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, code, message string) {
	response := gin.H{"error": gin.H{"code": code, "message": message}}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(status, response)
}
