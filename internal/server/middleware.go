package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/livebid/auction-engine/services/bidding/helpers"
	"github.com/livebid/auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// UserIDHeader carries the caller identity asserted by the upstream gateway.
const UserIDHeader = "X-User-ID"

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if userID := helpers.CallerID(c); userID != "" {
		fields["user_id"] = userID
	}
	utils.Info("HTTP Request", fields)
}

// UserIDMiddleware requires an authenticated caller and stores it on the
// context for handlers.
func UserIDMiddleware(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
	if userID == "" {
		utils.JSONAbort(c, http.StatusUnauthorized, "missing "+UserIDHeader+" header")
		return
	}
	c.Set(helpers.UserIDKey, userID)
	c.Next()
}
