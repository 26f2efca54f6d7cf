package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ConversationHeader carries the id of the conversation a chat turn was
// appended to
const ConversationHeader = "X-Conversation-ID"

// CORS answers preflight requests and tags responses for the configured
// origins. "*" admits any origin; the request origin is echoed back so
// credentialed browser calls keep working.
func CORS(allowOrigins []string) gin.HandlerFunc {
	anyOrigin := false
	allowed := make(map[string]struct{}, len(allowOrigins))
	for _, o := range allowOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			anyOrigin = true
			continue
		}
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		_, listed := allowed[origin]

		switch {
		case origin != "" && (anyOrigin || listed):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			setCORSHeaders(c)
		case origin == "" && anyOrigin:
			c.Header("Access-Control-Allow-Origin", "*")
			setCORSHeaders(c)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
	c.Header("Access-Control-Expose-Headers", ConversationHeader)
	c.Header("Access-Control-Max-Age", "86400")
}
