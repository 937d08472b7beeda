package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextActorKey is the Gin context key holding the acting user identity.
const ContextActorKey = "actor"

// HeaderActor carries the acting user identity. The system has no
// authentication; identity is a plain self-declared name, as in the original
// workflow. Mutating store operations reject requests without one.
const HeaderActor = "X-Actor"

// Identity extracts the acting user from the request headers.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := strings.TrimSpace(c.GetHeader(HeaderActor)); actor != "" {
			c.Set(ContextActorKey, actor)
		}
		c.Next()
	}
}
