package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/luccasmb/protocol-desk/internal/middleware"
)

// actorFromContext returns the acting user identity, or "" when absent.
func actorFromContext(c *gin.Context) string {
	if v, ok := c.Get(middleware.ContextActorKey); ok {
		if actor, ok := v.(string); ok {
			return actor
		}
	}
	return ""
}
