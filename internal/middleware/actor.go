package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/crewdeckhq/crewdeck/internal/auditctx"
)

// ActorHeader names the header the chat-platform command layer uses to
// forward the identity of the person who issued the command.
const ActorHeader = "X-Actor-Identity"

// Actor copies the forwarded actor identity into the request context so
// service layers can attribute audit entries.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := strings.TrimSpace(c.GetHeader(ActorHeader))
		if identity != "" {
			ctx := auditctx.WithActor(c.Request.Context(), auditctx.Actor{
				Identity:  identity,
				IPAddress: c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
