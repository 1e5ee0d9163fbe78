package api

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"attune/internal/auth"
	"attune/internal/config"
)

func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	r := gin.Default()
	subpath := cfg.Server.Subpath // always starts with '/'

	group := r.Group(subpath)
	group.Use(auth.IdentityMiddleware(cfg.Server.JWTSecret))
	{
		group.GET("/health", healthHandler)

		group.GET("/personalities", listPersonalitiesHandler(deps.Registry))

		group.POST("/sessions", createSessionHandler())
		group.GET("/sessions/:id", sessionStateHandler(deps))
		group.DELETE("/sessions/:id", deleteSessionHandler(deps))
		group.GET("/sessions/:id/messages", listMessagesHandler(deps))

		group.POST("/sessions/:id/personality", setOverrideHandler(deps))
		group.DELETE("/sessions/:id/personality", clearOverrideHandler(deps))

		group.GET("/memory", getMemoryHandler(deps))

		group.GET("/ws/chat", WSChatHandler(deps))
	}

	if subpath != "/" {
		r.GET(subpath+"/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, path.Clean(subpath))
		})
	}
	return r
}
