package proxy

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/photo-gallery/internal/middleware"
)

// NewRouter assembles the gateway: the /api interceptor, the session surface
// for the shell, and cache-first shell serving for everything else.
func NewRouter(interceptor *Interceptor, shell *ShellCache, session *SessionHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.Logger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	session.Register(router.Group("/app/session"))

	router.Any("/api/*path", interceptor.Handle)

	// Everything else is the app shell: cache-first, offline-capable.
	router.NoRoute(shell.Serve)

	return router
}
