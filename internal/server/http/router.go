package httpserver

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter assembles the REST API.
func NewRouter(log *zap.Logger, authToken string, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(Recover(log))
	r.Use(RequestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-User-ID"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/sync/v1")
	v1.Use(Identify(authToken))
	{
		v1.POST("/push", h.Push)
		v1.GET("/pull", h.Pull)
		v1.POST("/full", h.FullSync)
		v1.POST("/synced", h.MarkSynced)
		v1.GET("/queue", h.OfflineQueue)
		v1.POST("/queue/clear", h.ClearOfflineQueue)
		v1.GET("/status", h.Status)

		v1.GET("/conflicts", h.Conflicts)
		v1.POST("/conflicts/:id/resolve", h.ResolveConflict)

		v1.POST("/devices/register", h.RegisterDevice)
		v1.DELETE("/devices/:deviceId", h.UnregisterDevice)
		v1.GET("/devices", h.ListDevices)
	}
	return r
}
