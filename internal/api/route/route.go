package route

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/app"
)

func SetupRoutes(r *gin.Engine, appCtx *app.App) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "UP",
		})
	})

	publicRouter := r.Group("")

	timeout := appCtx.Config.Server.RequestTimeout

	NewAssetRouter(timeout, publicRouter, appCtx)
	NewControlRouter(timeout, publicRouter, appCtx)
	NewProgressRouter(timeout, publicRouter, appCtx)
	NewSyncRouter(timeout, publicRouter, appCtx)
	NewNotifyRouter(timeout, publicRouter, appCtx)
}
