package route

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/api/controller"
	"github.com/bassista/fitsync/internal/api/middleware"
	"github.com/bassista/fitsync/internal/app"
)

// NewAssetRouter mounts the cache-managed resource proxy. The wildcard
// param carries the full origin path, e.g. GET /resource/assets/videos/x.mp4
// serves origin path /assets/videos/x.mp4.
func NewAssetRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	ac := controller.NewAssetController(appCtx.Cache)

	resources := group.Group("/resource")
	resources.Use(middleware.RequestTimeout(timeout))
	resources.GET("/*path", ac.Serve)
}
