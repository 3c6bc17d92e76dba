package route

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/api/controller"
	"github.com/bassista/fitsync/internal/api/middleware"
	"github.com/bassista/fitsync/internal/app"
)

func NewSyncRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	sc := controller.NewSyncController(appCtx.Queue, appCtx.Online, appCtx.Ledger)

	sync := group.Group("")
	sync.Use(middleware.RequestTimeout(timeout))
	sync.POST("/events", sc.Enqueue)
	sync.POST("/sync", sc.Flush)
	sync.POST("/connectivity", sc.Connectivity)
	sync.GET("/status", sc.Status)
}
