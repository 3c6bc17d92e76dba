package route

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/api/controller"
	"github.com/bassista/fitsync/internal/api/middleware"
	"github.com/bassista/fitsync/internal/app"
)

func NewProgressRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	pc := controller.NewProgressController(appCtx.Ledger)

	progress := group.Group("")
	progress.Use(middleware.RequestTimeout(timeout))
	progress.POST("/completions", pc.RecordCompletion)
	progress.GET("/progress", pc.GetProgress)
}
