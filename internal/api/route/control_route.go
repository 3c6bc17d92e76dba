package route

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/api/controller"
	"github.com/bassista/fitsync/internal/api/middleware"
	"github.com/bassista/fitsync/internal/app"
)

func NewControlRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	cc := controller.NewControlController(appCtx.Dispatcher)

	ctl := group.Group("/control")
	ctl.Use(middleware.RequestTimeout(timeout))
	ctl.POST("", cc.Handle)
}
