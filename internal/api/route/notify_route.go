package route

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/api/controller"
	"github.com/bassista/fitsync/internal/api/middleware"
	"github.com/bassista/fitsync/internal/app"
)

func NewNotifyRouter(timeout time.Duration, group *gin.RouterGroup, appCtx *app.App) {
	nc := controller.NewNotifyController(appCtx.Queue)

	notifications := group.Group("")
	notifications.Use(middleware.RequestTimeout(timeout))
	notifications.GET("/notifications/reminder", nc.Reminder)
	notifications.POST("/notifications/action", nc.ActionClick)
}
