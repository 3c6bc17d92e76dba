package controller

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/logger"
	"github.com/bassista/fitsync/internal/notify"
	"github.com/bassista/fitsync/internal/queue"
)

// NotifyController serves notification payloads to the UI layer and takes
// back action clicks from the OS notification surface.
type NotifyController struct {
	events *queue.Queue
}

func NewNotifyController(events *queue.Queue) *NotifyController {
	return &NotifyController{events: events}
}

// Reminder handles GET /notifications/reminder.
func (nc *NotifyController) Reminder(c *gin.Context) {
	program := c.DefaultQuery("program", "workout")
	c.JSON(http.StatusOK, notify.WorkoutReminder(program))
}

// ActionClick handles POST /notifications/action. A click is telemetry,
// so a queue failure is logged but the click is still acknowledged.
func (nc *NotifyController) ActionClick(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	click, err := notify.ParseActionClick(body)
	if err != nil {
		logger.WithComponent("notify-controller").Debugf("rejected action click: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := json.Marshal(map[string]any{"action": click.Action})
	if err == nil {
		_, err = nc.events.Enqueue(queue.KindSessionStart, payload, "")
	}
	if err != nil {
		logger.WithComponent("notify-controller").Warnf("action click %s not queued: %v", click.Action, err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "action": click.Action})
}
