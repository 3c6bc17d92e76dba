package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/control"
	"github.com/bassista/fitsync/internal/logger"
)

// ControlController receives cache control messages from the UI layer.
type ControlController struct {
	dispatcher *control.Dispatcher
}

func NewControlController(dispatcher *control.Dispatcher) *ControlController {
	return &ControlController{dispatcher: dispatcher}
}

// Handle handles POST /control.
func (cc *ControlController) Handle(c *gin.Context) {
	var msg control.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		logger.WithComponent("control-controller").Debugf("malformed control message: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed control message"})
		return
	}

	logger.WithComponent("control-controller").Debugf("control message %s", msg.Type)

	handled, err := cc.dispatcher.Dispatch(c.Request.Context(), msg)
	if err != nil {
		logger.WithComponent("control-controller").Errorf("dispatch %s: %v", msg.Type, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if !handled {
		// Unknown types are ignored by contract
		c.JSON(http.StatusAccepted, gin.H{"ignored": string(msg.Type)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
