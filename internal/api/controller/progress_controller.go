package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/ledger"
	"github.com/bassista/fitsync/internal/logger"
	"github.com/bassista/fitsync/internal/notify"
)

// ProgressController records completions and exposes derived streak state.
type ProgressController struct {
	ledger *ledger.Ledger
}

func NewProgressController(l *ledger.Ledger) *ProgressController {
	return &ProgressController{ledger: l}
}

// RecordCompletion handles POST /completions.
func (pc *ProgressController) RecordCompletion(c *gin.Context) {
	var rec ledger.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		logger.WithComponent("progress-controller").Debugf("malformed completion: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed completion record"})
		return
	}

	result, err := pc.ledger.RecordCompletion(rec)
	if err != nil {
		var rcErr *ledger.RecordCompletionError
		if errors.As(err, &rcErr) {
			// Not persisted; the caller may retry the identical call
			logger.WithComponent("progress-controller").Errorf("completion not persisted: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "completion not persisted, retry"})
			return
		}
		logger.WithComponent("progress-controller").Debugf("invalid completion: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"streak": result.Streak, "is_new_completion": result.IsNewCompletion}
	if payload, ok := notify.MilestoneFor(result.Streak.StreakDays); ok && result.IsNewCompletion {
		resp["notification"] = payload
	}
	c.JSON(http.StatusOK, resp)
}

// GetProgress handles GET /progress.
func (pc *ProgressController) GetProgress(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"streak":          pc.ledger.Snapshot(),
		"today":           pc.ledger.Today(),
		"total_completed": pc.ledger.TotalCompleted(),
	})
}
