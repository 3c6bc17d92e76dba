package controller

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/ledger"
	"github.com/bassista/fitsync/internal/logger"
	"github.com/bassista/fitsync/internal/queue"
)

// SyncController exposes the event queue: enqueue, manual flush,
// connectivity changes and the polled status used for the offline
// indicator.
type SyncController struct {
	queue  *queue.Queue
	online *queue.OnlineFlag
	ledger *ledger.Ledger
}

func NewSyncController(q *queue.Queue, online *queue.OnlineFlag, l *ledger.Ledger) *SyncController {
	return &SyncController{queue: q, online: online, ledger: l}
}

type enqueueRequest struct {
	Kind    queue.Kind      `json:"kind" binding:"required"`
	Payload json.RawMessage `json:"payload"`
	UserID  string          `json:"user_id"`
}

// Enqueue handles POST /events.
func (sc *SyncController) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	id, err := sc.queue.Enqueue(req.Kind, req.Payload, req.UserID)
	if err != nil {
		// Local persistence failed: the one operation that must not
		// fail silently
		logger.WithComponent("sync-controller").Errorf("enqueue failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event not persisted"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

// Flush handles POST /sync - a manual flush trigger.
func (sc *SyncController) Flush(c *gin.Context) {
	res := sc.queue.Flush(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":        res.Status,
		"sent":          res.Sent,
		"remaining":     res.Remaining,
		"dead_lettered": res.DeadLettered,
	})
}

type connectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// Connectivity handles POST /connectivity. The UI layer reports the
// platform's online/offline transitions here; going online flushes the
// backlog.
func (sc *SyncController) Connectivity(c *gin.Context) {
	var req connectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed connectivity report"})
		return
	}

	wasOnline := sc.online.Online()
	sc.online.SetOnline(*req.Online)
	logger.WithComponent("sync-controller").Infof("connectivity: online=%v", *req.Online)

	if *req.Online && !wasOnline {
		res := sc.queue.OnConnectivityRestored(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"status": res.Status, "sent": res.Sent, "remaining": res.Remaining})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "noted"})
}

// Status handles GET /status. The UI polls this to derive its generic
// offline/sync indicator; per-event failure detail stays server-side.
func (sc *SyncController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online":       sc.online.Online(),
		"queue_depth":  sc.queue.Depth(),
		"dead_letters": sc.queue.DeadLetterCount(),
		"streak":       sc.ledger.Snapshot(),
	})
}
