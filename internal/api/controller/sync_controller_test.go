package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/ledger"
	"github.com/bassista/fitsync/internal/queue"
	"github.com/bassista/fitsync/internal/store"
)

type nopSender struct{ sent int }

func (s *nopSender) Send(_ context.Context, events []queue.Event) error {
	s.sent += len(events)
	return nil
}

func newSyncRouter(t *testing.T) (*gin.Engine, *queue.Queue, *queue.OnlineFlag, *nopSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.NewMemStore()
	sender := &nopSender{}
	online := queue.NewOnlineFlag()
	q, err := queue.New(s, sender, online, nil, queue.Config{BatchSize: 10, MaxAttempts: 3, DeadLetterCap: 10})
	if err != nil {
		t.Fatal(err)
	}
	l, err := ledger.New(s, q)
	if err != nil {
		t.Fatal(err)
	}

	sc := NewSyncController(q, online, l)
	router := gin.New()
	router.POST("/events", sc.Enqueue)
	router.POST("/sync", sc.Flush)
	router.POST("/connectivity", sc.Connectivity)
	router.GET("/status", sc.Status)
	return router, q, online, sender
}

func TestSyncController_EnqueueReturnsID(t *testing.T) {
	router, q, _, _ := newSyncRouter(t)

	w := postJSON(t, router, "/events", `{"kind": "session_start", "payload": {"screen": "home"}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["id"] == "" {
		t.Error("expected an idempotency id")
	}
	if q.Depth() != 1 {
		t.Errorf("expected queue depth 1, got %d", q.Depth())
	}
}

func TestSyncController_Enqueue_MissingKind(t *testing.T) {
	router, _, _, _ := newSyncRouter(t)

	w := postJSON(t, router, "/events", `{"payload": {}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestSyncController_FlushAndStatus(t *testing.T) {
	router, _, _, sender := newSyncRouter(t)

	postJSON(t, router, "/events", `{"kind": "session_start"}`)
	postJSON(t, router, "/events", `{"kind": "session_start"}`)

	w := postJSON(t, router, "/sync", ``)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if sender.sent != 2 {
		t.Errorf("expected 2 events sent, got %d", sender.sent)
	}

	req, _ := http.NewRequest(http.MethodGet, "/status", nil)
	sw := httptest.NewRecorder()
	router.ServeHTTP(sw, req)

	var status struct {
		Online      bool `json:"online"`
		QueueDepth  int  `json:"queue_depth"`
		DeadLetters int  `json:"dead_letters"`
	}
	if err := json.Unmarshal(sw.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Online || status.QueueDepth != 0 || status.DeadLetters != 0 {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestSyncController_ConnectivityRestoredFlushes(t *testing.T) {
	router, _, online, sender := newSyncRouter(t)

	// Go offline, buffer an event
	w := postJSON(t, router, "/connectivity", `{"online": false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if online.Online() {
		t.Fatal("expected offline after report")
	}

	postJSON(t, router, "/events", `{"kind": "session_start"}`)

	w = postJSON(t, router, "/sync", ``)
	var res map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res["status"] != string(queue.FlushSkippedOffline) {
		t.Errorf("expected offline flush skipped, got %v", res["status"])
	}

	// Back online: the backlog flushes
	w = postJSON(t, router, "/connectivity", `{"online": true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if sender.sent != 1 {
		t.Errorf("expected buffered event delivered on reconnect, got %d", sender.sent)
	}
}
