package controller

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/cachemgr"
	"github.com/bassista/fitsync/internal/control"
	"github.com/bassista/fitsync/internal/store"
)

type stubFetcher struct {
	fetched []string
}

func (f *stubFetcher) Fetch(_ context.Context, path string) (*cachemgr.Response, error) {
	f.fetched = append(f.fetched, path)
	return &cachemgr.Response{Status: 200, Body: []byte("ok")}, nil
}

func newControlRouter(t *testing.T) (*gin.Engine, *stubFetcher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &stubFetcher{}
	m := cachemgr.NewManager(store.NewMemStore(), cachemgr.NewClassifier(cachemgr.DefaultRules()), f, nil)
	cc := NewControlController(control.NewDispatcher(m, nil))

	router := gin.New()
	router.POST("/control", cc.Handle)
	return router, f
}

func TestControlController_CacheExerciseVideos(t *testing.T) {
	router, f := newControlRouter(t)

	w := postJSON(t, router, "/control", `{
		"type": "CACHE_EXERCISE_VIDEOS",
		"payload": {"videoUrls": ["/assets/videos/x.mp4", "/assets/videos/y.mp4"]}
	}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.fetched) != 2 {
		t.Errorf("expected 2 videos fetched, got %v", f.fetched)
	}
}

func TestControlController_UnknownTypeAccepted(t *testing.T) {
	router, f := newControlRouter(t)

	w := postJSON(t, router, "/control", `{"type": "SHINY_NEW_THING", "payload": {}}`)
	if w.Code != http.StatusAccepted {
		t.Errorf("expected 202 for unknown type, got %d", w.Code)
	}
	if len(f.fetched) != 0 {
		t.Error("unknown type must have no side effects")
	}
}

func TestControlController_MalformedBody(t *testing.T) {
	router, _ := newControlRouter(t)

	w := postJSON(t, router, "/control", `{{{`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
