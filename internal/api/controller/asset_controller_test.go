package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/cachemgr"
	"github.com/bassista/fitsync/internal/store"
)

type flakyNetFetcher struct {
	offline bool
	body    string
}

func (f *flakyNetFetcher) Fetch(_ context.Context, path string) (*cachemgr.Response, error) {
	if f.offline {
		return nil, &cachemgr.NetworkError{URL: path, Err: context.DeadlineExceeded}
	}
	return &cachemgr.Response{
		Status: 200,
		Header: map[string]string{"Content-Type": "text/css"},
		Body:   []byte(f.body),
	}, nil
}

func newAssetRouter(t *testing.T, f cachemgr.Fetcher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := cachemgr.NewManager(store.NewMemStore(), cachemgr.NewClassifier(cachemgr.DefaultRules()), f, nil)
	ac := NewAssetController(m)

	router := gin.New()
	router.GET("/resource/*path", ac.Serve)
	return router
}

func getAsset(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAssetController_ServesFetchedResource(t *testing.T) {
	router := newAssetRouter(t, &flakyNetFetcher{body: "body{}"})

	w := getAsset(t, router, "/resource/assets/app.css")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "body{}" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/css" {
		t.Errorf("expected text/css, got %q", ct)
	}
}

func TestAssetController_OfflineUncached(t *testing.T) {
	router := newAssetRouter(t, &flakyNetFetcher{offline: true})

	w := getAsset(t, router, "/resource/api/plan")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for uncached resource offline, got %d", w.Code)
	}
}

func TestAssetController_OfflineServesCachedFallback(t *testing.T) {
	f := &flakyNetFetcher{body: `{"plan":"a"}`}
	router := newAssetRouter(t, f)

	// Warm the cache while online, then drop the network.
	if w := getAsset(t, router, "/resource/api/plan"); w.Code != http.StatusOK {
		t.Fatalf("warm-up failed: %d", w.Code)
	}
	f.offline = true

	w := getAsset(t, router, "/resource/api/plan")
	if w.Code != http.StatusOK {
		t.Fatalf("expected cached fallback, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != `{"plan":"a"}` {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}
