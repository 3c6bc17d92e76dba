package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/fitsync/internal/cachemgr"
	"github.com/bassista/fitsync/internal/logger"
)

// AssetController serves resource requests through the cache manager, so
// the UI keeps getting assets when the origin is unreachable.
type AssetController struct {
	cache *cachemgr.Manager
}

func NewAssetController(cache *cachemgr.Manager) *AssetController {
	return &AssetController{cache: cache}
}

// Serve handles GET /assets/*path.
func (ac *AssetController) Serve(c *gin.Context) {
	path := c.Param("path")
	logger.WithComponent("asset-controller").Debugf("GET asset %s", path)

	resp, err := ac.cache.Handle(c.Request.Context(), path)
	if err != nil {
		if cachemgr.IsNetworkError(err) {
			logger.WithComponent("asset-controller").Debugf("asset %s unavailable: %v", path, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "resource not cached and network unavailable"})
			return
		}
		logger.WithComponent("asset-controller").Errorf("asset %s: %v", path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to serve resource"})
		return
	}

	contentType := resp.Header["Content-Type"]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	for k, v := range resp.Header {
		if k != "Content-Type" {
			c.Header(k, v)
		}
	}
	c.Data(resp.Status, contentType, resp.Body)
}
