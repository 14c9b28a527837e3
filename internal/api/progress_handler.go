package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbeckner/civicrawl/internal/logger"
	"github.com/mbeckner/civicrawl/internal/progress"
)

const heartbeatInterval = 15 * time.Second

// ProgressHandler streams crawl progress over Server-Sent Events.
type ProgressHandler struct {
	hub    *progress.Hub
	logger logger.Interface
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(hub *progress.Hub, log logger.Interface) *ProgressHandler {
	return &ProgressHandler{hub: hub, logger: log.WithComponent("sse")}
}

// Stream handles GET /api/v1/modules/:key/progress. The latest snapshot
// is replayed immediately, updates follow as they happen, and the stream
// ends after a terminal snapshot. Heartbeat comments keep idle
// connections from being reaped by proxies.
func (h *ProgressHandler) Stream(c *gin.Context) {
	key := c.Param("key")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates, cancel := h.hub.Subscribe(key)
	defer cancel()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		case snap := <-updates:
			payload, err := json.Marshal(snap)
			if err != nil {
				h.logger.Error("failed to encode progress snapshot", "module", key, "error", err)
				continue
			}
			fmt.Fprintf(c.Writer, "event: progress\ndata: %s\n\n", payload)
			flusher.Flush()

			if snap.Terminal() {
				return
			}
		}
	}
}
