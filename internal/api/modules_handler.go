package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbeckner/civicrawl/internal/logger"
	"github.com/mbeckner/civicrawl/internal/scheduler"
	"github.com/mbeckner/civicrawl/internal/store"
)

const defaultRunsLimit = 20

// ModulesHandler handles module configuration and run-history requests.
type ModulesHandler struct {
	modules   store.ModuleRepositoryInterface
	runs      store.RunRepositoryInterface
	scheduler SchedulerInterface
	logger    logger.Interface
}

// NewModulesHandler creates a new modules handler.
func NewModulesHandler(
	modules store.ModuleRepositoryInterface,
	runs store.RunRepositoryInterface,
	sched SchedulerInterface,
	log logger.Interface,
) *ModulesHandler {
	return &ModulesHandler{
		modules:   modules,
		runs:      runs,
		scheduler: sched,
		logger:    log.WithComponent("api"),
	}
}

// List handles GET /api/v1/modules
func (h *ModulesHandler) List(c *gin.Context) {
	modules, err := h.modules.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list modules", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list modules"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"modules": modules})
}

// Get handles GET /api/v1/modules/:key
func (h *ModulesHandler) Get(c *gin.Context) {
	module, err := h.modules.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
			return
		}
		h.logger.Error("failed to get module", "key", c.Param("key"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get module"})
		return
	}
	c.JSON(http.StatusOK, module)
}

// UpdateModuleRequest is the PATCH body for module configuration.
type UpdateModuleRequest struct {
	Enabled         *bool `json:"enabled"`
	IntervalMinutes *int  `json:"interval_minutes"`
}

// Update handles PATCH /api/v1/modules/:key
func (h *ModulesHandler) Update(c *gin.Context) {
	key := c.Param("key")

	var req UpdateModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Enabled == nil && req.IntervalMinutes == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	ctx := c.Request.Context()
	if req.IntervalMinutes != nil {
		if err := h.modules.SetInterval(ctx, key, *req.IntervalMinutes); err != nil {
			switch {
			case errors.Is(err, store.ErrIntervalTooShort):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Interval is below the minimum of 5 minutes"})
			case errors.Is(err, store.ErrNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
			default:
				h.logger.Error("failed to set interval", "key", key, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update module"})
			}
			return
		}
	}
	if req.Enabled != nil {
		if err := h.modules.SetEnabled(ctx, key, *req.Enabled); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
				return
			}
			h.logger.Error("failed to set enabled", "key", key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update module"})
			return
		}
	}

	module, err := h.modules.Get(ctx, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load updated module"})
		return
	}
	c.JSON(http.StatusOK, module)
}

// Run handles POST /api/v1/modules/:key/run
func (h *ModulesHandler) Run(c *gin.Context) {
	key := c.Param("key")

	result, err := h.scheduler.RunNow(c.Request.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, scheduler.ErrUnknownModule):
			c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
		case errors.Is(err, scheduler.ErrModuleDisabled):
			c.JSON(http.StatusConflict, gin.H{"error": "Module is disabled"})
		case errors.Is(err, scheduler.ErrModuleRunning):
			c.JSON(http.StatusConflict, gin.H{"error": "Module crawl already running"})
		default:
			h.logger.Error("manual run failed", "key", key, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run module"})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListRuns handles GET /api/v1/modules/:key/runs
func (h *ModulesHandler) ListRuns(c *gin.Context) {
	key := c.Param("key")

	if _, err := h.modules.Get(c.Request.Context(), key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Module not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load module"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRunsLimit)))
	if err != nil || limit <= 0 {
		limit = defaultRunsLimit
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), key, limit)
	if err != nil {
		h.logger.Error("failed to list runs", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
