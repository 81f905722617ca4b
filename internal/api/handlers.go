package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tangthinker/unibackup/internal/app"
	"github.com/tangthinker/unibackup/internal/queue"
	"github.com/tangthinker/unibackup/internal/schedule"
	"github.com/tangthinker/unibackup/internal/status"
	"github.com/tangthinker/unibackup/internal/store"
)

// Service is the enqueue and management API the handlers call.
type Service interface {
	EnqueueManualLogin() queue.Task
	EnqueueBackup(id int) (queue.Task, error)
	EnqueueBatchBackup() (queue.Task, error)
	EnqueueConnectivityProbe() queue.Task
	Targets() []store.Target
	AddTarget(name, locator string) (store.Target, error)
	RemoveTarget(id int) error
	Schedule() schedule.Config
	UpdateSchedule(cfg schedule.Config) (schedule.Config, []string, error)
	Snapshot() status.Snapshot
	Stream(ctx context.Context, publish func(status.Snapshot) error) error
}

type APIHandler struct {
	svc Service
}

type AddTargetRequest struct {
	Name    string `json:"name" binding:"required"`
	Locator string `json:"backup_url" binding:"required"`
}

type TaskResponse struct {
	TaskID string `json:"task_id"`
	Label  string `json:"label"`
}

type ScheduleResponse struct {
	Schedule schedule.Config `json:"schedule"`
	Warnings []string        `json:"warnings,omitempty"`
}

// RegisterHandlers mounts the API under /api.
func RegisterHandlers(r *gin.Engine, svc Service) {
	h := &APIHandler{svc: svc}

	api := r.Group("/api")
	{
		api.GET("/health", h.health)
		api.GET("/status", h.getStatus)
		api.GET("/status/ws", h.streamStatus)

		api.POST("/login", h.login)
		api.POST("/backup", h.batchBackup)
		api.POST("/probe", h.probe)

		targets := api.Group("/targets")
		{
			targets.GET("", h.listTargets)
			targets.POST("", h.addTarget)
			targets.DELETE("/:id", h.removeTarget)
			targets.POST("/:id/backup", h.backupTarget)
		}

		api.GET("/schedule", h.getSchedule)
		api.PUT("/schedule", h.updateSchedule)
	}
}

func (h *APIHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *APIHandler) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Snapshot())
}

func (h *APIHandler) login(c *gin.Context) {
	accepted(c, h.svc.EnqueueManualLogin())
}

func (h *APIHandler) batchBackup(c *gin.Context) {
	t, err := h.svc.EnqueueBatchBackup()
	if errors.Is(err, app.ErrDuplicateTask) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	accepted(c, t)
}

func (h *APIHandler) probe(c *gin.Context) {
	accepted(c, h.svc.EnqueueConnectivityProbe())
}

func (h *APIHandler) listTargets(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Targets())
}

func (h *APIHandler) addTarget(c *gin.Context) {
	var req AddTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and backup_url are required"})
		return
	}

	t, err := h.svc.AddTarget(req.Name, req.Locator)
	if errors.Is(err, store.ErrInvalidTarget) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *APIHandler) removeTarget(c *gin.Context) {
	id, ok := targetID(c)
	if !ok {
		return
	}
	if err := h.svc.RemoveTarget(id); err != nil {
		targetError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *APIHandler) backupTarget(c *gin.Context) {
	id, ok := targetID(c)
	if !ok {
		return
	}
	t, err := h.svc.EnqueueBackup(id)
	if err != nil {
		targetError(c, err)
		return
	}
	accepted(c, t)
}

func (h *APIHandler) getSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, ScheduleResponse{Schedule: h.svc.Schedule()})
}

// updateSchedule merges the request body into the current schedule, so
// omitted jobs and fields keep their values.
func (h *APIHandler) updateSchedule(c *gin.Context) {
	cfg := h.svc.Schedule()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, warnings, err := h.svc.UpdateSchedule(cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ScheduleResponse{Schedule: cfg, Warnings: warnings})
}

func accepted(c *gin.Context, t queue.Task) {
	c.JSON(http.StatusAccepted, TaskResponse{TaskID: t.ID, Label: t.Label})
}

func targetID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid console id"})
		return 0, false
	}
	return id, true
}

func targetError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrTargetNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "console not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
