package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/azurecost/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
)

func (s *Server) Home(c *gin.Context) {
	resp := gin.H{
		"message":     "Welcome to Azure Cost Analyzer API",
		"version":     s.cfg.AppVersion,
		"description": "API for analyzing Azure cloud costs and usage",
		"endpoints": gin.H{
			"costs":   "/cost",
			"health":  "/health",
			"status":  "/status",
			"metrics": "/metrics",
		},
	}
	if s.cfg.ShowDebugInfo() {
		resp["environment"] = s.cfg.Environment
		resp["debug_mode"] = s.cfg.Debug
	}
	c.JSON(http.StatusOK, resp)
}

// Health always answers 200; a failed database ping reports degraded.
func (s *Server) Health(c *gin.Context) {
	dbStatus := "connected"
	if err := s.pingDB(c.Request.Context()); err != nil {
		logger.FromContext(c.Request.Context()).Warn("health check database ping failed", zap.Error(err))
		dbStatus = "disconnected"
	}

	status := healthStatusHealthy
	if dbStatus != "connected" {
		status = healthStatusDegraded
	}
	resp := gin.H{
		"status":   status,
		"database": dbStatus,
	}
	if s.cfg.ShowDebugInfo() {
		resp["environment"] = s.cfg.Environment
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) pingDB(ctx context.Context) error {
	if s.db == nil {
		return ErrServiceUnavailable
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

type jobStatusResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Enabled   bool       `json:"enabled"`
	Running   bool       `json:"running"`
	NextRun   *time.Time `json:"next_run"`
	Trigger   *string    `json:"trigger"`
	LastRun   *time.Time `json:"last_run"`
	LastError *string    `json:"last_error"`
}

// SchedulerStatus lists scheduled jobs. Next fire times and triggers are
// only shown in development.
func (s *Server) SchedulerStatus(c *gin.Context) {
	if s.scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"status": "stopped", "jobs": []jobStatusResponse{}})
		return
	}

	status := s.scheduler.Status()
	jobs := make([]jobStatusResponse, 0, len(status.Jobs))
	for _, js := range status.Jobs {
		item := jobStatusResponse{
			ID:      js.ID,
			Name:    js.Name,
			Enabled: js.Enabled,
			Running: js.Running,
			LastRun: js.LastRun,
		}
		if js.LastError != "" {
			lastError := js.LastError
			item.LastError = &lastError
		}
		if s.cfg.IsDevelopment() {
			item.NextRun = js.NextRun
			if js.Trigger != "" {
				trigger := js.Trigger
				item.Trigger = &trigger
			}
		}
		jobs = append(jobs, item)
	}

	state := "stopped"
	if status.Running {
		state = "running"
	}
	c.JSON(http.StatusOK, gin.H{"status": state, "jobs": jobs})
}

// RunJob triggers a scheduled job now and waits for it to finish.
func (s *Server) RunJob(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	id := c.Param("id")
	if err := s.scheduler.RunJob(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "job": id})
}
