package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// MonitorStatus is the read-only view the status endpoint exposes.
type MonitorStatus interface {
	LastHeight() uint64
	WatchedCount() int
}

type HealthHandler struct {
	DB      *gorm.DB
	Monitor MonitorStatus
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
	r.GET("/statusz", h.status)
}

func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) ready(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
		return
	}
	sqlDB, err := h.DB.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_error"})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (h *HealthHandler) status(c *gin.Context) {
	if h.Monitor == nil {
		Error(c, http.StatusServiceUnavailable, "monitor not running", nil)
		return
	}
	Ok(c, gin.H{
		"last_height":    h.Monitor.LastHeight(),
		"watched_tokens": h.Monitor.WatchedCount(),
	}, nil)
}
