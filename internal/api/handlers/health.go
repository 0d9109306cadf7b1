package handlers

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// Pinger 檢查資料庫是否可用
type Pinger interface {
	Ping() error
}

// HealthHandler 存活與就緒檢查
type HealthHandler struct {
	db    Pinger
	ready *atomic.Bool // 所有回饋提供者都就緒後才設為 true
}

func NewHealthHandler(db Pinger, ready *atomic.Bool) *HealthHandler {
	return &HealthHandler{db: db, ready: ready}
}

// Health 行程存活即回應 ok
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready 提供者就緒且資料庫可連線時回應 200
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ready != nil && !h.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
