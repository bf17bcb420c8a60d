package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-exam-engine/internal/response"
	"github.com/stemsi/exstem-exam-engine/internal/service"
)

// SystemHandler reports engine health.
type SystemHandler struct {
	registry  *service.Registry
	storage   string
	startTime time.Time
}

func NewSystemHandler(registry *service.Registry, storage string) *SystemHandler {
	return &SystemHandler{
		registry:  registry,
		storage:   storage,
		startTime: time.Now(),
	}
}

type healthStatus struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Storage    string `json:"storage"`
	Sessions   int    `json:"sessions"`
	Goroutines int    `json:"goroutines"`
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	response.Success(c, http.StatusOK, healthStatus{
		Status:     "ok",
		Uptime:     time.Since(h.startTime).Truncate(time.Second).String(),
		Storage:    h.storage,
		Sessions:   h.registry.Len(),
		Goroutines: runtime.NumGoroutine(),
	})
}
