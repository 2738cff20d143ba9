package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	pingDB    func() error
	pingRedis func() error
}

func NewHealthHandler(pingDB, pingRedis func() error) *HealthHandler {
	return &HealthHandler{pingDB: pingDB, pingRedis: pingRedis}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	deps := gin.H{}
	ready := true

	if h.pingDB != nil {
		if err := h.pingDB(); err != nil {
			deps["db"] = "down"
			ready = false
		} else {
			deps["db"] = "up"
		}
	}

	if h.pingRedis != nil {
		if err := h.pingRedis(); err != nil {
			deps["redis"] = "down"
			ready = false
		} else {
			deps["redis"] = "up"
		}
	}

	if !ready {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "deps": deps})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps})
}
