package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moweilong/tokenservice/pkg/health"
	"github.com/moweilong/tokenservice/pkg/log"
)

// Healthz reports the health of every token source. Unhealthy maps to 503.
func (h *Handler) Healthz(c *gin.Context) {
	report := health.Check(h.registry.Snapshot(), h.now())
	log.W(c.Request.Context()).Debugw("Healthz handler is called", "method", "Healthz", "status", report.Status.String())

	code := http.StatusOK
	if report.Status == health.Unhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}
