package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moweilong/tokenservice/pkg/log"
	"github.com/moweilong/tokenservice/pkg/stat"
)

// StatsResponse lists the statistics of every token source, keyed by statistics key.
type StatsResponse struct {
	Sources map[string]stat.Values `json:"sources"`
}

// Stats returns a snapshot of the registry.
func (h *Handler) Stats(c *gin.Context) {
	view := h.registry.Snapshot()
	resp := StatsResponse{Sources: make(map[string]stat.Values, view.Len())}
	view.Range(func(key string, s *stat.ServiceStats) bool {
		resp.Sources[key] = s.Snapshot()
		return true
	})
	log.W(c.Request.Context()).Debugw("Stats handler is called", "method", "Stats", "sources", len(resp.Sources))
	c.JSON(http.StatusOK, resp)
}
