// Package handler implements the HTTP handlers of the tokenctl server.
package handler

import (
	"time"

	"github.com/moweilong/tokenservice/pkg/stat"
)

// Handler serves the health and statistics endpoints from a statistics registry.
type Handler struct {
	registry *stat.Registry
	now      func() time.Time
}

// NewHandler creates a Handler over registry.
func NewHandler(registry *stat.Registry) *Handler {
	return &Handler{
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}
