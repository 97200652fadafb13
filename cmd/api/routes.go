package main

import (
	"afterhours-agent/internal/telephony"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic.
func registerRoutes(r *gin.Engine, h *telephony.Handlers) {
	r.GET("/healthz", h.HandleHealth)

	// Provider webhooks (public).
	// NOTE: this endpoint should be protected by provider signature
	// validation in production.
	r.POST("/voice", h.HandleInboundCall)
	r.GET("/voice", h.HandleInboundCall)

	r.GET("/media-stream", h.HandleMediaStream)
}
