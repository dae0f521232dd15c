package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Source   string `json:"source"`
}

// HealthCheck returns the health endpoint. ping may be nil when no database is
// configured; source names where feed definitions come from.
func HealthCheck(ping func(context.Context) error, source string) gin.HandlerFunc {
	return func(c *gin.Context) {
		response := HealthResponse{
			Status: "ok",
			Source: source,
		}

		if ping != nil {
			if err := ping(c.Request.Context()); err != nil {
				response.Status = "degraded"
				response.Database = "disconnected"
				c.JSON(http.StatusServiceUnavailable, response)
				return
			}
			response.Database = "connected"
		} else {
			response.Database = "not configured"
		}

		c.JSON(http.StatusOK, response)
	}
}
