package controller

import (
	"context"
	"time"

	appErr "smartsolution/pkg/errors"
	"smartsolution/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) error

// HealthController reports liveness of the service dependencies.
type HealthController struct {
	checks map[string]Checker
}

// NewHealthController creates a controller running the named checks.
func NewHealthController(checks map[string]Checker) *HealthController {
	return &HealthController{checks: checks}
}

// Health runs every check and fails with ServiceUnavailable if any of them fails.
func (h *HealthController) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	var failed *appErr.Error
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			if failed == nil {
				failed = appErr.New(appErr.ServiceUnavailable)
			}
			failed.WithDetail(name, err.Error())
		}
	}
	if failed != nil {
		response.Error(c, failed)
		return
	}
	response.Success(c, gin.H{"status": "ok"})
}
