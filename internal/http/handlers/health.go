package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/styletag-backend/internal/http/response"
	"github.com/yungbote/styletag-backend/internal/platform/apierr"
)

// Pinger checks a dependency. Nil pingers are skipped.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	for name, ping := range h.checks {
		if ping == nil {
			continue
		}
		if err := ping(ctx); err != nil {
			response.RespondError(c, apierr.Unavailable(name+"_unavailable", err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
