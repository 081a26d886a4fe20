package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"seat-reservation/services"
	"seat-reservation/utils"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// Sweeps runs a single sweep pass.
type Sweeps interface {
	SweepOnce(ctx context.Context) services.SweepReport
	Mode() string
}

type AdminHandler struct {
	sweeper Sweeps
	redis   redis.Cmdable
}

func NewAdminHandler(sweeper Sweeps, redis redis.Cmdable) *AdminHandler {
	return &AdminHandler{
		sweeper: sweeper,
		redis:   redis,
	}
}

// Sweep - run a release pass now instead of waiting for the ticker
func (h *AdminHandler) Sweep(e *core.RequestEvent) error {
	report := h.sweeper.SweepOnce(e.Request.Context())

	slog.Info("Manual sweep", "mode", h.sweeper.Mode(), "released", report.Released, "failures", report.Failures)

	return e.JSON(http.StatusOK, map[string]any{
		"mode":   h.sweeper.Mode(),
		"report": report,
	})
}

func (h *AdminHandler) Health(e *core.RequestEvent) error {
	if err := utils.RedisHealthCheck(h.redis); err != nil {
		return e.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"redis":  "disconnected",
		})
	}
	return e.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"redis":     "connected",
		"timestamp": time.Now().Unix(),
	})
}
