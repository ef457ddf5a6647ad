package rest

import (
	"context"
	"sort"
	"time"

	"github.com/AzielCF/az-bulk/core/config"
	"github.com/AzielCF/az-bulk/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// HealthCheck probes one dependency (database, valkey, a transport).
type HealthCheck func(ctx context.Context) error

type Health struct {
	Checks map[string]HealthCheck
}

type healthRecord struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func InitRestHealth(app fiber.Router, checks map[string]HealthCheck) Health {
	handler := Health{Checks: checks}

	group := app.Group("/api/health")
	group.Get("/status", handler.GetStatus)
	app.Get("/api/settings", handler.GetSettings)

	return handler
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	records := make([]healthRecord, 0, len(names))
	for _, name := range names {
		rec := healthRecord{Name: name, Healthy: true}
		if err := h.Checks[name](ctx); err != nil {
			rec.Healthy = false
			rec.Error = err.Error()
			healthy = false
		}
		records = append(records, rec)
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.ResponseData{
			Status:  fiber.StatusServiceUnavailable,
			Code:    "UNHEALTHY",
			Message: "One or more dependencies are unavailable",
			Results: records,
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Health status retrieved",
		Results: records,
	})
}

func (h *Health) GetSettings(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Settings retrieved",
		Results: config.GetAllSettings(),
	})
}
