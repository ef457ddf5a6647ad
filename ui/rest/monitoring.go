package rest

import (
	"github.com/AzielCF/az-bulk/pkg/runmonitor"
	"github.com/AzielCF/az-bulk/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Monitoring struct {
	Monitor *runmonitor.Monitor
}

// InitRestMonitoring exposes the execution events seen by this process.
func InitRestMonitoring(app fiber.Router, monitor *runmonitor.Monitor) Monitoring {
	handler := Monitoring{Monitor: monitor}

	group := app.Group("/api/monitoring")
	group.Get("/events", handler.GetRecentEvents)

	return handler
}

func (h *Monitoring) GetRecentEvents(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Recent execution events",
		Results: h.Monitor.Stats(c.Query("job_id")),
	})
}
