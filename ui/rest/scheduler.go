package rest

import (
	domainScheduled "github.com/AzielCF/az-bulk/domains/scheduledmessage"
	pkgError "github.com/AzielCF/az-bulk/pkg/error"
	"github.com/AzielCF/az-bulk/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// Scheduler exposes the poller controls of this process.
type Scheduler struct {
	Service domainScheduled.IScheduledMessageUsecase
}

func InitRestScheduler(app fiber.Router, service domainScheduled.IScheduledMessageUsecase) Scheduler {
	rest := Scheduler{Service: service}

	group := app.Group("/api/scheduler")
	group.Get("/status", rest.Status)
	group.Put("/interval", rest.SetInterval)
	group.Post("/trigger", rest.Trigger)
	group.Post("/start", rest.Start)
	group.Post("/stop", rest.Stop)

	return rest
}

func (handler *Scheduler) Status(c *fiber.Ctx) error {
	status, err := handler.Service.SchedulerStatus(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduler status retrieved",
		Results: status,
	})
}

func (handler *Scheduler) SetInterval(c *fiber.Ctx) error {
	var request domainScheduled.IntervalRequest
	if err := c.BodyParser(&request); err != nil {
		panic(pkgError.ValidationError("invalid request body: " + err.Error()))
	}

	status, err := handler.Service.SetSchedulerInterval(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduler interval updated",
		Results: status,
	})
}

func (handler *Scheduler) Trigger(c *fiber.Ctx) error {
	err := handler.Service.TriggerCheck(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusAccepted).JSON(utils.ResponseData{
		Status:  fiber.StatusAccepted,
		Code:    "SUCCESS",
		Message: "Scheduler check triggered",
	})
}

func (handler *Scheduler) Start(c *fiber.Ctx) error {
	status, err := handler.Service.StartScheduler(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduler started",
		Results: status,
	})
}

func (handler *Scheduler) Stop(c *fiber.Ctx) error {
	status, err := handler.Service.StopScheduler(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduler stopped",
		Results: status,
	})
}
