package rest

import (
	domainScheduled "github.com/AzielCF/az-bulk/domains/scheduledmessage"
	pkgError "github.com/AzielCF/az-bulk/pkg/error"
	"github.com/AzielCF/az-bulk/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type ScheduledMessage struct {
	Service domainScheduled.IScheduledMessageUsecase
}

func InitRestScheduledMessage(app fiber.Router, service domainScheduled.IScheduledMessageUsecase) ScheduledMessage {
	rest := ScheduledMessage{Service: service}

	group := app.Group("/api/scheduled-messages")
	group.Post("/", rest.Create)
	group.Get("/", rest.List)
	group.Get("/:id", rest.Get)
	group.Put("/:id", rest.Update)
	group.Delete("/:id", rest.Delete)
	group.Post("/:id/pause", rest.Pause)
	group.Post("/:id/resume", rest.Resume)
	group.Post("/:id/cancel", rest.Cancel)
	group.Post("/:id/execute", rest.Execute)
	group.Get("/:id/executions", rest.Executions)

	return rest
}

func (handler *ScheduledMessage) Create(c *fiber.Ctx) error {
	var request domainScheduled.CreateRequest
	if err := c.BodyParser(&request); err != nil {
		panic(pkgError.ValidationError("invalid request body: " + err.Error()))
	}

	created, err := handler.Service.Create(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  fiber.StatusCreated,
		Code:    "SUCCESS",
		Message: "Scheduled message created",
		Results: created,
	})
}

func (handler *ScheduledMessage) List(c *fiber.Ctx) error {
	var request domainScheduled.ListRequest
	if err := c.QueryParser(&request); err != nil {
		panic(pkgError.ValidationError("invalid query: " + err.Error()))
	}

	jobs, err := handler.Service.List(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduled messages retrieved",
		Results: jobs,
	})
}

func (handler *ScheduledMessage) Get(c *fiber.Ctx) error {
	found, err := handler.Service.Get(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduled message retrieved",
		Results: found,
	})
}

func (handler *ScheduledMessage) Update(c *fiber.Ctx) error {
	var request domainScheduled.UpdateRequest
	if err := c.BodyParser(&request); err != nil {
		panic(pkgError.ValidationError("invalid request body: " + err.Error()))
	}

	updated, err := handler.Service.Update(c.UserContext(), c.Params("id"), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduled message updated",
		Results: updated,
	})
}

func (handler *ScheduledMessage) Delete(c *fiber.Ctx) error {
	err := handler.Service.Delete(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduled message deleted",
	})
}

func (handler *ScheduledMessage) Pause(c *fiber.Ctx) error {
	paused, err := handler.Service.Pause(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduled message paused",
		Results: paused,
	})
}

func (handler *ScheduledMessage) Resume(c *fiber.Ctx) error {
	resumed, err := handler.Service.Resume(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduled message resumed",
		Results: resumed,
	})
}

func (handler *ScheduledMessage) Cancel(c *fiber.Ctx) error {
	cancelled, err := handler.Service.Cancel(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Scheduled message cancelled",
		Results: cancelled,
	})
}

func (handler *ScheduledMessage) Execute(c *fiber.Ctx) error {
	response, err := handler.Service.Execute(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	status := fiber.StatusOK
	message := "Scheduled message executed"
	if response.Queued {
		status = fiber.StatusAccepted
		message = "Scheduled message queued for execution"
	}
	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    "SUCCESS",
		Message: message,
		Results: response,
	})
}

func (handler *ScheduledMessage) Executions(c *fiber.Ctx) error {
	records, err := handler.Service.ListExecutions(c.UserContext(), c.Params("id"), c.QueryInt("limit", 0))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Execution history retrieved",
		Results: records,
	})
}
