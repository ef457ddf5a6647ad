package mcp

import (
	"context"
	"fmt"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	domainScheduled "github.com/AzielCF/az-bulk/domains/scheduledmessage"
	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SchedulerHandler exposes scheduled message operations as MCP tools for
// operators driving the system from an agent.
type SchedulerHandler struct {
	service domainScheduled.IScheduledMessageUsecase
}

func InitMcpScheduler(service domainScheduled.IScheduledMessageUsecase) *SchedulerHandler {
	return &SchedulerHandler{service: service}
}

func (h *SchedulerHandler) AddSchedulerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolListJobs(), h.handleListJobs)
	mcpServer.AddTool(h.toolGetJob(), h.handleGetJob)
	mcpServer.AddTool(h.toolJobAction("scheduled_message_pause", "Pause Scheduled Message", "Pause a scheduled message. A running batch stops before its next recipient."), h.handlePause)
	mcpServer.AddTool(h.toolJobAction("scheduled_message_resume", "Resume Scheduled Message", "Resume a paused scheduled message from where it stopped."), h.handleResume)
	mcpServer.AddTool(h.toolJobAction("scheduled_message_cancel", "Cancel Scheduled Message", "Cancel a scheduled message permanently."), h.handleCancel)
	mcpServer.AddTool(h.toolJobAction("scheduled_message_execute", "Execute Scheduled Message", "Run a scheduled message now, outside of its schedule."), h.handleExecute)
	mcpServer.AddTool(h.toolExecutions(), h.handleExecutions)
	mcpServer.AddTool(h.toolStatus(), h.handleStatus)
	mcpServer.AddTool(h.toolTrigger(), h.handleTrigger)
	mcpServer.AddTool(h.toolSetInterval(), h.handleSetInterval)
}

func (h *SchedulerHandler) toolListJobs() mcp.Tool {
	return mcp.NewTool(
		"scheduled_messages_list",
		mcp.WithDescription("List scheduled SMS and WhatsApp messages, optionally filtered by status, channel or owner."),
		mcp.WithTitleAnnotation("List Scheduled Messages"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("status", mcp.Description("Filter by status: scheduled, pending, running, completed, failed, paused, cancelled.")),
		mcp.WithString("message_type", mcp.Description("Filter by channel: sms or whatsapp.")),
		mcp.WithString("user_id", mcp.Description("Filter by owner.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of jobs to return.")),
	)
}

func (h *SchedulerHandler) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := h.service.List(ctx, domainScheduled.ListRequest{
		Status:      request.GetString("status", ""),
		MessageType: request.GetString("message_type", ""),
		UserID:      request.GetString("user_id", ""),
		Limit:       request.GetInt("limit", 0),
	})
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Found %d scheduled messages", len(jobs))
	return mcp.NewToolResultStructured(jobs, fallback), nil
}

func (h *SchedulerHandler) toolGetJob() mcp.Tool {
	return mcp.NewTool(
		"scheduled_message_get",
		mcp.WithDescription("Get a scheduled message with its progress and next run."),
		mcp.WithTitleAnnotation("Get Scheduled Message"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("id", mcp.Description("Scheduled message id."), mcp.Required()),
	)
}

func (h *SchedulerHandler) handleGetJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return nil, err
	}
	found, err := h.service.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("%s is %s (%d/%d sent)", found.Name, found.Status, found.Progress.Success, found.Progress.Total)
	if found.NextExecutionAt != nil {
		fallback += ", next run " + humanize.Time(*found.NextExecutionAt)
	}
	return mcp.NewToolResultStructured(found, fallback), nil
}

func (h *SchedulerHandler) toolJobAction(name, title, description string) mcp.Tool {
	return mcp.NewTool(
		name,
		mcp.WithDescription(description),
		mcp.WithTitleAnnotation(title),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(name == "scheduled_message_cancel"),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("id", mcp.Description("Scheduled message id."), mcp.Required()),
	)
}

func (h *SchedulerHandler) handlePause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.transition(ctx, request, h.service.Pause, "paused")
}

func (h *SchedulerHandler) handleResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.transition(ctx, request, h.service.Resume, "resumed")
}

func (h *SchedulerHandler) handleCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.transition(ctx, request, h.service.Cancel, "cancelled")
}

func (h *SchedulerHandler) transition(
	ctx context.Context,
	request mcp.CallToolRequest,
	fn func(context.Context, string) (job.ScheduledJob, error),
	verb string,
) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return nil, err
	}
	updated, err := fn(ctx, id)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(updated, fmt.Sprintf("Scheduled message %s %s", id, verb)), nil
}

func (h *SchedulerHandler) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return nil, err
	}
	resp, err := h.service.Execute(ctx, id)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Scheduled message %s finished as %s (%d sent, %d failed)", id, resp.Status, resp.Progress.Success, resp.Progress.Failed)
	if resp.Queued {
		fallback = fmt.Sprintf("Scheduled message %s queued for execution", id)
	}
	return mcp.NewToolResultStructured(resp, fallback), nil
}

func (h *SchedulerHandler) toolExecutions() mcp.Tool {
	return mcp.NewTool(
		"scheduled_message_executions",
		mcp.WithDescription("List the execution history of a scheduled message, newest first."),
		mcp.WithTitleAnnotation("Execution History"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("id", mcp.Description("Scheduled message id."), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records.")),
	)
}

func (h *SchedulerHandler) handleExecutions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return nil, err
	}
	records, err := h.service.ListExecutions(ctx, id, request.GetInt("limit", 0))
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(records, fmt.Sprintf("Found %d executions", len(records))), nil
}

func (h *SchedulerHandler) toolStatus() mcp.Tool {
	return mcp.NewTool(
		"scheduler_status",
		mcp.WithDescription("Show whether the scheduler is running, its interval and the last check."),
		mcp.WithTitleAnnotation("Scheduler Status"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func (h *SchedulerHandler) handleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := h.service.SchedulerStatus(ctx)
	if err != nil {
		return nil, err
	}

	state := "stopped"
	if status.Poller.Running {
		state = "running"
	}
	fallback := fmt.Sprintf("Scheduler %s every %s, %s runs so far", state, status.Poller.Interval, humanize.Comma(status.Poller.TotalRuns))
	return mcp.NewToolResultStructured(status, fallback), nil
}

func (h *SchedulerHandler) toolTrigger() mcp.Tool {
	return mcp.NewTool(
		"scheduler_trigger",
		mcp.WithDescription("Ask every scheduler to check for due messages right away."),
		mcp.WithTitleAnnotation("Trigger Scheduler Check"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func (h *SchedulerHandler) handleTrigger(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.service.TriggerCheck(ctx); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText("Scheduler check triggered"), nil
}

func (h *SchedulerHandler) toolSetInterval() mcp.Tool {
	return mcp.NewTool(
		"scheduler_set_interval",
		mcp.WithDescription("Change how often server-mode schedulers check for due messages. Workers pick the stored value up on their next start."),
		mcp.WithTitleAnnotation("Set Scheduler Interval"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("interval", mcp.Description("Go duration, at least 1s, e.g. 30s or 5m."), mcp.Required()),
	)
}

func (h *SchedulerHandler) handleSetInterval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	interval, err := request.RequireString("interval")
	if err != nil {
		return nil, err
	}
	status, err := h.service.SetSchedulerInterval(ctx, domainScheduled.IntervalRequest{Interval: interval})
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(status, "Scheduler interval set to "+status.Poller.Interval), nil
}
