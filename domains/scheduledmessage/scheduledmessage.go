package scheduledmessage

import (
	"context"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/application"
	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/AzielCF/az-bulk/pkg/msgworker"
)

type IScheduledMessageUsecase interface {
	Create(ctx context.Context, request CreateRequest) (job.ScheduledJob, error)
	Get(ctx context.Context, id string) (job.ScheduledJob, error)
	List(ctx context.Context, request ListRequest) ([]job.ScheduledJob, error)
	Update(ctx context.Context, id string, request UpdateRequest) (job.ScheduledJob, error)
	Delete(ctx context.Context, id string) error
	Pause(ctx context.Context, id string) (job.ScheduledJob, error)
	Resume(ctx context.Context, id string) (job.ScheduledJob, error)
	Cancel(ctx context.Context, id string) (job.ScheduledJob, error)
	Execute(ctx context.Context, id string) (ExecuteResponse, error)
	ListExecutions(ctx context.Context, id string, limit int) ([]job.ExecutionRecord, error)

	SchedulerStatus(ctx context.Context) (SchedulerStatus, error)
	SetSchedulerInterval(ctx context.Context, request IntervalRequest) (SchedulerStatus, error)
	TriggerCheck(ctx context.Context) error
	StartScheduler(ctx context.Context) (SchedulerStatus, error)
	StopScheduler(ctx context.Context) (SchedulerStatus, error)
}

type RecipientRequest struct {
	Phone      string `json:"phone"`
	Name       string `json:"name,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

type MediaRequest struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	ViewOnce bool   `json:"view_once"`
}

// SettingsRequest leaves a field nil to keep the channel default.
type SettingsRequest struct {
	MinDelay       *int  `json:"min_delay,omitempty"`
	MaxDelay       *int  `json:"max_delay,omitempty"`
	UseRandomDelay *bool `json:"random_delay,omitempty"`
}

type CreateRequest struct {
	UserID             string             `json:"user_id"`
	Name               string             `json:"name"`
	MessageType        string             `json:"message_type"`
	MessageContent     string             `json:"message_content"`
	Media              *MediaRequest      `json:"media,omitempty"`
	Recipients         []RecipientRequest `json:"recipients"`
	ScheduleType       string             `json:"schedule_type"`
	ScheduledFor       time.Time          `json:"scheduled_for"`
	RecurrenceInterval string             `json:"recurrence_interval,omitempty"`
	RecurrenceEndDate  *time.Time         `json:"recurrence_end_date,omitempty"`
	Timezone           string             `json:"timezone,omitempty"`
	ExecutionMode      string             `json:"execution_mode,omitempty"`
	AutoExecute        *bool              `json:"auto_execute,omitempty"`
	Settings           *SettingsRequest   `json:"settings,omitempty"`
}

// UpdateRequest only touches the fields that are set.
type UpdateRequest struct {
	Name               *string            `json:"name,omitempty"`
	MessageContent     *string            `json:"message_content,omitempty"`
	Media              *MediaRequest      `json:"media,omitempty"`
	RemoveMedia        bool               `json:"remove_media,omitempty"`
	Recipients         []RecipientRequest `json:"recipients,omitempty"`
	ScheduleType       *string            `json:"schedule_type,omitempty"`
	ScheduledFor       *time.Time         `json:"scheduled_for,omitempty"`
	RecurrenceInterval *string            `json:"recurrence_interval,omitempty"`
	RecurrenceEndDate  *time.Time         `json:"recurrence_end_date,omitempty"`
	Timezone           *string            `json:"timezone,omitempty"`
	ExecutionMode      *string            `json:"execution_mode,omitempty"`
	AutoExecute        *bool              `json:"auto_execute,omitempty"`
	Settings           *SettingsRequest   `json:"settings,omitempty"`
}

type ListRequest struct {
	UserID      string `json:"user_id" query:"user_id"`
	Status      string `json:"status" query:"status"`
	MessageType string `json:"message_type" query:"message_type"`
	Limit       int    `json:"limit" query:"limit"`
	Offset      int    `json:"offset" query:"offset"`
}

// IntervalRequest takes a Go duration such as "30s" or "5m".
type IntervalRequest struct {
	Interval string `json:"interval"`
}

type ExecuteResponse struct {
	JobID    string       `json:"job_id"`
	Queued   bool         `json:"queued"`
	Status   job.Status   `json:"status"`
	Progress job.Progress `json:"progress"`
}

type SchedulerStatus struct {
	Poller application.PollerStatus `json:"poller"`
	Pool   *msgworker.PoolStats     `json:"pool,omitempty"`
}
