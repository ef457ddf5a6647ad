package job

import (
	"strings"
	"time"
)

type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Claimable reports whether a poller may pick the job up on a tick.
func (s Status) Claimable() bool {
	return s == StatusPending || s == StatusScheduled
}

type ScheduleType string

const (
	ScheduleOnce    ScheduleType = "once"
	ScheduleDaily   ScheduleType = "recurring_daily"
	ScheduleWeekly  ScheduleType = "recurring_weekly"
	ScheduleMonthly ScheduleType = "recurring_monthly"
	ScheduleCustom  ScheduleType = "recurring_custom"
)

// NormalizeScheduleType maps the short aliases (daily, weekly...) onto the stored names.
// Unknown values are returned lowercased so validation can reject them.
func NormalizeScheduleType(raw string) ScheduleType {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "once", "":
		return ScheduleOnce
	case "daily", string(ScheduleDaily):
		return ScheduleDaily
	case "weekly", string(ScheduleWeekly):
		return ScheduleWeekly
	case "monthly", string(ScheduleMonthly):
		return ScheduleMonthly
	case "custom", string(ScheduleCustom):
		return ScheduleCustom
	}
	return ScheduleType(v)
}

func (t ScheduleType) IsRecurring() bool {
	switch t {
	case ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleCustom:
		return true
	}
	return false
}

func (t ScheduleType) Valid() bool {
	return t == ScheduleOnce || t.IsRecurring()
}

type ExecutionMode string

const (
	ModeServer  ExecutionMode = "server"
	ModeBrowser ExecutionMode = "browser"
)

type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
	MediaAudio    MediaType = "audio"
)

type Recipient struct {
	Phone      string `json:"phone"`
	Name       string `json:"name,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

// Media is only honoured on the WhatsApp channel.
type Media struct {
	URL      string    `json:"url"`
	Type     MediaType `json:"type"`
	ViewOnce bool      `json:"view_once"`
}

// Settings are expressed in milliseconds, as stored.
type Settings struct {
	MinDelay       int  `json:"min_delay"`
	MaxDelay       int  `json:"max_delay"`
	UseRandomDelay bool `json:"random_delay"`
}

// Run is the execution_count the run will reach once finished. Progress
// with Run above the stored count belongs to a run that has not been
// finalized yet.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Run     int `json:"run,omitempty"`
}

// Pending is the number of recipients not yet attempted in the current run.
func (p Progress) Pending() int {
	if p.Total < p.Current {
		return 0
	}
	return p.Total - p.Current
}

type FailedRecipient struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// SystemPhone marks the synthetic failure entry written when a whole batch cannot start.
const SystemPhone = "system"

type Recurrence struct {
	Type     ScheduleType `json:"schedule_type"`
	Interval string       `json:"interval,omitempty"`
	EndDate  *time.Time   `json:"end_date,omitempty"`
}

type ScheduledJob struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`

	Channel  Channel `json:"message_type"`
	Template string  `json:"message_content"`
	Media    *Media  `json:"media,omitempty"`

	Recipients      []Recipient `json:"recipients"`
	TotalRecipients int         `json:"total_recipients"`

	Recurrence   Recurrence `json:"recurrence"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Timezone     string     `json:"timezone"`

	ExecutionMode ExecutionMode `json:"execution_mode"`
	AutoExecute   bool          `json:"auto_execute"`
	Settings      Settings      `json:"settings"`

	Status           Status            `json:"status"`
	ExecutionCount   int               `json:"execution_count"`
	Progress         Progress          `json:"progress"`
	FailedRecipients []FailedRecipient `json:"failed_recipients"`
	LastError        string            `json:"error_message,omitempty"`
	ClaimedBy        string            `json:"claimed_by,omitempty"`

	LastExecutedAt  *time.Time `json:"last_executed_at,omitempty"`
	NextExecutionAt *time.Time `json:"next_execution_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	HeartbeatAt     *time.Time `json:"heartbeat_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ResetProgress prepares a fresh run over the full recipient list.
func (j *ScheduledJob) ResetProgress() {
	j.Progress = Progress{Total: j.TotalRecipients}
	j.FailedRecipients = []FailedRecipient{}
}

// NeedsFreshRun is true when the stored progress belongs to a finished run.
func (j *ScheduledJob) NeedsFreshRun() bool {
	return j.Progress.Total == 0 || (j.Progress.Current >= j.Progress.Total && !j.NeedsFinish())
}

// NeedsFinish is true when every recipient of the current run was attempted
// but the run was never finalized, e.g. because storing the completion failed.
func (j *ScheduledJob) NeedsFinish() bool {
	p := j.Progress
	return p.Total > 0 && p.Current >= p.Total && p.Run > j.ExecutionCount
}

// StampRun ties the progress block to the upcoming execution.
func (j *ScheduledJob) StampRun() {
	if j.Progress.Run <= j.ExecutionCount {
		j.Progress.Run = j.ExecutionCount + 1
	}
}

func (j *ScheduledJob) IsRunning() bool {
	return j.Status == StatusRunning
}
