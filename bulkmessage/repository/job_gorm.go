package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// --- Persistence Models ---

type scheduledMessageModel struct {
	ID                 string         `gorm:"primaryKey;column:id"`
	UserID             string         `gorm:"column:user_id;not null;index"`
	Name               string         `gorm:"column:name"`
	MessageType        string         `gorm:"column:message_type;not null"`
	MessageContent     string         `gorm:"column:message_content;type:text;not null"`
	MediaURL           sql.NullString `gorm:"column:media_url"`
	MediaType          sql.NullString `gorm:"column:media_type"`
	ViewOnce           bool           `gorm:"column:view_once;default:false"`
	Recipients         string         `gorm:"column:recipients;type:text;not null"` // JSON
	TotalRecipients    int            `gorm:"column:total_recipients;not null"`
	ScheduleType       string         `gorm:"column:schedule_type;not null"`
	RecurrenceInterval sql.NullString `gorm:"column:recurrence_interval"`
	RecurrenceEndDate  *time.Time     `gorm:"column:recurrence_end_date"`
	ScheduledFor       time.Time      `gorm:"column:scheduled_for;not null;index:idx_sbm_due,priority:3"`
	Timezone           string         `gorm:"column:timezone;default:'Africa/Dar_es_Salaam'"`
	ExecutionMode      string         `gorm:"column:execution_mode;not null;index:idx_sbm_due,priority:1"`
	AutoExecute        bool           `gorm:"column:auto_execute;not null"`
	Settings           string         `gorm:"column:settings;type:text"` // JSON
	Status             string         `gorm:"column:status;not null;index:idx_sbm_due,priority:2"`
	ExecutionCount     int            `gorm:"column:execution_count;default:0"`
	Progress           string         `gorm:"column:progress;type:text"`          // JSON
	FailedRecipients   string         `gorm:"column:failed_recipients;type:text"` // JSON
	ErrorMessage       sql.NullString `gorm:"column:error_message;type:text"`
	ClaimedBy          sql.NullString `gorm:"column:claimed_by"`
	LastExecutedAt     *time.Time     `gorm:"column:last_executed_at"`
	NextExecutionAt    *time.Time     `gorm:"column:next_execution_at"`
	StartedAt          *time.Time     `gorm:"column:started_at"`
	CompletedAt        *time.Time     `gorm:"column:completed_at"`
	HeartbeatAt        *time.Time     `gorm:"column:heartbeat_at"`
	CreatedAt          time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;not null"`
}

func (scheduledMessageModel) TableName() string { return "scheduled_bulk_messages" }

type executionModel struct {
	ID                 string    `gorm:"primaryKey;column:id"`
	ScheduledMessageID string    `gorm:"column:scheduled_message_id;not null;index"`
	ExecutedAt         time.Time `gorm:"column:executed_at;not null;index"`
	ExecutionDuration  int64     `gorm:"column:execution_duration"` // ms
	TotalSent          int       `gorm:"column:total_sent"`
	SuccessCount       int       `gorm:"column:success_count"`
	FailedCount        int       `gorm:"column:failed_count"`
	Status             string    `gorm:"column:status;not null"`
	FailedRecipients   string    `gorm:"column:failed_recipients;type:text"` // JSON
	ExecutedBy         string    `gorm:"column:executed_by"`
}

func (executionModel) TableName() string { return "scheduled_message_executions" }

// --- Repository Implementation ---

type JobGormRepository struct {
	db *gorm.DB
}

func NewJobGormRepository(db *gorm.DB) *JobGormRepository {
	return &JobGormRepository{db: db}
}

func (r *JobGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&scheduledMessageModel{}, &executionModel{})
}

func (r *JobGormRepository) Create(ctx context.Context, j *job.ScheduledJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	model := toScheduledMessageModel(j)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *JobGormRepository) Get(ctx context.Context, id string) (*job.ScheduledJob, error) {
	var m scheduledMessageModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, job.ErrJobNotFound
		}
		return nil, err
	}
	return fromScheduledMessageModel(m), nil
}

func (r *JobGormRepository) List(ctx context.Context, f job.ListFilter) ([]job.ScheduledJob, error) {
	q := r.db.WithContext(ctx).Model(&scheduledMessageModel{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Channel != "" {
		q = q.Where("message_type = ?", string(f.Channel))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var models []scheduledMessageModel
	if err := q.Order("scheduled_for ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	return fromScheduledMessageModels(models), nil
}

// runColumns belong to the runner holding the claim and are never rewritten
// by a definition update.
var runColumns = []string{"created_at", "execution_count", "last_executed_at", "started_at", "heartbeat_at"}

func (r *JobGormRepository) Update(ctx context.Context, j *job.ScheduledJob) error {
	j.UpdatedAt = time.Now().UTC()
	j.ClaimedBy = ""
	model := toScheduledMessageModel(j)
	res := r.db.WithContext(ctx).Model(&scheduledMessageModel{}).
		Where("id = ? AND status <> ?", j.ID, string(job.StatusRunning)).
		Select("*").Omit(runColumns...).Updates(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notRunning(r.db.WithContext(ctx), j.ID)
	}
	return nil
}

func (r *JobGormRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("status <> ?", string(job.StatusRunning)).Delete(&scheduledMessageModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notRunning(tx, id)
		}
		return tx.Delete(&executionModel{}, "scheduled_message_id = ?", id).Error
	})
}

// notRunning explains a write guarded on status <> running that matched no row.
func notRunning(db *gorm.DB, id string) error {
	var m scheduledMessageModel
	if err := db.Select("id").First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return job.ErrJobNotFound
		}
		return err
	}
	return job.ErrJobRunning
}

func (r *JobGormRepository) UpdateStatus(ctx context.Context, id string, status job.Status) error {
	res := r.db.WithContext(ctx).Model(&scheduledMessageModel{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

func (r *JobGormRepository) TransitionStatus(ctx context.Context, id string, from []job.Status, to job.Status) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	updates := map[string]any{"status": string(to), "updated_at": time.Now().UTC()}
	if to.Claimable() {
		updates["claimed_by"] = nil
	}

	res := r.db.WithContext(ctx).Model(&scheduledMessageModel{}).
		Where("id = ? AND status IN ?", id, allowed).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return job.ErrStatusConflict
	}
	return nil
}

var claimableStatuses = []string{string(job.StatusPending), string(job.StatusScheduled)}

const staleRunningClause = "(status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?))"

func (r *JobGormRepository) ListDue(ctx context.Context, q job.DueQuery) ([]job.ScheduledJob, error) {
	query := r.db.WithContext(ctx).Model(&scheduledMessageModel{}).
		Where("execution_mode = ? AND auto_execute = ? AND scheduled_for <= ?", string(q.Mode), true, q.Now.UTC()).
		Where("(status IN ? OR "+staleRunningClause+")", claimableStatuses, string(job.StatusRunning), q.StaleBefore.UTC()).
		Order("scheduled_for ASC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var models []scheduledMessageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return fromScheduledMessageModels(models), nil
}

// Claim is a single conditional UPDATE, so two runners racing for the same row
// cannot both see RowsAffected == 1.
func (r *JobGormRepository) Claim(ctx context.Context, req job.ClaimRequest) (*job.ScheduledJob, error) {
	now := req.Now.UTC()
	q := r.db.WithContext(ctx).Model(&scheduledMessageModel{}).Where("id = ?", req.JobID)
	if req.AllowAnyStatus {
		q = q.Where("(status NOT IN ? OR "+staleRunningClause+")",
			[]string{string(job.StatusCancelled), string(job.StatusRunning)},
			string(job.StatusRunning), req.StaleBefore.UTC())
	} else {
		q = q.Where("(status IN ? OR "+staleRunningClause+")",
			claimableStatuses, string(job.StatusRunning), req.StaleBefore.UTC())
	}

	res := q.Updates(map[string]any{
		"status":       string(job.StatusRunning),
		"claimed_by":   req.Owner,
		"heartbeat_at": now,
		"started_at":   now,
		"updated_at":   now,
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, req.JobID); err != nil {
			return nil, err
		}
		return nil, job.ErrJobAlreadyClaimed
	}
	return r.Get(ctx, req.JobID)
}

func (r *JobGormRepository) Release(ctx context.Context, id, owner string) error {
	return r.db.WithContext(ctx).Model(&scheduledMessageModel{}).
		Where("id = ? AND status = ? AND claimed_by = ?", id, string(job.StatusRunning), owner).
		Updates(map[string]any{
			"status":     string(job.StatusScheduled),
			"claimed_by": nil,
			"updated_at": time.Now().UTC(),
		}).Error
}

// owned scopes a runner write to the row still claimed by owner.
func (r *JobGormRepository) owned(ctx context.Context, id, owner string) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&scheduledMessageModel{}).Where("id = ?", id)
	if owner != "" {
		q = q.Where("claimed_by = ?", owner)
	}
	return q
}

// leaseResult maps an owned write that matched no row to the reason.
func (r *JobGormRepository) leaseResult(ctx context.Context, res *gorm.DB, id string) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return job.ErrLeaseLost
	}
	return nil
}

func (r *JobGormRepository) ResetRun(ctx context.Context, id, owner string, p job.Progress) error {
	res := r.owned(ctx, id, owner).Updates(map[string]any{
		"progress":          mustJSON(p, "{}"),
		"failed_recipients": "[]",
		"updated_at":        time.Now().UTC(),
	})
	return r.leaseResult(ctx, res, id)
}

func (r *JobGormRepository) SaveProgress(ctx context.Context, id string, u job.ProgressUpdate) error {
	res := r.owned(ctx, id, u.Owner).Updates(map[string]any{
		"progress":          mustJSON(u.Progress, "{}"),
		"failed_recipients": mustJSON(u.FailedRecipients, "[]"),
		"heartbeat_at":      u.HeartbeatAt.UTC(),
		"updated_at":        u.HeartbeatAt.UTC(),
	})
	return r.leaseResult(ctx, res, id)
}

func (r *JobGormRepository) Touch(ctx context.Context, id, owner string, at time.Time) error {
	res := r.owned(ctx, id, owner).Update("heartbeat_at", at.UTC())
	return r.leaseResult(ctx, res, id)
}

// Finish reads the stored status to settle the final one, then writes only if
// neither the status nor the claim moved in between. A concurrent operator
// change is retried; a lost claim is not.
func (r *JobGormRepository) Finish(ctx context.Context, id string, c job.Completion) error {
	for attempt := 0; attempt < 3; attempt++ {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var current scheduledMessageModel
			if err := tx.Select("id", "status", "claimed_by").First(&current, "id = ?", id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return job.ErrJobNotFound
				}
				return err
			}
			if c.Owner != "" && nullStringValue(current.ClaimedBy) != c.Owner {
				return job.ErrLeaseLost
			}

			status := finalStatus(job.Status(current.Status), c.Status)
			now := time.Now().UTC()

			updates := map[string]any{
				"status":            string(status),
				"progress":          mustJSON(c.Progress, "{}"),
				"failed_recipients": mustJSON(c.FailedRecipients, "[]"),
				"error_message":     nullString(c.LastError),
				"last_executed_at":  c.LastExecutedAt.UTC(),
				"next_execution_at": utcPtr(c.NextExecutionAt),
				"completed_at":      utcPtr(c.CompletedAt),
				"claimed_by":        nil,
				"execution_count":   gorm.Expr("execution_count + ?", 1),
				"updated_at":        now,
			}
			if c.NextExecutionAt != nil && status != job.StatusCancelled {
				updates["scheduled_for"] = c.NextExecutionAt.UTC()
			}
			q := tx.Model(&scheduledMessageModel{}).Where("id = ? AND status = ?", id, current.Status)
			if c.Owner != "" {
				q = q.Where("claimed_by = ?", c.Owner)
			}
			res := q.Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return job.ErrStatusConflict
			}

			rec := c.Record
			rec.JobID = id
			model := toExecutionModel(rec)
			return tx.Create(&model).Error
		})
		if !errors.Is(err, job.ErrStatusConflict) {
			return err
		}
	}
	return job.ErrStatusConflict
}

func (r *JobGormRepository) ListExecutions(ctx context.Context, jobID string, limit int) ([]job.ExecutionRecord, error) {
	q := r.db.WithContext(ctx).Where("scheduled_message_id = ?", jobID).Order("executed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []executionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]job.ExecutionRecord, len(models))
	for i, m := range models {
		res[i] = fromExecutionModel(m)
	}
	return res, nil
}

// --- Mappers ---

func toScheduledMessageModel(j *job.ScheduledJob) scheduledMessageModel {
	m := scheduledMessageModel{
		ID:                 j.ID,
		UserID:             j.UserID,
		Name:               j.Name,
		MessageType:        string(j.Channel),
		MessageContent:     j.Template,
		Recipients:         mustJSON(j.Recipients, "[]"),
		TotalRecipients:    j.TotalRecipients,
		ScheduleType:       string(j.Recurrence.Type),
		RecurrenceInterval: nullString(j.Recurrence.Interval),
		RecurrenceEndDate:  utcPtr(j.Recurrence.EndDate),
		ScheduledFor:       j.ScheduledFor.UTC(),
		Timezone:           j.Timezone,
		ExecutionMode:      string(j.ExecutionMode),
		AutoExecute:        j.AutoExecute,
		Settings:           mustJSON(j.Settings, "{}"),
		Status:             string(j.Status),
		ExecutionCount:     j.ExecutionCount,
		Progress:           mustJSON(j.Progress, "{}"),
		FailedRecipients:   mustJSON(j.FailedRecipients, "[]"),
		ErrorMessage:       nullString(j.LastError),
		ClaimedBy:          nullString(j.ClaimedBy),
		LastExecutedAt:     utcPtr(j.LastExecutedAt),
		NextExecutionAt:    utcPtr(j.NextExecutionAt),
		StartedAt:          utcPtr(j.StartedAt),
		CompletedAt:        utcPtr(j.CompletedAt),
		HeartbeatAt:        utcPtr(j.HeartbeatAt),
		CreatedAt:          j.CreatedAt,
		UpdatedAt:          j.UpdatedAt,
	}
	if j.Media != nil {
		m.MediaURL = nullString(j.Media.URL)
		m.MediaType = nullString(string(j.Media.Type))
		m.ViewOnce = j.Media.ViewOnce
	}
	return m
}

func fromScheduledMessageModel(m scheduledMessageModel) *job.ScheduledJob {
	j := &job.ScheduledJob{
		ID:              m.ID,
		UserID:          m.UserID,
		Name:            m.Name,
		Channel:         job.Channel(m.MessageType),
		Template:        m.MessageContent,
		TotalRecipients: m.TotalRecipients,
		Recurrence: job.Recurrence{
			Type:     job.ScheduleType(m.ScheduleType),
			Interval: nullStringValue(m.RecurrenceInterval),
			EndDate:  m.RecurrenceEndDate,
		},
		ScheduledFor:     m.ScheduledFor,
		Timezone:         m.Timezone,
		ExecutionMode:    job.ExecutionMode(m.ExecutionMode),
		AutoExecute:      m.AutoExecute,
		Status:           job.Status(m.Status),
		ExecutionCount:   m.ExecutionCount,
		LastError:        nullStringValue(m.ErrorMessage),
		ClaimedBy:        nullStringValue(m.ClaimedBy),
		LastExecutedAt:   m.LastExecutedAt,
		NextExecutionAt:  m.NextExecutionAt,
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
		HeartbeatAt:      m.HeartbeatAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		Recipients:       []job.Recipient{},
		FailedRecipients: []job.FailedRecipient{},
	}
	if url := nullStringValue(m.MediaURL); url != "" {
		j.Media = &job.Media{URL: url, Type: job.MediaType(nullStringValue(m.MediaType)), ViewOnce: m.ViewOnce}
	}

	decodeJSON(m.ID, "recipients", m.Recipients, &j.Recipients)
	decodeJSON(m.ID, "settings", m.Settings, &j.Settings)
	decodeJSON(m.ID, "progress", m.Progress, &j.Progress)
	decodeJSON(m.ID, "failed_recipients", m.FailedRecipients, &j.FailedRecipients)
	return j
}

func fromScheduledMessageModels(models []scheduledMessageModel) []job.ScheduledJob {
	res := make([]job.ScheduledJob, len(models))
	for i, m := range models {
		res[i] = *fromScheduledMessageModel(m)
	}
	return res
}

func toExecutionModel(rec job.ExecutionRecord) executionModel {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	return executionModel{
		ID:                 id,
		ScheduledMessageID: rec.JobID,
		ExecutedAt:         rec.ExecutedAt.UTC(),
		ExecutionDuration:  rec.Duration.Milliseconds(),
		TotalSent:          rec.TotalSent,
		SuccessCount:       rec.SuccessCount,
		FailedCount:        rec.FailedCount,
		Status:             string(rec.Outcome),
		FailedRecipients:   mustJSON(rec.FailedRecipients, "[]"),
		ExecutedBy:         rec.ExecutedBy,
	}
}

func fromExecutionModel(m executionModel) job.ExecutionRecord {
	rec := job.ExecutionRecord{
		ID:               m.ID,
		JobID:            m.ScheduledMessageID,
		ExecutedAt:       m.ExecutedAt,
		Duration:         time.Duration(m.ExecutionDuration) * time.Millisecond,
		TotalSent:        m.TotalSent,
		SuccessCount:     m.SuccessCount,
		FailedCount:      m.FailedCount,
		Outcome:          job.ExecutionOutcome(m.Status),
		ExecutedBy:       m.ExecutedBy,
		FailedRecipients: []job.FailedRecipient{},
	}
	decodeJSON(m.ID, "execution.failed_recipients", m.FailedRecipients, &rec.FailedRecipients)
	return rec
}

func mustJSON(v any, fallback string) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return fallback
	}
	return string(b)
}

func decodeJSON(id, field, raw string, dst any) {
	if raw == "" {
		return
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		logrus.WithError(err).Warnf("[REPOSITORY] Corrupt %s JSON on scheduled message %s", field, id)
	}
}

// utcPtr keeps stored instants in one zone so SQLite text comparisons order correctly.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
