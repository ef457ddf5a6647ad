package validations

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/application"
	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	domainScheduled "github.com/AzielCF/az-bulk/domains/scheduledmessage"
	pkgError "github.com/AzielCF/az-bulk/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{5,19}$`)

const maxRecipients = 10000

func ValidateCreateScheduledMessage(ctx context.Context, request domainScheduled.CreateRequest) error {
	scheduleType := job.NormalizeScheduleType(request.ScheduleType)

	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.UserID, validation.Required),
		validation.Field(&request.Name, validation.Length(0, 255)),
		validation.Field(&request.MessageType, validation.Required, validation.In(string(job.ChannelSMS), string(job.ChannelWhatsApp))),
		validation.Field(&request.MessageContent, validation.Required),
		validation.Field(&request.Media, validation.When(request.MessageType != string(job.ChannelWhatsApp),
			validation.Nil.Error("media is only supported for whatsapp messages")), validation.By(mediaRule)),
		validation.Field(&request.Recipients, validation.Required, validation.Length(1, maxRecipients), validation.By(recipientsRule)),
		validation.Field(&request.ScheduleType, validation.By(scheduleTypeRule)),
		validation.Field(&request.ScheduledFor, validation.Required),
		validation.Field(&request.RecurrenceInterval, validation.When(scheduleType == job.ScheduleCustom,
			validation.Required, validation.By(intervalRule))),
		validation.Field(&request.RecurrenceEndDate, validation.By(endDateRule(request.ScheduledFor))),
		validation.Field(&request.Timezone, validation.By(timezoneRule)),
		validation.Field(&request.ExecutionMode, validation.In(string(job.ModeServer), string(job.ModeBrowser))),
		validation.Field(&request.Settings, validation.By(settingsRule)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

// ValidateUpdateScheduledMessage checks the patch alone; the merged job is
// checked again by ValidateScheduledJob.
func ValidateUpdateScheduledMessage(ctx context.Context, request domainScheduled.UpdateRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Name, validation.NilOrNotEmpty, validation.Length(0, 255)),
		validation.Field(&request.MessageContent, validation.NilOrNotEmpty),
		validation.Field(&request.Recipients, validation.Length(0, maxRecipients), validation.By(recipientsRule)),
		validation.Field(&request.ScheduleType, validation.By(scheduleTypeRule)),
		validation.Field(&request.RecurrenceInterval, validation.By(optionalIntervalRule)),
		validation.Field(&request.Timezone, validation.By(timezoneRule)),
		validation.Field(&request.ExecutionMode, validation.In(string(job.ModeServer), string(job.ModeBrowser))),
		validation.Field(&request.Settings, validation.By(settingsRule)),
		validation.Field(&request.Media, validation.By(mediaRule)),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

// ValidateScheduledJob checks cross-field rules on a job after an update was applied.
func ValidateScheduledJob(ctx context.Context, j job.ScheduledJob) error {
	err := validation.ValidateStructWithContext(ctx, &j,
		validation.Field(&j.Media, validation.When(j.Channel != job.ChannelWhatsApp,
			validation.Nil.Error("media is only supported for whatsapp messages"))),
		validation.Field(&j.Recipients, validation.Required),
		validation.Field(&j.Recurrence, validation.By(func(value interface{}) error {
			rule, _ := value.(job.Recurrence)
			if !rule.Type.Valid() {
				return errors.New("schedule type must be one of once, daily, weekly, monthly, custom")
			}
			if rule.Type != job.ScheduleCustom {
				return nil
			}
			if rule.Interval == "" {
				return errors.New("interval is required for custom schedules")
			}
			return intervalRule(rule.Interval)
		})),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

func ValidateSchedulerInterval(ctx context.Context, request domainScheduled.IntervalRequest) (time.Duration, error) {
	var interval time.Duration
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Interval, validation.Required, validation.By(func(value interface{}) error {
			s, _ := value.(string)
			d, err := time.ParseDuration(s)
			if err != nil {
				return errors.New("must be a duration such as 30s or 5m")
			}
			if d < time.Second {
				return errors.New("must be at least 1s")
			}
			interval = d
			return nil
		})),
	)

	if err != nil {
		return 0, pkgError.ValidationError(err.Error())
	}

	return interval, nil
}

func scheduleTypeRule(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case *string:
		if v == nil {
			return nil
		}
		raw = *v
	}
	if !job.NormalizeScheduleType(raw).Valid() {
		return errors.New("must be one of once, daily, weekly, monthly, custom")
	}
	return nil
}

func intervalRule(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := application.ParseInterval(s); err != nil {
		return errors.New("must look like \"2 hours\", \"30 minutes\" or \"1 day\"")
	}
	return nil
}

func optionalIntervalRule(value interface{}) error {
	if s, ok := value.(*string); ok {
		if s == nil || *s == "" {
			return nil
		}
		return intervalRule(*s)
	}
	return intervalRule(value)
}

func endDateRule(start time.Time) validation.RuleFunc {
	return func(value interface{}) error {
		end, _ := value.(*time.Time)
		if end == nil || start.IsZero() {
			return nil
		}
		if !end.After(start) {
			return errors.New("must be after scheduled_for")
		}
		return nil
	}
}

func timezoneRule(value interface{}) error {
	var tz string
	switch v := value.(type) {
	case string:
		tz = v
	case *string:
		if v == nil {
			return nil
		}
		tz = *v
	}
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return errors.New("must be a valid IANA timezone")
	}
	return nil
}

func recipientsRule(value interface{}) error {
	recipients, _ := value.([]domainScheduled.RecipientRequest)
	errs := validation.Errors{}
	for i, r := range recipients {
		err := validation.ValidateStruct(&r,
			validation.Field(&r.Phone, validation.Required, validation.Match(phonePattern)),
			validation.Field(&r.Name, validation.Length(0, 255)),
		)
		if err != nil {
			errs[strconv.Itoa(i)] = err
		}
	}
	return errs.Filter()
}

func mediaRule(value interface{}) error {
	m, _ := value.(*domainScheduled.MediaRequest)
	if m == nil {
		return nil
	}
	return validation.ValidateStruct(m,
		validation.Field(&m.URL, validation.Required, is.URL),
		validation.Field(&m.Type, validation.Required, validation.In(
			string(job.MediaImage), string(job.MediaVideo), string(job.MediaDocument), string(job.MediaAudio))),
	)
}

func settingsRule(value interface{}) error {
	s, _ := value.(*domainScheduled.SettingsRequest)
	if s == nil {
		return nil
	}
	return validation.ValidateStruct(s,
		validation.Field(&s.MinDelay, validation.Min(0)),
		validation.Field(&s.MaxDelay, validation.Min(0), validation.By(func(value interface{}) error {
			maxDelay, _ := value.(*int)
			if maxDelay == nil || s.MinDelay == nil {
				return nil
			}
			if *maxDelay < *s.MinDelay {
				return errors.New("must not be lower than min_delay")
			}
			return nil
		})),
	)
}
