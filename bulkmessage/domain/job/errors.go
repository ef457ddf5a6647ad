package job

import "errors"

var (
	ErrJobNotFound           = errors.New("scheduled message not found")
	ErrJobAlreadyClaimed     = errors.New("scheduled message is already claimed by another runner")
	ErrJobRunning            = errors.New("scheduled message is running")
	ErrJobNotPausable        = errors.New("only scheduled, pending or running messages can be paused")
	ErrJobNotResumable       = errors.New("only paused messages can be resumed")
	ErrJobFinished           = errors.New("scheduled message is already finished")
	ErrLeaseLost             = errors.New("scheduled message is no longer claimed by this runner")
	ErrStatusConflict        = errors.New("scheduled message status changed concurrently")
	ErrInvalidIntervalFormat = errors.New("invalid recurrence interval format, expected \"<N> minute(s)|hour(s)|day(s)\"")
	ErrInvalidScheduleType   = errors.New("invalid schedule type")
	ErrTransportUnavailable  = errors.New("message transport is not configured")
)
