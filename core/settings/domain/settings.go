package domain

import "context"

// Setting is a runtime value operators change through the API and that must
// survive a restart.
type Setting struct {
	Key   string
	Value string
}

type ISettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error

	InitSchema(ctx context.Context) error
}

// Keys are suffixed with the execution mode, e.g. "scheduler_interval:server".
const (
	KeySchedulerInterval = "scheduler_interval"
	KeySchedulerEnabled  = "scheduler_enabled"
)
