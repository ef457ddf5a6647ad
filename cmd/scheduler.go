package cmd

import (
	"context"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/application"
	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	settingsApp "github.com/AzielCF/az-bulk/core/settings/application"
	"github.com/sirupsen/logrus"
)

// persistentScheduler records operator start/stop and interval changes so a
// restarted process comes back the way it was left.
type persistentScheduler struct {
	*application.Poller
	settings *settingsApp.SettingsService
	mode     job.ExecutionMode
}

func (s *persistentScheduler) Start(ctx context.Context) {
	s.Poller.Start(ctx)
	s.save(func(ctx context.Context) error {
		return s.settings.SetSchedulerEnabled(ctx, string(s.mode), true)
	})
}

func (s *persistentScheduler) Stop() {
	s.Poller.Stop()
	s.save(func(ctx context.Context) error {
		return s.settings.SetSchedulerEnabled(ctx, string(s.mode), false)
	})
}

func (s *persistentScheduler) SetInterval(d time.Duration) error {
	if err := s.Poller.SetInterval(d); err != nil {
		return err
	}
	s.save(func(ctx context.Context) error {
		return s.settings.SetSchedulerInterval(ctx, string(s.mode), d)
	})
	return nil
}

func (s *persistentScheduler) save(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logrus.WithError(err).Warnf("[SCHEDULER] Failed to persist %s scheduler setting", s.mode)
	}
}

// loadSchedulerOverrides returns the stored runtime overrides for mode. A read
// failure means the process configuration applies.
func loadSchedulerOverrides(ctx context.Context, settings *settingsApp.SettingsService, mode job.ExecutionMode) settingsApp.SchedulerOverrides {
	o, err := settings.SchedulerOverrides(ctx, string(mode))
	if err != nil {
		logrus.WithError(err).Warn("[SCHEDULER] Failed to read stored scheduler settings")
		return settingsApp.SchedulerOverrides{}
	}
	return o
}

// schedulerEnabled reports whether the poller should start at boot.
func schedulerEnabled(configured bool) bool {
	if schedulerOverrides.Enabled != nil {
		return *schedulerOverrides.Enabled
	}
	return configured
}
