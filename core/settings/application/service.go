package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-bulk/core/settings/domain"
	"github.com/AzielCF/az-bulk/core/settings/infrastructure"
	"gorm.io/gorm"
)

type SettingsService struct {
	repo domain.ISettingsRepository
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{
		repo: infrastructure.NewRuntimeSettingsGormRepository(db),
	}
}

func (s *SettingsService) Init(ctx context.Context) error {
	return s.repo.InitSchema(ctx)
}

// SchedulerOverrides are the values an operator set at runtime. Nil means the
// process configuration applies.
type SchedulerOverrides struct {
	Interval *time.Duration
	Enabled  *bool
}

func modeKey(key, mode string) string {
	return key + ":" + mode
}

func (s *SettingsService) SchedulerOverrides(ctx context.Context, mode string) (SchedulerOverrides, error) {
	var o SchedulerOverrides

	val, err := s.repo.Get(ctx, modeKey(domain.KeySchedulerInterval, mode))
	if err != nil {
		return o, err
	}
	if val != "" {
		if d, err := time.ParseDuration(val); err == nil && d >= time.Second {
			o.Interval = &d
		}
	}

	val, err = s.repo.Get(ctx, modeKey(domain.KeySchedulerEnabled, mode))
	if err != nil {
		return o, err
	}
	if val != "" {
		vLower := strings.ToLower(val)
		isOn := vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
		o.Enabled = &isOn
	}
	return o, nil
}

func (s *SettingsService) SetSchedulerInterval(ctx context.Context, mode string, d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("scheduler interval %s is below 1s", d)
	}
	return s.repo.Set(ctx, modeKey(domain.KeySchedulerInterval, mode), d.String())
}

func (s *SettingsService) SetSchedulerEnabled(ctx context.Context, mode string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return s.repo.Set(ctx, modeKey(domain.KeySchedulerEnabled, mode), val)
}

func (s *SettingsService) ClearSchedulerOverrides(ctx context.Context, mode string) error {
	if err := s.repo.Delete(ctx, modeKey(domain.KeySchedulerInterval, mode)); err != nil {
		return err
	}
	return s.repo.Delete(ctx, modeKey(domain.KeySchedulerEnabled, mode))
}
