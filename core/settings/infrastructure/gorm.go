package infrastructure

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RuntimeSettingModel struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

func (RuntimeSettingModel) TableName() string {
	return "runtime_settings"
}

type RuntimeSettingsGormRepository struct {
	db *gorm.DB
}

func NewRuntimeSettingsGormRepository(db *gorm.DB) *RuntimeSettingsGormRepository {
	return &RuntimeSettingsGormRepository{db: db}
}

func (r *RuntimeSettingsGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&RuntimeSettingModel{})
}

// Get returns "" for a key that was never set.
func (r *RuntimeSettingsGormRepository) Get(ctx context.Context, key string) (string, error) {
	var m RuntimeSettingModel
	if err := r.db.WithContext(ctx).First(&m, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(m.Value), nil
}

func (r *RuntimeSettingsGormRepository) Set(ctx context.Context, key string, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"value": value}),
	}).Create(&RuntimeSettingModel{
		Key:   key,
		Value: value,
	}).Error
}

func (r *RuntimeSettingsGormRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&RuntimeSettingModel{}, "key = ?", key).Error
}
