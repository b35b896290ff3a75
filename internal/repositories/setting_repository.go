package repositories

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"memit/internal/models"
)

type SettingRepository interface {
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	Upsert(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

type settingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

// Get returns the stored values for keys; missing keys are absent from the map.
// With no keys, every stored setting is returned.
func (r *settingRepository) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	var rows []models.Setting
	q := r.db.WithContext(ctx)
	if len(keys) > 0 {
		q = q.Where(map[string]interface{}{"key": keys})
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

func (r *settingRepository) Upsert(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	rows := make([]models.Setting, 0, len(values))
	for key, value := range values {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("setting key is required")
		}
		rows = append(rows, models.Setting{Key: key, Value: value})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
}

func (r *settingRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where(map[string]interface{}{"key": keys}).Delete(&models.Setting{}).Error
}
