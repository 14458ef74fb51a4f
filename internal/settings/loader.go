package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timecard-works/timecard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Refresh reloads every setting from the database into the in-memory snapshot.
func (s *Store) Refresh(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("settings: nil db")
	}

	var rows []models.Setting
	if errFind := db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return errFind
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = row.Value
		if row.UpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = row.UpdatedAt
		}
	}

	s.replace(maxUpdatedAt, values)
	return nil
}

// Put upserts a single setting and refreshes the snapshot.
func (s *Store) Put(ctx context.Context, db *gorm.DB, key string, value any) error {
	raw, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("settings: encode %s: %w", key, errMarshal)
	}
	row := models.Setting{Key: key, Value: raw, UpdatedAt: time.Now().UTC()}
	if errUpsert := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("settings: save %s: %w", key, errUpsert)
	}
	return s.Refresh(ctx, db)
}
