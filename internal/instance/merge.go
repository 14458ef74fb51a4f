package instance

import (
	"context"
	"strings"

	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MergeResult lists the instances folded into Target.
type MergeResult struct {
	TargetID string
	Merged   []string
}

// Merge folds duplicate instances into target in one transaction. Attendance,
// shift plans and month locks move to the target; source rows that collide
// with an existing target row are dropped in favor of the target's.
// Sources keep their identity but point at the target as their profile.
func (s *Service) Merge(ctx context.Context, targetID string, sourceIDs []string) (MergeResult, error) {
	targetID = strings.TrimSpace(targetID)
	sources := dedupeSources(targetID, sourceIDs)
	if !validID(targetID) || len(sources) == 0 {
		return MergeResult{}, apierr.Validation("invalid_merge", "provide target_id and at least one other source_id")
	}
	for _, id := range sources {
		if !validID(id) {
			return MergeResult{}, apierr.Validation("invalid_merge", "source_ids must be instance ids")
		}
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Session(&gorm.Session{})
		target, errTarget := s.load(locked, targetID)
		if errTarget != nil {
			return errTarget
		}
		if target.Status != models.InstanceStatusActive {
			return apierr.Conflict("merge_target_not_active", "target instance must be ACTIVE")
		}
		if target.ProfileInstanceID != nil {
			return apierr.Conflict("merge_target_merged", "target instance is already merged")
		}

		var rows []models.Instance
		if errFind := locked.Where("id IN ?", sources).Find(&rows).Error; errFind != nil {
			return errFind
		}
		if len(rows) != len(sources) {
			return apierr.NotFound("instance_not_found", "some source instances were not found")
		}
		for _, src := range rows {
			if src.Status != models.InstanceStatusActive {
				return apierr.Conflict("merge_source_not_active", "all source instances must be ACTIVE")
			}
			if src.ProfileInstanceID != nil && *src.ProfileInstanceID != targetID {
				return apierr.Conflict("merge_source_merged", "source instance is already merged elsewhere")
			}
		}

		for _, srcID := range sources {
			if errMove := moveOwnedRows(tx, srcID, targetID); errMove != nil {
				return errMove
			}
		}
		return tx.Model(&models.Instance{}).
			Where("id IN ?", sources).
			Update("profile_instance_id", targetID).Error
	})
	if errTx != nil {
		return MergeResult{}, errTx
	}
	return MergeResult{TargetID: targetID, Merged: sources}, nil
}

// moveOwnedRows reassigns one source's rows to the target. Sources are
// processed one at a time so rows from two sources for the same day collide
// with the first mover instead of with each other.
func moveOwnedRows(tx *gorm.DB, srcID, targetID string) error {
	if errDelete := tx.
		Where("instance_id = ? AND work_date IN (SELECT t.work_date FROM attendance t WHERE t.instance_id = ?)", srcID, targetID).
		Delete(&models.Attendance{}).Error; errDelete != nil {
		return errDelete
	}
	if errMove := tx.Model(&models.Attendance{}).Where("instance_id = ?", srcID).Update("instance_id", targetID).Error; errMove != nil {
		return errMove
	}

	if errDelete := tx.
		Where("instance_id = ? AND work_date IN (SELECT t.work_date FROM shift_plan t WHERE t.instance_id = ?)", srcID, targetID).
		Delete(&models.ShiftPlan{}).Error; errDelete != nil {
		return errDelete
	}
	if errMove := tx.Model(&models.ShiftPlan{}).Where("instance_id = ?", srcID).Update("instance_id", targetID).Error; errMove != nil {
		return errMove
	}

	if errDelete := tx.
		Where("instance_id = ? AND EXISTS (SELECT 1 FROM attendance_locks t WHERE t.instance_id = ? AND t.year = attendance_locks.year AND t.month = attendance_locks.month)", srcID, targetID).
		Delete(&models.AttendanceLock{}).Error; errDelete != nil {
		return errDelete
	}
	return tx.Model(&models.AttendanceLock{}).Where("instance_id = ?", srcID).Update("instance_id", targetID).Error
}

func dedupeSources(targetID string, sourceIDs []string) []string {
	seen := make(map[string]struct{}, len(sourceIDs))
	out := make([]string, 0, len(sourceIDs))
	for _, raw := range sourceIDs {
		id := strings.TrimSpace(raw)
		if id == "" || id == targetID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
