package instance

import (
	"context"
	"fmt"

	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Delete removes a PENDING instance. Any other status is a conflict:
// instances that were ever active keep their history.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return errInstanceNotFound()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, errLoad := s.load(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
		if errLoad != nil {
			return errLoad
		}
		if inst.Status != models.InstanceStatusPending {
			return apierr.Conflict("instance_not_pending", "only PENDING instances can be deleted")
		}
		if errDeps := deleteDependents(tx, tx.Model(&models.Instance{}).Select("id").Where("id = ?", id)); errDeps != nil {
			return errDeps
		}
		return tx.Where("id = ?", id).Delete(&models.Instance{}).Error
	})
}

// DeletePending removes every PENDING instance and returns how many were deleted.
func (s *Service) DeletePending(ctx context.Context) (int64, error) {
	var deleted int64
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending := tx.Model(&models.Instance{}).Select("id").Where("status = ?", models.InstanceStatusPending)
		if errDeps := deleteDependents(tx, pending); errDeps != nil {
			return errDeps
		}
		res := tx.Where("status = ?", models.InstanceStatusPending).Delete(&models.Instance{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if errTx != nil {
		return 0, fmt.Errorf("instance: delete pending: %w", errTx)
	}
	return deleted, nil
}

// deleteDependents clears rows owned by the instances selected by ids.
func deleteDependents(tx *gorm.DB, ids *gorm.DB) error {
	for _, model := range []any{&models.Attendance{}, &models.AttendanceLock{}, &models.ShiftPlan{}} {
		if errDelete := tx.Where("instance_id IN (?)", ids).Delete(model).Error; errDelete != nil {
			return errDelete
		}
	}
	return tx.Model(&models.PortalUser{}).Where("instance_id IN (?)", ids).Update("instance_id", nil).Error
}
