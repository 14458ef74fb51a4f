// Package attendance stores per-day arrival and departure times and enforces
// month locks. Every write checks the lock inside the transaction that
// performs it, with the owning instance row locked, so a lock that commits
// first is always seen by a concurrent write. An instance merged into another
// reads and writes the records and locks of its merge target.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/metrics"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/timeparse"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Write sources reported to metrics.
const (
	SourceDevice = "device"
	SourceAdmin  = "admin"
)

// Ledger reads and writes attendance.
type Ledger struct {
	db      *gorm.DB
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewLedger constructs a Ledger. metrics may be nil.
func NewLedger(db *gorm.DB, m *metrics.Metrics) *Ledger {
	return &Ledger{
		db:      db,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Day is one calendar day of a month view. Planned times come from the shift plan.
type Day struct {
	Date             string
	Arrival          *string
	Departure        *string
	PlannedArrival   *string
	PlannedDeparture *string
}

// Month is a complete calendar month for one instance.
type Month struct {
	Year        int
	Month       int
	DisplayName string
	Locked      bool
	Days        []Day
}

// UpsertInput is a single-day write.
type UpsertInput struct {
	InstanceID string
	Date       string
	Arrival    *string
	Departure  *string
	// RequireActive rejects writes for instances that are no longer ACTIVE.
	// Device writes set it; admin corrections do not.
	RequireActive bool
	Source        string
}

// GetMonth returns every day of the month, filled from stored and planned rows.
func (l *Ledger) GetMonth(ctx context.Context, instanceID string, year, month int) (Month, error) {
	if errCheck := timeparse.CheckYearMonth(year, month); errCheck != nil {
		return Month{}, apierr.Validation("invalid_month", "year must be 2000-2100 and month 1-12")
	}
	conn := l.db.WithContext(ctx)
	inst, errLoad := loadProfile(conn, instanceID, false)
	if errLoad != nil {
		return Month{}, errLoad
	}

	start, next := timeparse.MonthBounds(year, month)
	from, to := start.Format(timeparse.DateLayout), next.Format(timeparse.DateLayout)

	var rows []models.Attendance
	if errFind := conn.
		Where("instance_id = ? AND work_date >= ? AND work_date < ?", inst.ID, from, to).
		Order("work_date ASC").
		Find(&rows).Error; errFind != nil {
		return Month{}, fmt.Errorf("attendance: load month: %w", errFind)
	}
	var plans []models.ShiftPlan
	if errFind := conn.
		Where("instance_id = ? AND work_date >= ? AND work_date < ?", inst.ID, from, to).
		Find(&plans).Error; errFind != nil {
		return Month{}, fmt.Errorf("attendance: load shift plan: %w", errFind)
	}
	locked, errLocked := isLocked(conn, inst.ID, year, month)
	if errLocked != nil {
		return Month{}, errLocked
	}

	byDate := make(map[string]models.Attendance, len(rows))
	for _, row := range rows {
		byDate[row.WorkDate] = row
	}
	planByDate := make(map[string]models.ShiftPlan, len(plans))
	for _, plan := range plans {
		planByDate[plan.WorkDate] = plan
	}

	out := Month{Year: year, Month: month, DisplayName: inst.Label(), Locked: locked}
	for day := start; day.Before(next); day = day.AddDate(0, 0, 1) {
		key := day.Format(timeparse.DateLayout)
		entry := Day{Date: key}
		if row, ok := byDate[key]; ok {
			entry.Arrival, entry.Departure = row.ArrivalTime, row.DepartureTime
		}
		if plan, ok := planByDate[key]; ok {
			entry.PlannedArrival, entry.PlannedDeparture = plan.ArrivalTime, plan.DepartureTime
		}
		out.Days = append(out.Days, entry)
	}
	return out, nil
}

// Upsert writes one day. Validation happens before the transaction opens;
// the lock check and the insert-or-update share one transaction.
func (l *Ledger) Upsert(ctx context.Context, in UpsertInput) (Day, error) {
	source := in.Source
	if source == "" {
		source = SourceDevice
	}
	day, errDate := timeparse.Date(strings.TrimSpace(in.Date))
	if errDate != nil {
		l.metrics.AttendanceWrite(source, "invalid")
		return Day{}, apierr.Validation("invalid_date", errDate.Error())
	}
	arrival, errArrival := timeparse.TimeOfDay(in.Arrival)
	if errArrival != nil {
		l.metrics.AttendanceWrite(source, "invalid")
		return Day{}, apierr.Validation("invalid_time", "arrival_time: "+errArrival.Error())
	}
	departure, errDeparture := timeparse.TimeOfDay(in.Departure)
	if errDeparture != nil {
		l.metrics.AttendanceWrite(source, "invalid")
		return Day{}, apierr.Validation("invalid_time", "departure_time: "+errDeparture.Error())
	}

	row := models.Attendance{
		InstanceID:    in.InstanceID,
		WorkDate:      day.Format(timeparse.DateLayout),
		ArrivalTime:   arrival,
		DepartureTime: departure,
		CreatedAt:     l.now(),
		UpdatedAt:     l.now(),
	}
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, errLoad := loadProfile(tx, in.InstanceID, true)
		if errLoad != nil {
			return errLoad
		}
		row.InstanceID = inst.ID
		if in.RequireActive && inst.Status != models.InstanceStatusActive {
			return apierr.Conflict("instance_not_active", "instance is not active")
		}
		locked, errLocked := isLocked(tx, inst.ID, day.Year(), int(day.Month()))
		if errLocked != nil {
			return errLocked
		}
		if locked {
			return errMonthLocked()
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance_id"}, {Name: "work_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"arrival_time", "departure_time", "updated_at"}),
		}).Create(&row).Error
	})
	if errTx != nil {
		switch {
		case apierr.IsKind(errTx, apierr.KindForbidden):
			l.metrics.AttendanceWrite(source, "locked")
		case apierr.IsKind(errTx, apierr.KindNotFound), apierr.IsKind(errTx, apierr.KindConflict):
			l.metrics.AttendanceWrite(source, "rejected")
		default:
			l.metrics.AttendanceWrite(source, "error")
		}
		return Day{}, errTx
	}
	l.metrics.AttendanceWrite(source, "ok")
	return Day{Date: row.WorkDate, Arrival: arrival, Departure: departure}, nil
}

// Lock freezes a month. Locking an already locked month succeeds.
func (l *Ledger) Lock(ctx context.Context, instanceID string, year, month int, lockedBy string) error {
	if errCheck := timeparse.CheckYearMonth(year, month); errCheck != nil {
		return apierr.Validation("invalid_month", "year must be 2000-2100 and month 1-12")
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, errLoad := loadProfile(tx, instanceID, true)
		if errLoad != nil {
			return errLoad
		}
		lock := models.AttendanceLock{
			InstanceID: inst.ID,
			Year:       year,
			Month:      month,
			LockedAt:   l.now(),
		}
		if by := strings.TrimSpace(lockedBy); by != "" {
			lock.LockedBy = &by
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance_id"}, {Name: "year"}, {Name: "month"}},
			DoNothing: true,
		}).Create(&lock).Error
	})
}

// Unlock reopens a month. Unlocking an open month succeeds.
func (l *Ledger) Unlock(ctx context.Context, instanceID string, year, month int) error {
	if errCheck := timeparse.CheckYearMonth(year, month); errCheck != nil {
		return apierr.Validation("invalid_month", "year must be 2000-2100 and month 1-12")
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inst, errLoad := loadProfile(tx, instanceID, true)
		if errLoad != nil {
			return errLoad
		}
		return tx.Where("instance_id = ? AND year = ? AND month = ?", inst.ID, year, month).
			Delete(&models.AttendanceLock{}).Error
	})
}

// Records returns the stored rows of one month in date order.
func (l *Ledger) Records(ctx context.Context, instanceID string, year, month int) ([]models.Attendance, error) {
	start, next := timeparse.MonthBounds(year, month)
	var rows []models.Attendance
	if errFind := l.db.WithContext(ctx).
		Where("instance_id = ? AND work_date >= ? AND work_date < ?", instanceID,
			start.Format(timeparse.DateLayout), next.Format(timeparse.DateLayout)).
		Order("work_date ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("attendance: load records: %w", errFind)
	}
	return rows, nil
}

// loadProfile loads id and, when it has been merged, its merge target.
// forUpdate takes row locks on both.
func loadProfile(tx *gorm.DB, id string, forUpdate bool) (*models.Instance, error) {
	inst, errLoad := loadInstance(tx, id, forUpdate)
	if errLoad != nil {
		return nil, errLoad
	}
	if inst.ProfileInstanceID == nil || *inst.ProfileInstanceID == "" || *inst.ProfileInstanceID == inst.ID {
		return inst, nil
	}
	target, errTarget := loadInstance(tx, *inst.ProfileInstanceID, forUpdate)
	if errTarget != nil {
		if apierr.IsKind(errTarget, apierr.KindNotFound) {
			return inst, nil
		}
		return nil, errTarget
	}
	return target, nil
}

func loadInstance(tx *gorm.DB, id string, forUpdate bool) (*models.Instance, error) {
	q := tx
	if forUpdate {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var inst models.Instance
	if errFind := q.Where("id = ?", strings.TrimSpace(id)).First(&inst).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("instance_not_found", "instance not found")
		}
		return nil, fmt.Errorf("attendance: load instance: %w", errFind)
	}
	return &inst, nil
}

func isLocked(tx *gorm.DB, instanceID string, year, month int) (bool, error) {
	var count int64
	if errCount := tx.Model(&models.AttendanceLock{}).
		Where("instance_id = ? AND year = ? AND month = ?", instanceID, year, month).
		Count(&count).Error; errCount != nil {
		return false, fmt.Errorf("attendance: check lock: %w", errCount)
	}
	return count > 0, nil
}

func errMonthLocked() *apierr.Error {
	return apierr.Forbidden("month_locked", "attendance for this month is locked")
}
