// Package export renders monthly attendance as CSV files and ZIP bundles.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/timecard-works/timecard/internal/apierr"
	"github.com/timecard-works/timecard/internal/attendance"
	"github.com/timecard-works/timecard/internal/models"
	"github.com/timecard-works/timecard/internal/timeparse"
	"gorm.io/gorm"
)

// csvHeader is the first row of every export.
var csvHeader = []string{"date", "arrival", "departure"}

// File is a rendered download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Exporter builds attendance downloads.
type Exporter struct {
	db     *gorm.DB
	ledger *attendance.Ledger
	now    func() time.Time
}

// NewExporter constructs an Exporter.
func NewExporter(db *gorm.DB, ledger *attendance.Ledger) *Exporter {
	return &Exporter{db: db, ledger: ledger, now: time.Now}
}

// InstanceCSV renders one instance's month.
func (e *Exporter) InstanceCSV(ctx context.Context, instanceID string, year, month int) (File, error) {
	if errCheck := timeparse.CheckYearMonth(year, month); errCheck != nil {
		return File{}, apierr.Validation("invalid_month", "month must be YYYY-MM")
	}
	var inst models.Instance
	if errFind := e.db.WithContext(ctx).Where("id = ?", instanceID).First(&inst).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return File{}, apierr.NotFound("instance_not_found", "instance not found")
		}
		return File{}, fmt.Errorf("export: load instance: %w", errFind)
	}
	var buf bytes.Buffer
	if errWrite := e.writeInstance(ctx, &buf, inst.ID, year, month); errWrite != nil {
		return File{}, errWrite
	}
	return File{
		Name:        csvName(&inst, year, month),
		ContentType: "text/csv; charset=utf-8",
		Data:        buf.Bytes(),
	}, nil
}

// BulkZIP renders every instance's month into one archive, oldest instance first.
func (e *Exporter) BulkZIP(ctx context.Context, year, month int) (File, error) {
	if errCheck := timeparse.CheckYearMonth(year, month); errCheck != nil {
		return File{}, apierr.Validation("invalid_month", "month must be YYYY-MM")
	}
	var instances []models.Instance
	if errFind := e.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&instances).Error; errFind != nil {
		return File{}, fmt.Errorf("export: list instances: %w", errFind)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]int, len(instances))
	modified := e.now()
	for i := range instances {
		name := uniqueName(used, csvName(&instances[i], year, month))
		w, errCreate := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if errCreate != nil {
			return File{}, fmt.Errorf("export: zip entry %s: %w", name, errCreate)
		}
		if errWrite := e.writeInstance(ctx, w, instances[i].ID, year, month); errWrite != nil {
			return File{}, errWrite
		}
	}
	if errClose := zw.Close(); errClose != nil {
		return File{}, fmt.Errorf("export: close zip: %w", errClose)
	}
	return File{
		Name:        fmt.Sprintf("export_%s.zip", timeparse.MonthKey(year, month)),
		ContentType: "application/zip",
		Data:        buf.Bytes(),
	}, nil
}

func (e *Exporter) writeInstance(ctx context.Context, w io.Writer, instanceID string, year, month int) error {
	rows, errRows := e.ledger.Records(ctx, instanceID, year, month)
	if errRows != nil {
		return errRows
	}
	return WriteCSV(w, rows)
}

// WriteCSV writes rows as date,arrival,departure with blank missing times.
func WriteCSV(w io.Writer, rows []models.Attendance) error {
	cw := csv.NewWriter(w)
	if errHeader := cw.Write(csvHeader); errHeader != nil {
		return errHeader
	}
	for _, row := range rows {
		if errRow := cw.Write([]string{row.WorkDate, valueOrEmpty(row.ArrivalTime), valueOrEmpty(row.DepartureTime)}); errRow != nil {
			return errRow
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvName(inst *models.Instance, year, month int) string {
	display := "instance_" + inst.ID
	if inst.DisplayName != nil && *inst.DisplayName != "" {
		display = *inst.DisplayName
	}
	return fmt.Sprintf("%s_%s.csv", FilenameSafe(display), timeparse.MonthKey(year, month))
}

func uniqueName(used map[string]int, name string) string {
	used[name]++
	if n := used[name]; n > 1 {
		return fmt.Sprintf("%s_%d.csv", name[:len(name)-len(".csv")], n)
	}
	return name
}

func valueOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
