package logging

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slowQueryThreshold marks statements worth a warning.
const slowQueryThreshold = 500 * time.Millisecond

// GormLogger routes gorm diagnostics into logrus.
type GormLogger struct {
	level logger.LogLevel
}

// NewGormLogger constructs a GormLogger at warn level.
func NewGormLogger() *GormLogger {
	return &GormLogger{level: logger.Warn}
}

// LogMode returns a copy with the given level.
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		log.WithContext(ctx).Infof(msg, args...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		log.WithContext(ctx).Warnf(msg, args...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		log.WithContext(ctx).Errorf(msg, args...)
	}
}

// Trace logs failed and slow statements. Record-not-found is expected and skipped.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		log.WithContext(ctx).WithError(err).WithFields(log.Fields{
			"elapsed": elapsed.String(),
			"rows":    rows,
			"sql":     sql,
		}).Error("gorm: query failed")
	case elapsed > slowQueryThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		log.WithContext(ctx).WithFields(log.Fields{
			"elapsed": elapsed.String(),
			"rows":    rows,
			"sql":     sql,
		}).Warn("gorm: slow query")
	case l.level >= logger.Info:
		sql, rows := fc()
		log.WithContext(ctx).WithFields(log.Fields{
			"elapsed": elapsed.String(),
			"rows":    rows,
		}).Debug(sql)
	}
}
