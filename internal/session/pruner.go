package session

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timecard-works/timecard/internal/models"
	"gorm.io/gorm"
)

const defaultPruneInterval = 30 * time.Minute

// Pruner periodically deletes expired admin sessions and spent portal reset tokens.
type Pruner struct {
	db       *gorm.DB
	interval time.Duration
	now      func() time.Time
}

// NewPruner constructs a Pruner. A non-positive interval falls back to 30 minutes.
func NewPruner(db *gorm.DB, interval time.Duration) *Pruner {
	if db == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	return &Pruner{
		db:       db,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the prune loop in a background goroutine.
func (p *Pruner) Start(ctx context.Context) {
	if p == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go p.run(ctx)
	log.Infof("session pruner started (interval=%s)", p.interval)
}

func (p *Pruner) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.PruneOnce(ctx)
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// PruneOnce runs one cleanup pass and returns how many rows were removed.
func (p *Pruner) PruneOnce(ctx context.Context) int64 {
	if p == nil || p.db == nil {
		return 0
	}
	now := p.now()
	conn := p.db.WithContext(ctx)

	sessions := conn.Where("expires_at <= ?", now).Delete(&models.AdminSession{})
	if sessions.Error != nil {
		log.WithError(sessions.Error).Warn("session pruner: delete sessions failed")
	}
	tokens := conn.Where("expires_at <= ? OR used_at IS NOT NULL", now).Delete(&models.PortalResetToken{})
	if tokens.Error != nil {
		log.WithError(tokens.Error).Warn("session pruner: delete reset tokens failed")
	}

	total := sessions.RowsAffected + tokens.RowsAffected
	if total > 0 {
		log.Infof("session pruner: deleted %d sessions and %d reset tokens", sessions.RowsAffected, tokens.RowsAffected)
	}
	return total
}
