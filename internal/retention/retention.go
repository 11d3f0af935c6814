package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

// Cleaner removes aged-out terminal job records. The job manager implements
// this on top of its store so cached copies are evicted in the same pass.
type Cleaner interface {
	Cleanup(maxAge time.Duration) (int, error)
}

// Start runs the cleanup scheduler until ctx is cancelled. The cron
// expression decides when terminal job records older than maxAge are
// removed; an empty expression defaults to hourly.
func Start(ctx context.Context, cleaner Cleaner, log *zap.Logger, cronExpr string, maxAge time.Duration) (context.CancelFunc, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cleaner, log, cronExpr, maxAge)

	log.Info("retention scheduler started",
		zap.String("cron", cronExpr),
		zap.Duration("max_age", maxAge))
	return cancel, nil
}

func runScheduler(ctx context.Context, cleaner Cleaner, log *zap.Logger, cronExpr string, maxAge time.Duration) {
	for {
		next, err := gronx.NextTickAfter(cronExpr, time.Now().UTC(), false)
		if err != nil {
			log.Error("retention next tick failed", zap.String("cron", cronExpr), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			return
		}

		RunOnce(cleaner, log, maxAge)
	}
}

// RunOnce performs a single cleanup pass.
func RunOnce(cleaner Cleaner, log *zap.Logger, maxAge time.Duration) {
	if log == nil {
		log = zap.NewNop()
	}
	deleted, err := cleaner.Cleanup(maxAge)
	if err != nil {
		log.Error("retention cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		log.Info("retention cleanup removed jobs", zap.Int("deleted", deleted))
	}
}
