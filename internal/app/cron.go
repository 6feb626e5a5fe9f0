package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hanziloop/core/internal/modules/phrase"
	pkgcron "github.com/hanziloop/core/internal/pkg/cron"
	"go.uber.org/zap"
)

// registerCronJobs registers the three reconciliation jobs. All are
// idempotent and run out-of-band from caller-facing orchestration.
func registerCronJobs(sched *pkgcron.Scheduler, phraseSvc *phrase.Service, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        "backfill_phrase_chars",
		Description: "create missing character links in bounded batches",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			linked, failed, err := phraseSvc.BackfillCharLinks(ctx)
			if err != nil {
				cronLogger.Warn("char-link backfill failed", zap.Error(err))
				return err
			}
			cronLogger.Info(fmt.Sprintf("char-link backfill done: %d linked, %d failed", linked, failed))
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "sweep_phrase_quality",
		Description: "re-validate quality flags on aging phrases",
		Interval:    24 * time.Hour,
		Fn: func(ctx context.Context) error {
			checked, updated, err := phraseSvc.SweepQuality(ctx)
			if err != nil {
				cronLogger.Warn("quality sweep failed", zap.Error(err))
				return err
			}
			cronLogger.Info(fmt.Sprintf("quality sweep done: %d checked, %d updated", checked, updated))
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "prune_generation_logs",
		Description: "delete generation logs past the retention window",
		Interval:    7 * 24 * time.Hour,
		Fn: func(ctx context.Context) error {
			removed, err := phraseSvc.PruneLogs(ctx)
			if err != nil {
				cronLogger.Warn("log pruning failed", zap.Error(err))
				return err
			}
			cronLogger.Info(fmt.Sprintf("log pruning done: %d rows removed", removed))
			return nil
		},
	})
}
