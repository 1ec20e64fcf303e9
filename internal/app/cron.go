package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shiv669/echo-core-go/internal/modules/stats/analyze"
	"github.com/shiv669/echo-core-go/internal/modules/storage/archive"
	appconfigs "github.com/shiv669/echo-core-go/internal/modules/system/core/configs"
	pkgcron "github.com/shiv669/echo-core-go/internal/pkg/cron"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultAnalyticsRetentionDays = 90

// registerCronJobs wires the periodic maintenance jobs into the scheduler.
func registerCronJobs(jobs *pkgcron.Scheduler, db *gorm.DB, configs *appconfigs.Service, logger *zap.Logger) {
	log := logger.Named("CronService")

	analyzeSvc := analyze.NewService(db)

	jobs.Register(pkgcron.Job{
		Name:        "cleanup_analytics",
		Description: "delete request analytics past the retention window",
		Every:       24 * time.Hour,
		Do: func(ctx context.Context) error {
			days := defaultAnalyticsRetentionDays
			if cfg, err := configs.Get(); err == nil && cfg.AnalyzeOptions.CleanDays > 0 {
				days = cfg.AnalyzeOptions.CleanDays
			}
			removed, err := analyzeSvc.CleanOlderThan(days)
			if err != nil {
				log.Warn("analytics cleanup failed", zap.Error(err))
				return err
			}
			log.Info(fmt.Sprintf("analytics cleanup done, %d rows removed", removed))
			return nil
		},
	})

	jobs.Register(pkgcron.Job{
		Name:        "auto_archive",
		Description: "archive graph tables locally and mirror to S3 when enabled",
		Every:       24 * time.Hour,
		Do: func(ctx context.Context) error {
			cfg, err := configs.Get()
			if err != nil {
				return err
			}
			if !cfg.ArchiveOptions.Enable {
				return nil
			}
			log.Info("archiving graph tables...")
			filename, err := archive.RunAutoArchive(ctx, db, cfg.S3Options, cfg.ArchiveOptions.Path)
			if err != nil {
				log.Warn("auto archive failed", zap.Error(err))
				return err
			}
			log.Info("auto archive done", zap.String("filename", filename))
			return nil
		},
	})

	jobs.Register(pkgcron.Job{
		Name:        "prune_archives",
		Description: "remove local archives beyond the configured keep count",
		Every:       24 * time.Hour,
		Do: func(ctx context.Context) error {
			cfg, err := configs.Get()
			if err != nil {
				return err
			}
			keep := cfg.ArchiveOptions.KeepCount
			if keep <= 0 {
				return nil
			}
			removed, err := archive.PruneLocalArchives(keep)
			if err != nil {
				log.Warn("archive pruning failed", zap.Error(err))
				return err
			}
			if removed > 0 {
				log.Info(fmt.Sprintf("archive pruning done, %d files removed", removed))
			}
			return nil
		},
	})
}
