package services

import (
	"context"
	"time"

	"github.com/rdychk/rdychk/pkg/logger"
	"github.com/robfig/cron/v3"
)

// PreviewCleanup periodically purges link previews older than the retention
// window.
type PreviewCleanup struct {
	previews      *LinkPreviewService
	retention     time.Duration
	spec          string
	cronScheduler *cron.Cron
}

func NewPreviewCleanup(previews *LinkPreviewService, spec string, retention time.Duration) *PreviewCleanup {
	if spec == "" {
		spec = "@daily"
	}
	return &PreviewCleanup{previews: previews, retention: retention, spec: spec}
}

func (p *PreviewCleanup) StartScheduler() error {
	p.cronScheduler = cron.New()
	if _, err := p.cronScheduler.AddFunc(p.spec, func() { p.RunOnce(context.Background()) }); err != nil {
		return err
	}
	p.cronScheduler.Start()
	logger.Info().Str("schedule", p.spec).Dur("retention", p.retention).Msg("[PreviewCleanup] Scheduler started")
	return nil
}

func (p *PreviewCleanup) StopScheduler() {
	if p.cronScheduler != nil {
		<-p.cronScheduler.Stop().Done()
	}
}

// RunOnce purges expired entries and returns how many were removed.
func (p *PreviewCleanup) RunOnce(ctx context.Context) int64 {
	if p.retention <= 0 {
		return 0
	}
	deleted, err := p.previews.Purge(ctx, p.retention)
	if err != nil {
		logger.Errorf("[PreviewCleanup] Failed to purge previews: %v", err)
		return 0
	}
	if deleted > 0 {
		logger.Infof("[PreviewCleanup] Purged %d previews older than %s", deleted, p.retention)
	}
	return deleted
}
