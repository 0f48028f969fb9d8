package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/config"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/repo"
)

type service interface {
	CaptureBaselines(ctx context.Context) (int, error)
	Digest(ctx context.Context) (string, error)
}

const (
	baselineLockKey int64 = 730001
	digestLockKey   int64 = 730002
)

type Cron struct {
	cfg  config.Config
	log  zerolog.Logger
	svc  service
	repo *repo.Repository
	c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, r *repo.Repository) *Cron {
	loc, _ := time.LoadLocation(cfg.TZ)
	c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
	cr := &Cron{cfg: cfg, log: log, svc: svc, repo: r, c: c}
	_, _ = c.AddFunc(cfg.BaselineCron, cr.captureBaselines)
	_, _ = c.AddFunc(cfg.DigestCron, cr.digest)
	return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

// captureBaselines snapshots new sprints early in the day so the first
// dashboard view is not the one paying the capture cost.
func (cr *Cron) captureBaselines() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ok, err := cr.repo.TryAdvisoryLock(ctx, baselineLockKey)
	if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
	if !ok { cr.log.Info().Msg("cron: baseline capture already running elsewhere"); return }
	defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), baselineLockKey) }()

	runID, _ := cr.repo.StartJobRun(ctx, "baseline")
	n, err := cr.svc.CaptureBaselines(ctx)
	if err != nil {
		cr.log.Error().Err(err).Msg("cron: baseline capture failed")
		_ = cr.repo.FinishJobRun(ctx, runID, n, false, err.Error())
		return
	}
	cr.log.Info().Int("sprints", n).Msg("cron: baseline capture done")
	_ = cr.repo.FinishJobRun(ctx, runID, n, true, "")
}

func (cr *Cron) digest() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ok, err := cr.repo.TryAdvisoryLock(ctx, digestLockKey)
	if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
	if !ok { cr.log.Info().Msg("cron: digest already running elsewhere"); return }
	defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), digestLockKey) }()

	runID, _ := cr.repo.StartJobRun(ctx, "digest")
	if _, err := cr.svc.Digest(ctx); err != nil {
		cr.log.Error().Err(err).Msg("cron: digest failed")
		_ = cr.repo.FinishJobRun(ctx, runID, 0, false, err.Error())
		return
	}
	cr.log.Info().Msg("cron: digest sent")
	_ = cr.repo.FinishJobRun(ctx, runID, 1, true, "")
}
