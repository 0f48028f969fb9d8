package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/adapters/jira"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/adapters/openai"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/adapters/telegram"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/baseline"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/config"
	httpx "github.com/cuonglv176/forge-sprint-gadgets-jira/internal/http"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/jobs"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/logger"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/repo"
	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/services"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := repo.MustOpen(ctx, cfg, log)
	defer db.Close()

	repository := repo.NewRepository(db, log)
	if err := repository.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema setup failed")
	}

	jc := jira.NewClient(cfg, log)
	llm := openai.NewClient(cfg, log)
	tg := telegram.NewClient(cfg, log)

	baselines := baseline.NewStore(repository, log)
	svc := services.NewService(cfg, jc, baselines, repository, tg, llm, log)

	router := httpx.NewRouter(cfg, log, svc, repository)

	cr := jobs.NewCron(cfg, log, svc, repository)
	cr.Start()
	defer cr.Stop()

	errCh := make(chan error, 1)
	go func() { errCh <- router.Run(cfg.HTTPAddr) }()
	log.Info().Str("addr", cfg.HTTPAddr).Msg("listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		if err != nil { log.Error().Err(err).Msg("http server error") }
	}

	time.Sleep(500 * time.Millisecond)
}
