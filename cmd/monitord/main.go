package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/config"
	"github.com/backupwatch/backupwatch/internal/httpapi"
	"github.com/backupwatch/backupwatch/internal/logging"
	"github.com/backupwatch/backupwatch/internal/notify"
	"github.com/backupwatch/backupwatch/internal/repo"
	"github.com/backupwatch/backupwatch/internal/repo/memory"
	"github.com/backupwatch/backupwatch/internal/repo/postgres"
	"github.com/backupwatch/backupwatch/internal/scheduler"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		jobs      repo.JobStore
		schedules repo.ScheduleStore
		episodes  repo.EpisodeStore
		taskRuns  repo.TaskRunStore
		audit     repo.AuditStore
	)
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("store_connect_failed", zap.Error(err))
		}
		defer pg.Close()
		jobs, schedules, episodes, taskRuns, audit = pg, pg, pg, pg, pg
		logger.Info("store_postgres")
	} else {
		mem := memory.New()
		jobs, schedules, episodes, taskRuns, audit = mem, mem, mem, mem, mem
		logger.Warn("store_memory", zap.String("hint", "set DATABASE_URL for persistence"))
	}

	channelCfgs, err := config.LoadChannels(cfg.ChannelFile)
	if err != nil {
		logger.Fatal("channel_config_invalid", zap.Error(err))
	}
	channels := make([]notify.Channel, 0, len(channelCfgs))
	for _, c := range channelCfgs {
		switch c.Type {
		case "push":
			channels = append(channels, notify.NewPush(c.Name, c.Webhook))
		case "email":
			channels = append(channels, notify.NewEmail(c.Name, c.APIKey, c.From, c.To))
		}
	}
	dispatcher := notify.NewDispatcher(channels, logger, notify.DispatcherConfig{
		SendTimeout:    cfg.SendTimeout,
		MaxAttempts:    cfg.MaxSendAttempts,
		InitialBackoff: cfg.SendBackoff,
	})
	logger.Info("channels_loaded", zap.Strings("channels", dispatcher.Channels()))

	checker := scheduler.NewChecker(logger, jobs, schedules, episodes, audit, dispatcher, scheduler.CheckerConfig{
		DefaultInterval:  cfg.DefaultJobInterval,
		DefaultTolerance: cfg.DefaultTolerance,
		Escalation:       cfg.Escalation,
		NotifyOnRecovery: cfg.NotifyOnRecovery,
	})

	sched := scheduler.New(logger, taskRuns, audit)
	sched.Register(scheduler.TaskOverdueCheck, cfg.CheckInterval, checker.Run)
	sched.Start(ctx)

	api := httpapi.NewServer(logger, sched)
	srv := &http.Server{Addr: cfg.Addr, Handler: api.Router()}
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("api_listen_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_requested")

	// No new ticks are admitted; the in-flight tick drains, bounded by the
	// dispatcher timeout plus a margin.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.SendTimeout+15*time.Second)
	defer cancel()
	sched.Stop(drainCtx)
	_ = srv.Shutdown(drainCtx)
	logger.Info("shutdown_complete")
}
