// Package app — composition root. Bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"changegate.io/changegate/internal/api/handlers"
	"changegate.io/changegate/internal/app/modules"
	"changegate.io/changegate/internal/config"
	"changegate.io/changegate/internal/infrastructure"
	"changegate.io/changegate/internal/jobs"
	"changegate.io/changegate/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	notificationModule, err := modules.NewNotificationModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init notification module: %w", err)
	}
	baseModules := []modules.Module{notificationModule}

	workers := river.NewWorkers()
	for _, mod := range baseModules {
		mod.RegisterWorkers(workers)
	}
	if err := infra.InitRiver(workers); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}
	// Inbox retention cleanup: run on the configured interval and once on
	// startup to avoid long-lived inbox bloat.
	if infra.RiverClient != nil {
		infra.RiverClient.PeriodicJobs().Add(
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.Notification.CleanupInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return jobs.NotificationCleanupArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		)
	}

	approvalModule, err := modules.NewApprovalModule(infra, notificationModule.Triggers())
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init approval module: %w", err)
	}

	allModules := append(baseModules, approvalModule)
	serverDeps := modules.NewServerDeps(cfg, infra, allModules)
	server := handlers.NewServer(serverDeps)

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server, serverDeps.JWTCfg.SigningKey),
		DB:      infra.DB,
		Pools:   infra.Pools,
		Modules: allModules,
	}, nil
}
