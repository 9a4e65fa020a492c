package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"changegate.io/changegate/internal/config"
	"changegate.io/changegate/internal/infrastructure"
	"changegate.io/changegate/internal/pkg/worker"
	"changegate.io/changegate/internal/repository"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config      *config.Config
	DB          *infrastructure.DatabaseClients
	Pools       *worker.Pools
	Pool        *pgxpool.Pool
	Queries     *repository.Queries
	RiverClient *river.Client[pgx.Tx]
}

// NewInfrastructure initializes the database, worker pools, and the shared
// repository handle.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	// Dev-mode: auto-create approval schema + River queue tables.
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		BulkPoolSize:    cfg.Worker.BulkPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	return &Infrastructure{
		Config:  cfg,
		DB:      db,
		Pools:   pools,
		Pool:    db.Pool,
		Queries: repository.New(db.Pool),
	}, nil
}

// InitRiver initializes the River client on top of a prepared worker registry.
func (i *Infrastructure) InitRiver(workers *river.Workers) error {
	if i == nil || i.DB == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if err := i.DB.InitRiverClient(workers, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
