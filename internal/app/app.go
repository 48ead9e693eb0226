// Package app assembles the purchase protection engine with fx.
package app

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/clock"
	"github.com/egannguyen/autoparts-marketplace/internal/config"
	"github.com/egannguyen/autoparts-marketplace/internal/logger"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
	"github.com/egannguyen/autoparts-marketplace/internal/worker"
)

var Module = fx.Options(
	fx.Provide(config.Load),
	fx.Provide(newLogger),
	fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log.Named("fx")}
	}),
	clock.Module,
	fx.Provide(newSnowflake),
	storageModule,
	infraModule,
	serviceModule,
	worker.Module,
	httpModule,
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Env, cfg.LogLevel)
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.Snowflake.Node)
}

var serviceModule = fx.Module("service",
	fx.Provide(
		func(cfg config.Config) service.WarrantyOptions {
			opts := service.DefaultWarrantyOptions()
			if cfg.Warranty.LockTTL > 0 {
				opts.LockTTL = cfg.Warranty.LockTTL
			}
			return opts
		},
		func(cfg config.Config) service.ClaimOptions {
			return service.ClaimOptions{DeadlineDays: cfg.Claims.DeadlineDays}
		},
		func(cfg config.Config) worker.SweeperConfig {
			return worker.SweeperConfig{
				Interval:  cfg.Warranty.SweepInterval,
				BatchSize: cfg.Warranty.SweepBatchSize,
				LockTTL:   cfg.Warranty.LockTTL,
			}
		},
		func(cfg config.Config) worker.RelayConfig {
			return worker.RelayConfig{
				PollInterval: cfg.Issuance.PollInterval,
				BatchSize:    cfg.Issuance.BatchSize,
				MaxAttempts:  cfg.Issuance.MaxAttempts,
				Lease:        cfg.Issuance.Lease,
				RetryBackoff: cfg.Issuance.RetryBackoff,
			}
		},
		func(cfg config.Config) worker.ProjectorConfig {
			return worker.ProjectorConfig{GroupID: cfg.Kafka.GroupID}
		},
	),
	fx.Provide(
		service.NewLedgerService,
		service.NewWarrantyService,
		service.NewTransactionService,
		service.NewClaimService,
	),
)
