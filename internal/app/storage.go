package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/clock"
	"github.com/egannguyen/autoparts-marketplace/internal/config"
	"github.com/egannguyen/autoparts-marketplace/internal/repository"
	"github.com/egannguyen/autoparts-marketplace/internal/repository/memory"
	"github.com/egannguyen/autoparts-marketplace/internal/repository/postgres"
)

// Repositories exposes every storage port to the graph.
type Repositories struct {
	fx.Out

	Transactions repository.TransactionRepository
	Warranties   repository.WarrantyRepository
	Ledgers      repository.SecureTransactionRepository
	Claims       repository.ClaimRepository
	Outbox       repository.IssuanceOutbox
	Events       repository.EventStore
	Directory    repository.Directory
}

var storageModule = fx.Module("storage",
	fx.Provide(newRepositories),
)

func newRepositories(lc fx.Lifecycle, cfg config.Config, clk clock.Clock, log *zap.Logger) (Repositories, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory storage, data is lost on restart")
		store := memory.NewStore(memory.WithClock(clk))
		return Repositories{
			Transactions: store.Transactions(),
			Warranties:   store.Warranties(),
			Ledgers:      store.Ledgers(),
			Claims:       store.Claims(),
			Outbox:       store.Outbox(),
			Events:       store.EventStore(),
			Directory:    memory.NewDirectory(true),
		}, nil
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
		defer cancel()
		db, err := postgres.InitDB(ctx, cfg.Storage.DatabaseURL, log)
		if err != nil {
			return Repositories{}, err
		}
		lc.Append(fx.StopHook(db.Close))
		return postgresRepositories(db), nil
	default:
		return Repositories{}, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func postgresRepositories(db *sql.DB) Repositories {
	return Repositories{
		Transactions: postgres.NewTransactionRepository(db),
		Warranties:   postgres.NewWarrantyRepository(db),
		Ledgers:      postgres.NewSecureTransactionRepository(db),
		Claims:       postgres.NewClaimRepository(db),
		Outbox:       postgres.NewIssuanceOutbox(db),
		Events:       postgres.NewEventStore(db),
		Directory:    postgres.NewDirectory(db),
	}
}
