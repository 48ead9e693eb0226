package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/lock"
	"github.com/egannguyen/autoparts-marketplace/internal/service"
)

const sweepLockKey = "warranty:sweep"

// Sweeper expires overdue warranties on a timer. Only the replica holding
// the sweep lock does the work on a given tick.
type Sweeper struct {
	warranties *service.WarrantyService
	locker     lock.Locker
	log        *zap.Logger
	cfg        SweeperConfig
}

func NewSweeper(warranties *service.WarrantyService, locker lock.Locker, log *zap.Logger, cfg SweeperConfig) *Sweeper {
	return &Sweeper{
		warranties: warranties,
		locker:     locker,
		log:        log.Named("worker.sweeper"),
		cfg:        cfg.withDefaults(),
	}
}

func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("expiration sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep. It returns an empty result when another
// replica holds the lock.
func (s *Sweeper) RunOnce(ctx context.Context) (*service.SweepResult, error) {
	unlock, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.LockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		s.log.Debug("sweep skipped, lock held elsewhere")
		return &service.SweepResult{Expired: []string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release sweep lock", zap.Error(err))
		}
	}()

	return s.warranties.SweepExpired(ctx, s.cfg.BatchSize)
}
