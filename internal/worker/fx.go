package worker

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("worker",
	fx.Provide(NewSweeper),
	fx.Provide(NewIssuanceRelay),
	fx.Provide(NewLedgerProjector),
	fx.Invoke(runWorkers),
)

func runWorkers(lc fx.Lifecycle, sweeper *Sweeper, relay *IssuanceRelay, projector *LedgerProjector) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sweeper.RunForever(ctx)
			go relay.RunForever(ctx)
			go projector.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
