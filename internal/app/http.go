package app

import (
	"context"
	"errors"
	"net"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/config"
	delivery "github.com/egannguyen/autoparts-marketplace/internal/delivery/http"
)

var httpModule = fx.Module("http",
	fx.Provide(delivery.NewHandler),
	fx.Invoke(runHTTP),
)

func runHTTP(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, h *delivery.Handler, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: h.Routes(),
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server error", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
			defer cancel()
			log.Info("http server shutting down")
			return srv.Shutdown(ctx)
		},
	})
}
