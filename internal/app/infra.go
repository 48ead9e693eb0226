package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/egannguyen/autoparts-marketplace/internal/config"
	"github.com/egannguyen/autoparts-marketplace/internal/lock"
	"github.com/egannguyen/autoparts-marketplace/internal/messaging"
	"github.com/egannguyen/autoparts-marketplace/internal/messaging/inproc"
	"github.com/egannguyen/autoparts-marketplace/internal/messaging/kafka"
	"github.com/egannguyen/autoparts-marketplace/internal/observability"
)

var infraModule = fx.Module("infra",
	fx.Provide(newMessaging),
	fx.Provide(newLocker),
	fx.Provide(newMetrics),
)

// newMessaging picks Kafka when brokers are configured and the in-process bus otherwise.
func newMessaging(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (messaging.Publisher, messaging.Subscriber) {
	if len(cfg.Kafka.Brokers) > 0 {
		broker := kafka.NewKafkaBroker(cfg.Kafka.Brokers, log)
		lc.Append(fx.StopHook(broker.Close))
		log.Info("messaging on kafka", zap.Strings("brokers", cfg.Kafka.Brokers))
		return broker, broker
	}
	bus := inproc.NewBus(log, false)
	lc.Append(fx.StopHook(bus.Close))
	log.Info("messaging on in-process bus")
	return bus, bus
}

// newLocker uses Redis when an address is configured and process-local locks otherwise.
func newLocker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) lock.Locker {
	if cfg.Redis.Addr == "" {
		log.Info("locks are process-local")
		return lock.NewMemory()
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
			}
			log.Info("locks on redis", zap.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return lock.NewRedis(client, cfg.Redis.KeyPrefix)
}

func newMetrics(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*observability.Metrics, error) {
	provider, err := observability.NewMeterProvider(context.Background(), observability.MeterConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Env,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Interval:    15 * time.Second,
	}, log.Named("metrics"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(provider.Shutdown))
	return observability.NewMetrics(provider)
}
