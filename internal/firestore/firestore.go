package firestore

import (
	"context"
	"fmt"

	httpadapter "firestore-typed/internal/firestore/adapter/http"
	"firestore-typed/internal/firestore/adapter/persistence"
	"firestore-typed/internal/firestore/adapter/persistence/cloudfirestore"
	"firestore-typed/internal/firestore/adapter/persistence/memory"
	"firestore-typed/internal/firestore/adapter/persistence/mongodb"
	"firestore-typed/internal/firestore/config"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/firestore/usecase"
	"firestore-typed/internal/shared/errors"
	"firestore-typed/internal/shared/eventbus"
	"firestore-typed/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// FirestoreModule owns the driver, the typed client on top of it and the gateway.
type FirestoreModule struct {
	Config  *config.FirestoreConfig
	Driver  repository.Driver
	Client  *usecase.Client
	Gateway *httpadapter.Gateway
	Logger  logger.Logger

	// Feed is nil for drivers with native listeners.
	Feed        repository.ChangeFeed
	RedisClient *redis.Client
}

// NewFirestoreModule opens the configured driver and builds the client. cfg may be nil,
// in which case the configuration is read from the environment.
func NewFirestoreModule(ctx context.Context, cfg *config.FirestoreConfig, log logger.Logger) (*FirestoreModule, error) {
	if log == nil {
		log = logger.NewLogger()
	}
	if cfg == nil {
		loaded, err := config.LoadConfig()
		if err != nil {
			log.Warn("Failed to load Firestore config from environment, using defaults", zap.Error(err))
			loaded = config.DefaultFirestoreConfig()
		}
		cfg = loaded
	}
	if !cfg.Enabled {
		return nil, errors.NewFeatureDisabledError("firestore")
	}
	log.Info("Initializing Firestore module", zap.String("driver", cfg.Driver))

	m := &FirestoreModule{Config: cfg, Logger: log}
	if err := m.openDriver(ctx); err != nil {
		m.Stop()
		return nil, err
	}

	client, err := usecase.NewClient(cfg, m.Driver, log)
	if err != nil {
		m.Stop()
		return nil, err
	}
	m.Client = client
	m.Gateway = httpadapter.NewGateway(client, cfg.Gateway, log)

	log.Info("Firestore module initialized", zap.String("driver", m.Driver.Name()))
	return m, nil
}

func (m *FirestoreModule) openDriver(ctx context.Context) error {
	cfg, log := m.Config, m.Logger
	switch cfg.Driver {
	case config.DriverFirestore:
		driver, err := cloudfirestore.Connect(ctx, cfg, log)
		if err != nil {
			return err
		}
		m.Driver = driver
		return nil

	case config.DriverMemory, config.DriverMongoDB:
		feed, err := m.openFeed(ctx)
		if err != nil {
			return err
		}
		m.Feed = feed
		if cfg.Driver == config.DriverMemory {
			m.Driver = memory.NewDriver(log, memory.WithFeed(feed))
			return nil
		}
		driver, err := mongodb.Connect(ctx, cfg, log, mongodb.WithFeed(feed))
		if err != nil {
			return err
		}
		m.Driver = driver
		return nil
	}
	return errors.NewValidationError(fmt.Sprintf("unknown driver %q", cfg.Driver)).WithKind(errors.ErrUnknownDriver)
}

// openFeed returns the change feed for drivers without native listeners. Redis shares
// changes between processes; otherwise an in-process event bus is used.
func (m *FirestoreModule) openFeed(ctx context.Context) (repository.ChangeFeed, error) {
	if !m.Config.Redis.Enabled {
		return persistence.NewBusChangeFeed(eventbus.NewEventBus(m.Logger), m.Logger), nil
	}
	client := config.NewRedisClient(&m.Config.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewInfrastructureError("failed to connect to redis at " + m.Config.Redis.GetAddr()).WithCause(err)
	}
	m.RedisClient = client
	m.Logger.Info("Redis change feed enabled", zap.String("stream", m.Config.Redis.StreamKey))
	return persistence.NewRedisChangeFeed(client, m.Config.Redis.StreamKey, m.Config.Redis.StreamMaxLength, m.Logger), nil
}

// RegisterRoutes mounts the gateway on router.
func (m *FirestoreModule) RegisterRoutes(router fiber.Router) {
	m.Gateway.RegisterRoutes(router)
}

// HealthCheck pings the Redis feed when there is one.
func (m *FirestoreModule) HealthCheck(ctx context.Context) error {
	if m.RedisClient != nil {
		if err := m.RedisClient.Ping(ctx).Err(); err != nil {
			return errors.NewInfrastructureError("redis health check failed").WithCause(err)
		}
	}
	return nil
}

// Stop closes the driver and the Redis client. Drivers close their own feed; the feed
// is closed here only when the driver never opened.
func (m *FirestoreModule) Stop() {
	if m.Driver != nil {
		if err := m.Driver.Close(); err != nil {
			m.Logger.Error("Failed to close driver", zap.Error(err))
		}
	} else if m.Feed != nil {
		if err := m.Feed.Close(); err != nil {
			m.Logger.Error("Failed to close change feed", zap.Error(err))
		}
	}
	if m.RedisClient != nil {
		if err := m.RedisClient.Close(); err != nil {
			m.Logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	m.Logger.Info("Firestore module stopped")
}
