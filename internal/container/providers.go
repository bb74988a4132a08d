package container

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/travel-approval/internal/application/dispatcher"
	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/application/service"
	"github.com/garyjia/travel-approval/internal/domain/event"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
	"github.com/garyjia/travel-approval/internal/infrastructure/metrics"
	"github.com/garyjia/travel-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/travel-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/travel-approval/internal/infrastructure/realtime"
	"github.com/garyjia/travel-approval/migrations"
	"github.com/garyjia/travel-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// RedisBundle holds the change feed client and publisher.
type RedisBundle struct {
	Client    *redis.Client
	Publisher *realtime.RedisPublisher
}

// ProvideDatabase opens the database and applies pending migrations.
// The embedded schema is used unless cfg.MigrationsDir is set.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(conn, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrations(cfg.MigrationsDir)
	} else {
		err = migrator.RunMigrationsFS(migrations.FS)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		SqlDB:          conn.DB,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Request:      repository.NewRequestRepository(sqlDB, logger),
		User:         repository.NewUserRepository(sqlDB, logger),
		History:      repository.NewHistoryRepository(sqlDB, logger),
		Notification: repository.NewNotificationRepository(sqlDB, logger),
	}, nil
}

// ProvideRedis connects the change feed. It returns (nil, nil) when Redis is disabled.
func ProvideRedis(ctx context.Context, cfg *RedisConfig, logger *zap.Logger) (*RedisBundle, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	client, err := realtime.NewClient(ctx, realtime.Options{
		Address:  cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, err
	}

	return &RedisBundle{
		Client:    client,
		Publisher: realtime.NewRedisPublisher(client, cfg.ChannelPrefix, logger),
	}, nil
}

// ProvideMetrics registers the workflow collectors on reg.
func ProvideMetrics(reg prometheus.Registerer) (*metrics.Recorder, error) {
	if reg == nil {
		return nil, fmt.Errorf("prometheus registerer is required")
	}
	return metrics.NewRecorder(reg), nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the change feed
// publisher, when present, to every request event.
func ProvideDispatcher(cfg *WorkflowConfig, publisher port.ChangePublisher, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("workflow config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	dispatcherLogger := &zapLoggerAdapter{logger: logger}

	disp := dispatcher.NewDispatcher(
		dispatcher.WithLogger(dispatcherLogger),
		dispatcher.WithMaxInFlight(cfg.MaxInFlightEvents),
	)

	if publisher != nil {
		disp.SubscribeAll(event.AllTypes(), "redis-change-feed", func(ctx context.Context, evt *event.Event) error {
			return publisher.Publish(ctx, evt)
		})
	}

	disp.SubscribeAll(event.AllTypes(), "audit-log", func(ctx context.Context, evt *event.Event) error {
		logger.Info("Request event",
			zap.String("event_type", string(evt.Type)),
			zap.Int64("request_id", evt.RequestID),
			zap.String("request_number", evt.RequestNumber),
			zap.String("correlation_id", evt.CorrelationID))
		return nil
	})

	return disp, nil
}

// ServiceDeps holds dependencies required for creating application services.
type ServiceDeps struct {
	Repos       *RepositoryBundle
	TxManager   port.TransactionManager
	Dispatcher  dispatcher.Dispatcher
	Metrics     port.MetricsRecorder
	WorkflowCfg *WorkflowConfig
	NotifyCfg   *NotificationConfig
	Logger      *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	baseURL := ""
	if deps.NotifyCfg != nil {
		baseURL = deps.NotifyCfg.BaseActionURL
	}

	notifications := service.NewNotificationService(
		deps.Repos.Notification,
		deps.Repos.User,
		deps.Metrics,
		baseURL,
		serviceLogger,
	)

	policy := workflow.NewTravelPolicy()

	opts := []service.DecisionOption{service.WithMetrics(deps.Metrics)}
	if deps.Dispatcher != nil {
		opts = append(opts, service.WithEvents(deps.Dispatcher))
	}
	if deps.WorkflowCfg != nil {
		opts = append(opts, service.WithReadTimeout(deps.WorkflowCfg.ReadTimeout))
	}

	return &ServiceBundle{
		Decision: service.NewDecisionService(
			deps.Repos.Request,
			deps.Repos.User,
			deps.Repos.History,
			deps.TxManager,
			policy,
			notifications,
			serviceLogger,
			opts...,
		),
		Request:      service.NewRequestQueryService(deps.Repos.Request, deps.Repos.History, serviceLogger),
		Notification: notifications,
		Policy:       policy,
	}, nil
}
