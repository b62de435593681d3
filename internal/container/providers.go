package container

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/stock-approval/internal/application/dispatcher"
	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/application/service"
	"github.com/garyjia/stock-approval/internal/application/workflow"
	"github.com/garyjia/stock-approval/internal/infrastructure/external/messenger"
	"github.com/garyjia/stock-approval/internal/infrastructure/metrics"
	"github.com/garyjia/stock-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/stock-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/stock-approval/internal/infrastructure/worker"
	"github.com/garyjia/stock-approval/migrations"
	"github.com/garyjia/stock-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the SQLite database and, when configured, applies
// the embedded migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := database.NewMigrator(db, logger).RunMigrations(migrations.FS); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
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
		Workflow:     repository.NewWorkflowRepository(sqlDB, logger),
		Approver:     repository.NewApproverRepository(sqlDB, logger),
		Approval:     repository.NewApprovalRepository(sqlDB, logger),
		History:      repository.NewHistoryRepository(sqlDB, logger),
		Item:         repository.NewRequestItemRepository(sqlDB, logger),
		Stock:        repository.NewStockRepository(sqlDB, logger),
		Disposition:  repository.NewDispositionRepository(sqlDB, logger),
		InventoryLog: repository.NewInventoryLogRepository(sqlDB, logger),
	}, nil
}

// ProvideMessenger creates the notification sender.
func ProvideMessenger(logger *zap.Logger) (port.MessageSender, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return messenger.NewMessenger(logger), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Messenger  port.MessageSender
	Registry   RegistryConfig
	Metrics    bool
	Logger     *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// notification service to approval events.
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
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger.Named("service")}

	inventoryOpts := []service.InventoryOption{service.WithEventDispatcher(deps.Dispatcher)}
	if deps.Metrics {
		inventoryOpts = append(inventoryOpts, service.WithMatchObserver(metrics.MatchObserver{}))
	}

	bundle := &ServiceBundle{
		Registry: service.NewRegistryService(
			deps.Repos.Workflow,
			deps.Repos.Approver,
			deps.TxManager,
			deps.Registry.CacheTTL,
			serviceLogger,
		),
		Approval: service.NewApprovalService(
			deps.Repos.Approval,
			deps.Repos.History,
			deps.Repos.Disposition,
			serviceLogger,
		),
		Inventory: service.NewInventoryService(
			deps.Repos.Approval,
			deps.Repos.Item,
			deps.Repos.Stock,
			deps.Repos.Disposition,
			deps.Repos.InventoryLog,
			deps.TxManager,
			serviceLogger,
			inventoryOpts...,
		),
		Notification: service.NewNotificationService(
			deps.Repos.Approval,
			deps.Messenger,
			serviceLogger,
		),
	}

	bundle.Notification.Register(deps.Dispatcher)
	if deps.Metrics {
		metrics.Subscribe(deps.Dispatcher)
	}

	return bundle, nil
}

// EngineDeps holds dependencies required for creating the approval engine.
type EngineDeps struct {
	Registry   workflow.Registry
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideEngine creates the approval engine.
func ProvideEngine(deps *EngineDeps) (workflow.ApprovalEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("engine dependencies are required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return workflow.NewEngine(
		deps.Registry,
		workflow.Repositories{
			Approvals:     deps.Repos.Approval,
			History:       deps.Repos.History,
			Items:         deps.Repos.Item,
			Stock:         deps.Repos.Stock,
			Dispositions:  deps.Repos.Disposition,
			InventoryLogs: deps.Repos.InventoryLog,
		},
		deps.TxManager,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger.Named("engine")}),
	), nil
}

// ProvideWorkers creates the worker manager. Workers are registered but not started.
func ProvideWorkers(cfg *WorkerConfig, repos *RepositoryBundle, withMetrics bool, logger *zap.Logger) (*worker.Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("worker config is required")
	}
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewManager(logger.Named("worker"))
	if cfg.ReorderInterval > 0 {
		var observer worker.ReorderObserver
		if withMetrics {
			observer = metrics.ReorderGauge{}
		}
		manager.Register(worker.NewReorderWorker(cfg.ReorderInterval, repos.Stock, observer, logger.Named("reorder")))
	}
	return manager, nil
}
