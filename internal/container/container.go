package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/stock-approval/internal/application/dispatcher"
	"github.com/garyjia/stock-approval/internal/application/port"
	"github.com/garyjia/stock-approval/internal/application/service"
	"github.com/garyjia/stock-approval/internal/application/workflow"
	"github.com/garyjia/stock-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/stock-approval/internal/infrastructure/seed"
	"github.com/garyjia/stock-approval/internal/infrastructure/worker"
)

// Container owns the stock approval components. Start builds them in
// dependency order; Close releases them in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle
	messenger    port.MessageSender
	dispatcher   dispatcher.Dispatcher
	services     *ServiceBundle
	engine       workflow.ApprovalEngine
	workers      *worker.Manager

	mu      sync.RWMutex
	started bool
	closed  bool
	// closers run last-registered first
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Workflow     port.WorkflowRepository
	Approver     port.ApproverRepository
	Approval     port.ApprovalRepository
	History      port.HistoryRepository
	Item         port.RequestItemRepository
	Stock        port.StockRepository
	Disposition  port.DispositionRepository
	InventoryLog port.InventoryLogRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Registry     service.RegistryService
	Approval     service.ApprovalService
	Inventory    service.InventoryService
	Notification service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates cfg. Nothing is opened until Start.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start opens the database, wires services and the engine, then starts
// background workers. A failed step releases whatever was already opened.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		return fmt.Errorf("container has been closed")
	case c.started:
		return fmt.Errorf("container already started")
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"database", c.startDatabase},
		{"messenger", c.startMessenger},
		{"services", c.startServices},
		{"engine", c.startEngine},
		{"workers", c.startWorkers},
	}

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			c.logger.Error("Container step failed", zap.String("step", step.name), zap.Error(err))
			_ = c.release()
			return fmt.Errorf("failed to start %s: %w", step.name, err)
		}
		c.logger.Info("Container step ready", zap.String("step", step.name))
	}

	c.started = true
	c.logger.Info("Container started")
	return nil
}

func (c *Container) onClose(name string, fn func() error) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

func (c *Container) startDatabase(context.Context) error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.sqlDB = bundle.SqlDB
	c.db = bundle.TransactionMgr
	c.onClose("database", c.sqlDB.Close)

	c.repositories, err = ProvideRepositories(c.sqlDB, c.logger)
	return err
}

func (c *Container) startMessenger(context.Context) error {
	m, err := ProvideMessenger(c.logger)
	if err != nil {
		return err
	}
	c.messenger = m
	return nil
}

func (c *Container) startServices(context.Context) error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp
	// queued notifications drain before the database closes
	c.onClose("dispatcher", disp.Close)

	c.services, err = ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Messenger:  c.messenger,
		Registry:   c.config.Registry,
		Metrics:    c.config.Metrics.Enabled,
		Logger:     c.logger,
	})
	return err
}

func (c *Container) startEngine(context.Context) error {
	engine, err := ProvideEngine(&EngineDeps{
		Registry:   c.services.Registry,
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.engine = engine
	return nil
}

func (c *Container) startWorkers(ctx context.Context) error {
	workers, err := ProvideWorkers(&c.config.Worker, c.repositories, c.config.Metrics.Enabled, c.logger)
	if err != nil {
		return err
	}
	if err := workers.StartAll(ctx); err != nil {
		return err
	}
	c.workers = workers
	c.onClose("workers", workers.StopAll)
	return nil
}

// release runs the registered closers in reverse and clears them
func (c *Container) release() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		if err := cl.fn(); err != nil {
			c.logger.Error("Failed to close component", zap.String("component", cl.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", cl.name, err))
			continue
		}
		c.logger.Info("Component closed", zap.String("component", cl.name))
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Close stops workers, drains the dispatcher and closes the database.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("container already closed")
	}
	c.closed = true
	c.started = false

	if err := c.release(); err != nil {
		return fmt.Errorf("container closed with errors: %w", err)
	}
	c.logger.Info("Container closed")
	return nil
}

// Ready returns true between a successful Start and Close.
func (c *Container) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// Health pings the database and reports which components are wired.
func (c *Container) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth)}
	report := func(name string, h ComponentHealth) {
		status.Components[name] = h
		status.Overall = status.Overall && h.Healthy
	}
	wired := func(name string, ok bool) {
		if ok {
			report(name, ComponentHealth{Healthy: true})
		} else {
			report(name, ComponentHealth{Message: "not initialized"})
		}
	}

	switch {
	case c.sqlDB == nil:
		wired("database", false)
	default:
		if err := c.sqlDB.Ping(); err != nil {
			report("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			wired("database", true)
		}
	}

	wired("dispatcher", c.dispatcher != nil)
	wired("engine", c.engine != nil)

	if c.workers == nil {
		wired("workers", false)
	} else {
		report("workers", ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.Count()),
		})
	}

	return status
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager { return c.db }

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle { return c.repositories }

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher { return c.dispatcher }

// Engine returns the approval engine.
func (c *Container) Engine() workflow.ApprovalEngine { return c.engine }

// Services returns all application services.
func (c *Container) Services() *ServiceBundle { return c.services }

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager { return c.workers }

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// Config returns the container's configuration.
func (c *Container) Config() *Config { return c.config }

// Seeder returns a seeder writing through the registry service and stock repositories.
func (c *Container) Seeder() *seed.Seeder {
	return seed.NewSeeder(c.services.Registry, c.repositories.Stock, c.repositories.InventoryLog, c.db, c.logger.Named("seed"))
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces
// used by services, the dispatcher and the engine.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields pairs keys with values; non-string keys and a trailing key are dropped.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
