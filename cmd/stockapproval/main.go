package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/stock-approval/internal/config"
	"github.com/garyjia/stock-approval/internal/container"
	httpserver "github.com/garyjia/stock-approval/internal/interfaces/http"
	"github.com/garyjia/stock-approval/internal/infrastructure/metrics"
	"github.com/garyjia/stock-approval/internal/infrastructure/seed"
	"github.com/garyjia/stock-approval/migrations"
	"github.com/garyjia/stock-approval/pkg/database"
	"github.com/garyjia/stock-approval/pkg/utils"
)

const serviceName = "stock-approval"

type cli struct {
	configFile string
	envFile    string
	seedFile   string

	cfg    *config.Config
	logger *zap.Logger
}

// setup loads .env, the config file and the logger before any subcommand runs
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	if err := gotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", c.envFile, err)
	}

	cfg, err := config.Load(c.configFile)
	if err != nil {
		return err
	}
	c.cfg = cfg

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    serviceName,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.logger = logger
	return nil
}

func (c *cli) serve(cmd *cobra.Command, args []string) error {
	defer c.logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.cfg.Metrics.Enabled {
		metrics.Init()
	}

	app, err := container.NewContainer(c.cfg.ToContainerConfig(), c.logger)
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		_ = app.Close()
		return err
	}
	defer app.Close() //nolint:errcheck

	if c.cfg.Seed.OnStart {
		if err := c.applySeed(ctx, app, c.cfg.Seed.Path); err != nil {
			return err
		}
	}

	opts := []httpserver.Option{
		httpserver.WithHealthCheck(func() (bool, interface{}) {
			h := app.Health()
			return h.Overall, h.Components
		}),
	}
	if c.cfg.Metrics.Enabled {
		opts = append(opts,
			httpserver.WithMetrics(c.cfg.Metrics.Path),
			httpserver.WithErrorObserver(metrics.IncError),
		)
	}

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         c.cfg.Server.Host,
			Port:         c.cfg.Server.Port,
			ReadTimeout:  c.cfg.Server.ReadTimeout,
			WriteTimeout: c.cfg.Server.WriteTimeout,
		},
		httpserver.Services{
			Engine:    app.Engine(),
			Registry:  app.Services().Registry,
			Approvals: app.Services().Approval,
			Inventory: app.Services().Inventory,
		},
		&zapKV{logger: c.logger.Named("http")},
		opts...,
	)

	c.logger.Info("Starting stock approval engine", zap.String("address", server.Address()))
	return server.Start(ctx)
}

func (c *cli) migrate(cmd *cobra.Command, args []string) error {
	defer c.logger.Sync() //nolint:errcheck

	db, err := database.New(database.Config{
		Path:            c.cfg.Database.Path,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: c.cfg.Database.ConnMaxLifetime,
	}, c.logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return database.NewMigrator(db, c.logger).RunMigrations(migrations.FS)
}

func (c *cli) seed(cmd *cobra.Command, args []string) error {
	defer c.logger.Sync() //nolint:errcheck

	path := c.seedFile
	if path == "" {
		path = c.cfg.Seed.Path
	}

	cc := c.cfg.ToContainerConfig()
	cc.Worker.ReorderInterval = 0

	app, err := container.NewContainer(cc, c.logger)
	if err != nil {
		return err
	}
	defer app.Close() //nolint:errcheck

	if err := app.Start(cmd.Context()); err != nil {
		return err
	}
	return c.applySeed(cmd.Context(), app, path)
}

func (c *cli) applySeed(ctx context.Context, app *container.Container, path string) error {
	doc, err := seed.Load(path)
	if err != nil {
		return err
	}
	res, err := app.Seeder().Apply(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to apply seed %s: %w", path, err)
	}
	c.logger.Info("Seed file applied",
		zap.String("path", path),
		zap.Int("workflows", res.Workflows),
		zap.Int("items", res.Items),
	)
	return nil
}

// zapKV adapts zap to the HTTP server's key-value logger
type zapKV struct {
	logger *zap.Logger
}

func (z *zapKV) Info(msg string, kv ...interface{}) {
	z.logger.Sugar().Infow(msg, kv...)
}

func (z *zapKV) Error(msg string, kv ...interface{}) {
	z.logger.Sugar().Errorw(msg, kv...)
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:               "stockapproval",
		Short:             "Approval forwarding and inventory allocation engine",
		PersistentPreRunE: c.setup,
		SilenceUsage:      true,
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "configs/config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "optional dotenv file loaded before the config")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  c.serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE:  c.migrate,
	})

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load workflows, approvers and catalog stock from a YAML file",
		RunE:  c.seed,
	}
	seedCmd.Flags().StringVar(&c.seedFile, "file", "", "seed file (defaults to seed.path from the config)")
	root.AddCommand(seedCmd)

	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
