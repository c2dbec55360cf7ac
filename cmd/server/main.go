package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/orbitreg/compliance-workflow/internal/config"
	"github.com/orbitreg/compliance-workflow/internal/container"
	httpapi "github.com/orbitreg/compliance-workflow/internal/interfaces/http"
	"github.com/orbitreg/compliance-workflow/pkg/utils"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	// Environment from .env, if present
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting compliance workflow service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Mode:            cfg.Server.Mode,
	}, c.Service(),
		httpapi.WithGatherer(c.Metrics()),
		httpapi.WithServerLogger(logger.Named("http")),
		httpapi.WithHealth(func() (bool, interface{}) {
			h := c.Health()
			return h.Overall, h.Components
		}),
	)

	// Blocks until a signal arrives
	return server.Start(ctx)
}

// configPath returns WORKFLOW_CONFIG, or the default file when it exists
func configPath() string {
	if p := os.Getenv("WORKFLOW_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}
