package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vivoly/sofia/internal/config"
	"github.com/vivoly/sofia/internal/dedup"
	"github.com/vivoly/sofia/internal/delivery"
	"github.com/vivoly/sofia/internal/gateway"
	"github.com/vivoly/sofia/internal/genai"
	"github.com/vivoly/sofia/internal/history"
	"github.com/vivoly/sofia/internal/observability"
	"github.com/vivoly/sofia/internal/pipeline"
	"github.com/vivoly/sofia/internal/transport"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "sofia.yaml", "Path to configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	gate := dedup.NewGate(cfg.Delivery.DedupTTL)
	defer gate.Stop()

	manager := transport.NewManager(transport.ManagerConfig{
		SessionPath: cfg.Transport.SessionPath,
		CountryCode: cfg.Transport.CountryCode,
		Logger:      logger.With("component", "transport"),
	})

	router := genai.NewRouter(genai.RouterConfig{
		Primary: genai.NewAnthropicClient(genai.AnthropicConfig{
			APIKey: cfg.Providers.Anthropic.APIKey,
			Model:  cfg.Providers.Anthropic.Model,
		}),
		Secondary: genai.NewOpenAIClient(genai.OpenAIConfig{
			APIKey: cfg.Providers.OpenAI.APIKey,
			Model:  cfg.Providers.OpenAI.Model,
		}),
		Preferred:       genai.ProviderName(cfg.Providers.Preferred),
		FailoverEnabled: cfg.Providers.FailoverEnabled,
		MaxTokens:       cfg.Providers.MaxTokens,
		Temperature:     cfg.Providers.Temperature,
		Logger:          logger.With("component", "genai"),
		Metrics:         metrics,
	})

	governor := delivery.NewGovernor(delivery.GovernorConfig{
		Transport:     manager,
		TickInterval:  cfg.Delivery.TickInterval,
		MaxPerHour:    cfg.Delivery.MaxPerHour,
		MinDelay:      cfg.Delivery.MinDelay,
		MaxDelay:      cfg.Delivery.MaxDelay,
		TypingDelay:   cfg.Delivery.TypingDelay,
		WorkStartHour: cfg.Delivery.WorkStartHour,
		WorkEndHour:   cfg.Delivery.WorkEndHour,
		MaxAttempts:   cfg.Delivery.MaxAttempts,
		Logger:        logger.With("component", "delivery"),
		Metrics:       metrics,
	})

	svc := pipeline.NewService(pipeline.ServiceConfig{
		Gate:         gate,
		Store:        store,
		Router:       router,
		Deliverer:    governor,
		Session:      manager,
		ContextTurns: cfg.History.ContextTurns,
		Logger:       logger.With("component", "pipeline"),
		Metrics:      metrics,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	manager.Subscribe(transport.Listener{
		OnAuthArtifact: func(code string) {
			fmt.Fprintf(os.Stdout, "\nScan this code in WhatsApp to pair:\n\n%s\n\n", code)
		},
		OnReady: func() {
			logger.Info("session ready, pipeline active")
		},
		OnDisconnected: func() {
			logger.Warn("session dropped; restart the service to reconnect")
		},
		OnAuthFailed: func(reason string) {
			logger.Error("device logged out, re-pairing required", "reason", reason)
		},
		OnMessage: func(msg *transport.Message) {
			go func() {
				// Errors are logged and counted inside the pipeline.
				_ = svc.HandleInbound(ctx, msg)
			}()
		},
	})

	if err := manager.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize transport: %w", err)
	}

	governor.Start(ctx)

	var admin *gateway.Server
	if cfg.Gateway.Enabled {
		admin = gateway.NewServer(gateway.ServerConfig{
			Addr:     cfg.Gateway.Addr,
			Service:  svc,
			Router:   router,
			Store:    store,
			Registry: registry,
			Logger:   logger.With("component", "gateway"),
		})
		if err := admin.Start(); err != nil {
			return err
		}
	}

	logger.Info("sofia started", "version", version)
	<-ctx.Done()
	logger.Info("shutting down")

	governor.Stop()
	if admin != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		admin.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	manager.Disconnect()
	return nil
}

// loadConfig reads the config file when present and falls back to defaults
// so a bare `sofia serve` works out of the box.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Info("config file not found, using defaults", "path", path)
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}
