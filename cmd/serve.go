package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/surfersbangs/surfers/internal/api"
	"github.com/surfersbangs/surfers/internal/artifact"
	"github.com/surfersbangs/surfers/internal/completion"
	"github.com/surfersbangs/surfers/internal/config"
	"github.com/surfersbangs/surfers/internal/publish"
	"github.com/surfersbangs/surfers/internal/upstream"
)

// runServe initializes and starts the HTTP server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr, err := parseServeAddr()
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := initLogger()
	logger.Info("starting surfers backend", "version", AppVersion, "model", cfg.ModelName)

	client, err := upstream.NewClient(cfg.UpstreamAPIKey, cfg.ModelName,
		upstream.WithBaseURL(cfg.UpstreamBaseURL))
	if err != nil {
		return fmt.Errorf("creating upstream client: %w", err)
	}

	intercept, err := completion.NewIntercept(cfg.InterceptPatterns, cfg.BrandReply)
	if err != nil {
		return fmt.Errorf("compiling intercept patterns: %w", err)
	}

	temperature := cfg.Temperature
	driver := completion.NewDriver(client, completion.Config{
		Logger:           logger,
		SystemPrompt:     cfg.SystemPrompt,
		Temperature:      &temperature,
		MaxTokens:        cfg.MaxTokens,
		MaxContinuations: cfg.MaxContinuations,
		Intercept:        intercept,
	})

	store, err := artifact.NewStore(filepath.Join(cfg.DataDir, "artifacts"), logger)
	if err != nil {
		return fmt.Errorf("creating artifact store: %w", err)
	}
	registry := publish.NewRegistry(filepath.Join(cfg.DataDir, "published.json"), store, logger)

	server, err := api.NewServer(api.ServerConfig{
		Logger:        logger,
		Runner:        driver,
		Artifacts:     store,
		Registry:      registry,
		DataDir:       cfg.DataDir,
		PublicBaseURL: cfg.PublicBaseURL,
		CORSOrigins:   cfg.CORSOrigins,
		TrustProxy:    cfg.TrustProxy,
		VisionEnabled: cfg.VisionEnabled,
		RateRPS:       cfg.RateRPS,
		RateBurst:     cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	return server.Run(ctx, addr)
}
