package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/rackmarket/internal/core/poll"
	"github.com/artpar/rackmarket/internal/shell/api"
	"github.com/artpar/rackmarket/internal/shell/currency"
	"github.com/artpar/rackmarket/internal/shell/deploy"
	"github.com/artpar/rackmarket/internal/shell/forward"
	"github.com/artpar/rackmarket/internal/shell/provider"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitHTTPServerError = 2
)

// =============================================================================
// Server
// =============================================================================

// Server represents the rackmarket application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires the provider adapters, workflow service and HTTP
// handler from the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	rates := currency.NewClient(currency.Config{
		BaseURL: cfg.Currency.BaseURL,
		Timeout: cfg.Currency.Timeout,
	}, logger)

	var adapters []provider.Catalog
	serverCreds := make(provider.CredentialSet)
	forwarders := make(map[string]*forward.Client)

	if cfg.Providers.Hetzner.Enabled {
		adapters = append(adapters, provider.NewHetznerProvider(provider.HetznerConfig{
			Endpoint: cfg.Providers.Hetzner.Endpoint,
		}, rates, logger))
		serverCreds[provider.HetznerName] = provider.Credential(cfg.Providers.Hetzner.Credential)
		forwarders[provider.HetznerName] = forward.NewClient(forward.Config{
			Provider:         provider.HetznerName,
			BaseURL:          orDefault(cfg.Providers.Hetzner.Endpoint, "https://api.hetzner.cloud/v1"),
			CredentialHeader: "Authorization",
			CredentialPrefix: "Bearer ",
		})
	}

	if cfg.Providers.Cherry.Enabled {
		adapters = append(adapters, provider.NewCherryProvider(cfg.Providers.Cherry.Endpoint, rates, logger))
		serverCreds[provider.CherryName] = provider.Credential(cfg.Providers.Cherry.Credential)
		forwarders[provider.CherryName] = forward.NewClient(forward.Config{
			Provider:         provider.CherryName,
			BaseURL:          orDefault(cfg.Providers.Cherry.Endpoint, provider.CherryBaseURL),
			CredentialHeader: "Authorization",
			CredentialPrefix: "Bearer ",
		})
	}

	if cfg.Providers.Hivelocity.Enabled {
		adapters = append(adapters, provider.NewHivelocityProvider(cfg.Providers.Hivelocity.Endpoint, logger))
		serverCreds[provider.HivelocityName] = provider.Credential(cfg.Providers.Hivelocity.Credential)
		forwarders[provider.HivelocityName] = forward.NewClient(forward.Config{
			Provider:         provider.HivelocityName,
			BaseURL:          orDefault(cfg.Providers.Hivelocity.Endpoint, provider.HivelocityBaseURL),
			CredentialHeader: "X-API-KEY",
		})
	}

	if cfg.Providers.Vultr.Enabled {
		adapters = append(adapters, provider.NewVultrProvider(cfg.Providers.Vultr.Endpoint, logger))
		serverCreds[provider.VultrName] = provider.Credential(cfg.Providers.Vultr.Credential)
		forwarders[provider.VultrName] = forward.NewClient(forward.Config{
			Provider:         provider.VultrName,
			BaseURL:          orDefault(cfg.Providers.Vultr.Endpoint, provider.VultrBaseURL),
			CredentialHeader: "Authorization",
			CredentialPrefix: "Bearer ",
		})
	}

	if cfg.Providers.DigitalOcean.Enabled {
		adapters = append(adapters, provider.NewDigitalOceanProvider(cfg.Providers.DigitalOcean.Endpoint, logger))
		serverCreds[provider.DigitalOceanName] = provider.Credential(cfg.Providers.DigitalOcean.Credential)
	}

	registry := provider.NewRegistry(logger, adapters...)
	logger.Info("providers registered", "providers", registry.Names())

	deployer := deploy.NewService(registry, deploy.Config{
		AddressPoll: poll.Config{
			Interval: cfg.Deploy.AddressPollInterval,
			Timeout:  cfg.Deploy.AddressPollTimeout,
		},
		PowerPoll: poll.Config{
			Interval: cfg.Deploy.PowerPollInterval,
			Timeout:  cfg.Deploy.PowerPollTimeout,
		},
	}, logger)

	handler := api.NewHandler(registry, deployer, rates, forwarders, serverCreds, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		logger:     logger,
	}, nil
}

// orDefault returns value unless it is empty.
func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
