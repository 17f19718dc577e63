package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inbleach/internal/gmail"
	"github.com/teemow/inbleach/internal/instrumentation"
	"github.com/teemow/inbleach/internal/logging"
	"github.com/teemow/inbleach/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the inbleach HTTP API.

The browser logs in through GET /auth/google; Google redirects back to
<base-url>/auth/callback/google and the credentials are handed to the browser
as http-only cookies. Prometheus metrics are served on a separate port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8000", "API listen address")
	flags.String("base-url", "", "Public base URL of the API, used for the OAuth redirect URL")
	flags.String("frontend-url", "", "Where the browser is sent after login")
	flags.Bool("secure-cookies", false, "Mark cookies Secure (serve behind HTTPS)")
	flags.Bool("metrics-enabled", true, "Serve Prometheus metrics on a dedicated port")
	flags.String("metrics-addr", server.DefaultMetricsAddr, "Metrics server address")
	mustBind(flags, map[string]string{
		"server.addr":           "addr",
		"server.base_url":       "base-url",
		"server.frontend_url":   "frontend-url",
		"server.secure_cookies": "secure-cookies",
		"metrics.enabled":       "metrics-enabled",
		"metrics.addr":          "metrics-addr",
	})

	return cmd
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logging.NewSlogAdapter(logger)

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	if cfg.Metrics.Enabled && provider.Handler() != nil {
		metricsServer, err := startMetricsServer(provider, log)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("error during metrics server shutdown", logging.Err(err))
			}
		}()
	}

	auth, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}

	api, err := server.NewAPI(server.Config{
		FrontendURL:   cfg.Server.FrontendURL,
		SecureCookies: cfg.Server.SecureCookies,
		DefaultDays:   cfg.Messages.DefaultDays,
		DefaultFormat: cfg.Messages.Render,
		Authenticator: auth,
		Clients: server.GmailClientFactory(gmail.ClientConfig{
			Resolver: newResolver(cfg, log, metrics),
			Logger:   log,
			Metrics:  metrics,
		}),
		Logger:  log,
		Metrics: metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create API: %w", err)
	}

	httpServer := server.NewHTTPServer(cfg.Server.Addr, api)
	if !cfg.Server.SecureCookies {
		log.Warn("cookies are not marked Secure; enable server.secure_cookies behind HTTPS")
	}
	log.Info("inbleach API ready",
		"addr", cfg.Server.Addr,
		"redirect_url", cfg.OAuthRedirectURL(),
		"frontend_url", cfg.Server.FrontendURL)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	log.Info("HTTP server gracefully stopped")
	return nil
}

// startMetricsServer starts the metrics listener and waits briefly for an
// early bind failure
func startMetricsServer(provider *instrumentation.Provider, log logging.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Metrics.Addr,
		InstrumentationProvider: provider,
		Logger:                  log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
			metricsErr <- err
		}
	}()

	select {
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
		return metricsServer, nil
	}
}
