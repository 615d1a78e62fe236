package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TAAK61/qr-code-reader-sub001/internal/config"
	"github.com/TAAK61/qr-code-reader-sub001/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the preprocessing API",
	Long: `Start an HTTP server that preprocesses uploaded images.

The server provides the following endpoints:
  POST /v1/preprocess - Preprocess an image (raw body or multipart "image" field)
  GET  /health        - Health check endpoint
  GET  /metrics       - Prometheus metrics

Stage options are taken from query parameters, e.g.
  /v1/preprocess?max_dimension=1024&contrast_factor=2&format=json

Examples:
  qrprep serve
  qrprep serve --port 8080
  qrprep serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		serverConfig, shutdownTimeout, err := configToServerConfig(cfg, cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		serverConfig.Registry = reg
		serverConfig.Logger = slog.Default()

		prepServer, err := server.NewServer(serverConfig)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		mux := http.NewServeMux()
		prepServer.SetupRoutes(mux)

		timeout := time.Duration(serverConfig.TimeoutSec) * time.Second
		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       timeout,
			WriteTimeout:      timeout,
		}

		go func() {
			slog.Info("Starting preprocessing server", "host", serverConfig.Host, "port", serverConfig.Port)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
			return err
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

// configToServerConfig maps centralized configuration to server.Config,
// applying explicitly set flags.
func configToServerConfig(cfg *config.Config, cmd *cobra.Command) (server.Config, time.Duration, error) {
	f := cmd.Flags()
	s := cfg.Server

	if f.Changed("host") {
		s.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		s.Port, _ = f.GetInt("port")
	}
	if f.Changed("cors-origin") {
		s.CORSOrigin, _ = f.GetString("cors-origin")
	}
	if f.Changed("max-upload-size") {
		s.MaxUploadMB, _ = f.GetInt("max-upload-size")
	}
	if f.Changed("timeout") {
		s.TimeoutSec, _ = f.GetInt("timeout")
	}
	if f.Changed("shutdown-timeout") {
		s.ShutdownTimeout, _ = f.GetInt("shutdown-timeout")
	}
	if f.Changed("rate-limit-enabled") {
		s.RateLimitEnabled, _ = f.GetBool("rate-limit-enabled")
	}
	if f.Changed("requests-per-minute") {
		s.RequestsPerMinute, _ = f.GetInt("requests-per-minute")
	}
	if f.Changed("requests-per-hour") {
		s.RequestsPerHour, _ = f.GetInt("requests-per-hour")
	}
	if f.Changed("max-requests-per-day") {
		s.MaxRequestsPerDay, _ = f.GetInt("max-requests-per-day")
	}
	if f.Changed("max-data-per-day") {
		s.MaxDataPerDay, _ = f.GetInt64("max-data-per-day")
	}

	if s.Port < 1 || s.Port > 65535 {
		return server.Config{}, 0, fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", s.Port)
	}

	return server.Config{
		Host:        s.Host,
		Port:        s.Port,
		CORSOrigin:  s.CORSOrigin,
		MaxUploadMB: int64(s.MaxUploadMB),
		TimeoutSec:  s.TimeoutSec,
		Options:     optionsFromFlags(cfg.ToPipelineOptions(), cmd),
		RateLimit: server.RateLimitConfig{
			Enabled:           s.RateLimitEnabled,
			RequestsPerMinute: s.RequestsPerMinute,
			RequestsPerHour:   s.RequestsPerHour,
			MaxRequestsPerDay: s.MaxRequestsPerDay,
			MaxDataPerDay:     s.MaxDataPerDay,
		},
	}, time.Duration(s.ShutdownTimeout) * time.Second, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	// Default stage options for requests that do not override them
	addOptionFlags(serveCmd)
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 60, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 1000, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 5000, "maximum requests per day per client")
	serveCmd.Flags().Int64("max-data-per-day", 100*1024*1024, "maximum data processed per day per client (bytes)")
}
