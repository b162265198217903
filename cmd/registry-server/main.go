package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/tendant/media-registry/pkg/mediaregistry/api"
	"github.com/tendant/media-registry/pkg/mediaregistry/config"
	"github.com/tendant/media-registry/pkg/mediaregistry/metrics"
)

func main() {
	helpEnv := flag.Bool("help-env", false, "print the environment variables and exit")
	flag.Parse()
	if *helpEnv {
		fmt.Println(config.EnvHelp())
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration from environment
	serverConfig, err := config.Load(config.WithEnv())
	if err != nil {
		logger.Error("Failed to load server configuration", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	components, err := serverConfig.Build(context.Background(), logger, reg)
	if err != nil {
		logger.Error("Failed to build registry", "error", err)
		os.Exit(1)
	}
	defer components.Close()

	handlerOptions := []api.HandlerOption{
		api.WithIdentity(components.Identity),
		api.WithLogger(logger),
	}
	if components.Store != nil {
		handlerOptions = append(handlerOptions, api.WithContentStore(components.Store))
	}

	router := api.NewRouter(api.RouterConfig{
		Handler:        api.NewHandler(components.Registry, handlerOptions...),
		Metrics:        components.Metrics.Middleware,
		MetricsHandler: metrics.Handler(reg),
		RequestTimeout: serverConfig.RequestTimeout,
		EnableCORS:     serverConfig.Environment == "development",
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", serverConfig.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Media registry starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.Storage.Type,
			"auth", serverConfig.AuthMode)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exiting")
}
