// workload-launcher consumes launch messages and runs each one as a pod.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"launcher/internal/api"
	"launcher/internal/config"
	"launcher/internal/consumer"
	"launcher/internal/controlapi"
	"launcher/internal/featureflag"
	"launcher/internal/health"
	"launcher/internal/input"
	"launcher/internal/observability"
	"launcher/internal/pipeline"
	"launcher/internal/pods"
	"launcher/internal/queue"
	"launcher/internal/retry"
	"launcher/internal/scheduling"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	podCfg := pods.LoadConfigFromEnv()
	apiCfg := controlapi.LoadConfigFromEnv(svcCfg.ControlAPIURL, svcCfg.ControlAPIToken)
	consumerCfg := consumer.LoadConfigFromEnv(svcCfg.Workers)
	storeCfg := input.LoadObjectStoreConfigFromEnv()

	slog.Info("Starting workload launcher", "dataplane_id", svcCfg.DataplaneID)

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Kubernetes
	clientset, err := pods.NewClientset(svcCfg.Kubeconfig)
	if err != nil {
		return err
	}
	podClient := pods.NewClient(clientset, podCfg, metrics)
	slog.Info("Kubernetes client configured", "namespace", podCfg.Namespace)

	// Control API
	transport, err := controlapi.NewTransport(apiCfg)
	if err != nil {
		return err
	}
	statusClient := controlapi.NewStatusClient(transport)

	// Feature flags
	var flags featureflag.Client = featureflag.NewStatic(nil)
	if svcCfg.FlagFile != "" {
		fileFlags, err := featureflag.NewFileClient(svcCfg.FlagFile)
		if err != nil {
			return err
		}
		flags = fileFlags
		go reloadFlags(ctx, fileFlags, svcCfg.FlagReloadInterval)
	}

	// Job input
	var fetcher input.Fetcher
	if storeCfg.Enabled() {
		store, err := input.NewObjectStoreFetcher(storeCfg)
		if err != nil {
			return err
		}
		fetcher = store
		slog.Info("Payload object store configured", "endpoint", storeCfg.Endpoint)
	}
	builder := input.NewBuilder(fetcher, input.NewFileSecretResolver(svcCfg.SecretsDir))

	launchPipeline := pipeline.NewLaunchPipeline(pipeline.Deps{
		Flags:       flags,
		Claims:      controlapi.NewClaimClient(transport).WithMetrics(metrics),
		Status:      statusClient,
		Inputs:      builder,
		Pods:        podClient,
		DataplaneID: svcCfg.DataplaneID,
		Events:      pipeline.NewEventLogger(metrics),
		Reporter:    statusClient,
	})

	// Queue
	launchQueue := queue.NewRedisQueue(queue.Options{
		Addr:         svcCfg.RedisAddr,
		Password:     svcCfg.RedisPassword,
		Name:         svcCfg.QueueName,
		ConsumerID:   svcCfg.DataplaneID,
		HeartbeatTTL: svcCfg.QueueHeartbeatTTL,
	})
	defer launchQueue.Close()

	// Messages left in flight by a previous run of this dataplane, or by any
	// launcher whose heartbeat has lapsed, go back to pending
	if n, err := launchQueue.Recover(ctx); err != nil {
		slog.Warn("Failed to recover in-flight messages", "error", err)
	} else if n > 0 {
		slog.Info("Recovered in-flight messages", "count", n)
	}
	go launchQueue.KeepAlive(ctx)

	// Retry state
	deps := []health.Dependency{
		{Name: "kubernetes", Checker: podClient},
		{Name: "queue", Checker: launchQueue},
		{Name: "control-api", Checker: transport, Optional: true},
	}
	var stateFetcher retry.StateFetcher = controlapi.NewRetryStateClient(transport)
	if svcCfg.RetryStateDSN != "" {
		store, err := retry.NewPostgresStore(ctx, svcCfg.RetryStateDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		stateFetcher = store
		deps = append(deps, health.Dependency{Name: "retry-state", Checker: store, Optional: true})
		slog.Info("Using Postgres retry state store")
	}
	retryStates := retry.NewStateClient(stateFetcher, flags, retry.LoadDefaultsFromEnv())

	healthChecker := health.NewChecker(deps...)

	// Start consuming
	launchConsumer := consumer.New(launchQueue, launchPipeline, consumerCfg, metrics)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Queue:         launchQueue,
		RetryStates:   retryStates,
		Jitterer:      scheduling.NewJitterer(scheduling.LoadJitterConfigFromEnv()),
		Consumer:      launchConsumer,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 2)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case runErr = <-serverErr:
		slog.Error("Server failed to start", "error", runErr)
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	if runErr == nil && svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Stop accepting launch requests, finish in-flight HTTP requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Stop reserving and let running pipelines finish.
	// Anything still in flight afterwards is recovered on the next start,
	// or by another launcher once this one's heartbeat lapses.
	slog.Info("Draining consumer")
	drainCtx, drainCancel := context.WithTimeout(context.Background(), consumerCfg.MessageTimeout)
	defer drainCancel()
	if err := launchConsumer.Close(drainCtx); err != nil {
		slog.Warn("Consumer shutdown error", "error", err)
	}
	stop()

	stats := launchConsumer.Stats()
	slog.Info("Consumer stats",
		"launched", stats.Launched,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"requeued", stats.Requeued,
		"dead_lettered", stats.DeadLettered,
	)

	// Launched pods are owned by the cluster and keep running without the launcher.
	slog.Info("Shutdown complete")
	return runErr
}

// reloadFlags re-reads the flag file every interval until ctx is done.
func reloadFlags(ctx context.Context, flags *featureflag.FileClient, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := flags.Reload(); err != nil {
				slog.Warn("Failed to reload feature flags", "error", err)
			}
		}
	}
}
