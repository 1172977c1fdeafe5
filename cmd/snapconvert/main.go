package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"snapconvert/internal/converter"
	"snapconvert/internal/dispatcher"
	"snapconvert/internal/handlers"
	"snapconvert/internal/logging"
	"snapconvert/internal/memory"
	"snapconvert/internal/metrics"
	"snapconvert/internal/middleware"
	"snapconvert/internal/registry"
	"snapconvert/internal/startup"
	"snapconvert/internal/sweeper"
	"snapconvert/internal/workdir"
	"snapconvert/internal/workers"
)

const (
	shutdownTimeout   = 30 * time.Second
	collectorInterval = time.Minute
)

func main() {
	startTime := time.Now()
	memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	layout := workdir.NewLayout(config.TmpDir)
	if err := layout.Ensure(); err != nil {
		startup.LogFatal("Failed to prepare work directory: %v", err)
	}

	if err := converter.InitVips(workers.ForCPU(0)); err != nil {
		logging.Warn("libvips unavailable, using the pure Go image fallback: %v", err)
	}

	regStart := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	results, err := registry.Open(ctx, registryOptions(config))
	cancel()
	if err != nil {
		startup.LogFatal("Failed to open result registry: %v", err)
	}
	startup.LogRegistryInit(results.Backend(), time.Since(regStart))

	tools := converter.NewSet(converterConfig(config))
	checkCtx, checkCancel := context.WithTimeout(context.Background(), 15*time.Second)
	startup.LogToolCheck(tools.Check(checkCtx))
	checkCancel()

	metrics.InitializeMetrics(toolNames(tools), routeNames())
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, runtime.Version()).Set(1)

	disp := dispatcher.New(dispatcher.Config{
		Adapters:    dispatcher.AdaptersFor(tools),
		Composer:    tools.Composer,
		Registry:    results,
		Layout:      layout,
		MaxFileSize: config.MaxFileSize,
		Workers:     config.ConversionWorkers,
	})

	sweepDirs := []string{layout.Input, layout.Output}
	sw := sweeper.New(sweeper.Config{
		Dirs:     sweepDirs,
		Interval: config.CleanupInterval,
		MaxAge:   config.CleanupMaxAge,
	})
	startup.LogSweeperInit(sweepDirs, config.CleanupInterval, config.CleanupMaxAge)
	sw.Start()

	collector := metrics.NewCollector(results, layout.Output, collectorInterval)
	collector.Start()

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	h := handlers.New(disp, results, tools, handlers.Config{
		MaxFileSize:         config.MaxFileSize,
		MaxFiles:            config.MaxFiles,
		WorkDir:             config.TmpDir,
		DownloadDeleteDelay: config.DownloadDeleteDelay,
		Admission:           monitor,
	})

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Requests:   config.RateLimitRequests,
		Window:     config.RateLimitWindow,
		PathPrefix: "/api/",
	})
	limiter.Start(time.Minute)

	handler, err := buildHandler(router, config, limiter)
	if err != nil {
		startup.LogFatal("Failed to build middleware chain: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		// Uploads of MAX_FILES large files and long conversions need
		// generous limits; downloads are bounded by the streaming writer.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(config.MetricsPort)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, metricsSrv, shutdownDeps{
		sweeper:   sw,
		collector: collector,
		limiter:   limiter,
		monitor:   monitor,
		runner:    tools.Runner,
		handlers:  h,
		registry:  results,
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}

	// ListenAndServe returns as soon as Shutdown starts; wait for the
	// shutdown sequence to finish before exiting.
	<-shutdownDone
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.HealthCheck).Methods("GET")
	api.HandleFunc("/convert", h.ConvertFiles).Methods("POST")
	api.HandleFunc("/download/{id}", h.DownloadResult).Methods("GET")
	api.HandleFunc("/formats", h.GetFormats).Methods("GET")
	api.HandleFunc("/formats/{ext}", h.GetTargets).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Route not found"}` + "\n"))
	})

	return r
}

// buildHandler wraps the router in the middleware chain. Metrics runs
// inside the router so route templates are available for labels.
func buildHandler(router *mux.Router, config *startup.Config, limiter *middleware.RateLimiter) (http.Handler, error) {
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	compress, err := middleware.Compression(middleware.DefaultCompressionConfig())
	if err != nil {
		return nil, err
	}

	accessLog := middleware.DefaultAccessLogConfig()
	accessLog.LogHealthChecks = config.LogHealthChecks

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{config.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	})

	var handler http.Handler = router
	handler = compress(handler)
	handler = limiter.Middleware(handler)
	handler = c.Handler(handler)
	handler = middleware.AccessLogger(accessLog)(handler)
	return handler, nil
}

func newMetricsServer(port string) *http.Server {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:         ":" + port,
		Handler:      m,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

func converterConfig(config *startup.Config) converter.Config {
	cfg := converter.DefaultConfig()
	cfg.SofficePath = config.SofficePath
	cfg.PdftoppmPath = config.PdftoppmPath
	cfg.FFmpegPath = config.FFmpegPath
	cfg.Timeout = config.ConversionTimeout
	cfg.VideoTimeout = config.VideoTimeout
	cfg.PDFDPI = config.PDFDPI
	return cfg
}

func registryOptions(config *startup.Config) registry.Options {
	return registry.Options{
		Backend: config.RegistryBackend,
		Path:    config.RegistryPath,
		Redis: registry.RedisOptions{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		},
	}
}

func toolNames(set *converter.Set) []string {
	adapters := set.All()
	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.Name()
	}
	return names
}

func routeNames() []string {
	names := make([]string, len(dispatcher.Routes))
	for i, r := range dispatcher.Routes {
		names[i] = string(r)
	}
	return names
}

type shutdownDeps struct {
	sweeper   *sweeper.Sweeper
	collector *metrics.Collector
	limiter   *middleware.RateLimiter
	monitor   *memory.Monitor
	runner    *converter.Runner
	handlers  *handlers.Handlers
	registry  *registry.Registry
}

var shutdownDone = make(chan struct{})

func handleShutdown(srv, metricsSrv *http.Server, deps shutdownDeps) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())
	shutdown(srv, metricsSrv, deps)
	close(shutdownDone)
}

func shutdown(srv, metricsSrv *http.Server, deps shutdownDeps) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Stopping cleanup sweeper")
	deps.sweeper.Stop()
	startup.LogShutdownStepComplete("Cleanup sweeper stopped")

	startup.LogShutdownStep("Stopping metrics collector")
	deps.collector.Stop()
	deps.limiter.Stop()
	deps.monitor.Stop()
	startup.LogShutdownStepComplete("Metrics collector stopped")

	startup.LogShutdownStep("Terminating running conversions")
	if n := deps.runner.Active(); n > 0 {
		logging.Info("  Terminating %d running tool processes", n)
	}
	deps.runner.Cleanup()
	startup.LogShutdownStepComplete("Conversion tools stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Running pending deletions")
	if err := deps.handlers.Drain(ctx); err != nil {
		logging.Warn("Pending deletions did not finish: %v", err)
	} else {
		startup.LogShutdownStepComplete("Pending deletions complete")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	converter.ShutdownVips()

	if err := deps.registry.Close(); err != nil {
		logging.Warn("Failed to close result registry: %v", err)
	} else {
		startup.LogShutdownStepComplete("Result registry closed")
	}

	startup.LogShutdownComplete()
}
