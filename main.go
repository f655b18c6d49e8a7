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

	"material-search/internal/database"
	"material-search/internal/embedding"
	"material-search/internal/embedding/clip"
	"material-search/internal/events"
	"material-search/internal/handlers"
	"material-search/internal/indexer"
	"material-search/internal/logging"
	"material-search/internal/media"
	"material-search/internal/mediatypes"
	"material-search/internal/memory"
	"material-search/internal/metrics"
	"material-search/internal/middleware"
	"material-search/internal/pathfilter"
	"material-search/internal/queue"
	"material-search/internal/search"
	"material-search/internal/startup"
	"material-search/internal/watcher"
	"material-search/internal/workers"
)

const sessionCleanupInterval = time.Hour

func main() {
	startTime := time.Now()

	memResult := memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memResult)

	// Initialize database
	dbStart := time.Now()
	store, err := database.Open(context.Background(), database.Config{
		Driver:    config.DatabaseDriver,
		Dir:       config.DatabaseDir,
		URL:       config.DatabaseURL,
		Dimension: config.EmbeddingDim,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(config.DatabaseDriver, time.Since(dbStart))

	// Load the embedding model
	modelStart := time.Now()
	clipCfg := clip.DefaultConfig(config.ModelDir)
	clipCfg.LibraryPath = config.OnnxRuntimeLib
	clipCfg.Dimension = config.EmbeddingDim
	model, err := clip.New(clipCfg)
	if err != nil {
		startup.LogFatal("Failed to load embedding model: %v", err)
	}
	embedder := embedding.NewSerialized(model)
	startup.LogEmbedderInit(config.ModelDir, embedder.Dimension(), time.Since(modelStart))

	// Media decoders
	ffmpeg := media.NewFFmpeg()
	vipsEnabled := false
	if config.UseVips {
		if err := media.InitVips(); err != nil {
			logging.Warn("libvips unavailable, falling back to Go decoders: %v", err)
		} else {
			vipsEnabled = true
		}
	}
	startup.LogMediaInit(ffmpeg.Available(), vipsEnabled)

	// Indexing pipeline
	filter := pathfilter.New(pathfilter.Config{
		AssetRoots:      config.AssetPaths,
		SkipRoots:       config.SkipPaths,
		IgnoreKeywords:  config.IgnoreStrings,
		ImageExtensions: mediatypes.NewExtensionSet(config.ImageExtensions...),
		VideoExtensions: mediatypes.NewExtensionSet(config.VideoExtensions...),
	})
	loader := media.NewImageLoader(config.ImageMinWidth, config.ImageMinHeight, vipsEnabled)
	sampler := media.NewSampler(config.FrameInterval, config.BatchSize)
	extractor := indexer.NewExtractor(store, embedder, loader, sampler, filter)
	locks := indexer.NewPathLocks()
	status := &indexer.Status{}
	if err := status.Refresh(context.Background(), store); err != nil {
		logging.Warn("Failed to load library counts: %v", err)
	}

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	scanWorkers := scanWorkerCount(config.ScanWorkers)
	startup.LogIndexerInit(config, scanWorkers)

	hub := events.NewHub()
	go hub.Run()

	q := queue.New(config.DebounceDelay)
	incremental := indexer.NewIncremental(extractor, locks, status)
	incremental.SetPublisher(hub)
	pipelineCtx, stopPipeline := context.WithCancel(context.Background())
	incremental.Run(pipelineCtx, q.Batches())

	scanner := indexer.NewScanner(extractor, filter, locks, status, store, indexer.ScannerConfig{
		Workers:  scanWorkers,
		AutoScan: config.AutoScan,
		Interval: config.ScanInterval,
		Throttle: monitor,
	})
	scanner.SetPublisher(hub)
	scanner.Start()

	var fileWatcher *watcher.Watcher
	if config.FileWatch {
		fileWatcher = watcher.New(filter, q, config.WatchEventBuffer)
		startup.LogWatcherStarted(fileWatcher.Start())
	}

	// Metrics
	metrics.InitializeMetrics()
	metrics.AppInfo.WithLabelValues(startup.Version, startup.Commit, runtime.Version()).Set(1)
	collector := metrics.NewCollector(store, time.Minute)
	collector.Start()

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = startMetricsServer(config.MetricsPort)
	}

	// HTTP
	previews := media.NewPreviewer(config.PreviewDir())
	clips, err := media.NewClipCache(config.ClipDir(), ffmpeg, int64(config.ClipPadding))
	if err != nil {
		logging.Warn("Video clip downloads disabled: %v", err)
		clips = nil
	}

	deps := handlers.Dependencies{
		Store:    store,
		Search:   search.NewService(store, embedder, loader),
		Scanner:  scanner,
		Status:   status,
		Queue:    q,
		Events:   hub,
		Previews: previews,
		Clips:    clips,
	}
	if fileWatcher != nil {
		deps.Watcher = fileWatcher
	}
	h := handlers.New(config, deps)

	go cleanSessions(h.Sessions())

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	authedRouter := h.AuthMiddleware(router)

	compressionConfig := middleware.DefaultCompressionConfig()
	compressed := middleware.Compression(compressionConfig)(authedRouter)

	measured := middleware.Metrics(middleware.DefaultMetricsConfig())(compressed)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	logged := middleware.Logger(loggingConfig)(measured)

	handler := middleware.RequestID(logged)

	// Create server
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	go handleShutdown(srv, metricsSrv, shutdownDeps{
		watcher:      fileWatcher,
		queue:        q,
		incremental:  incremental,
		stopPipeline: stopPipeline,
		scanner:      scanner,
		hub:          hub,
		collector:    collector,
		store:        store,
		embedder:     embedder,
		monitor:      monitor,
		vips:         vipsEnabled,
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
	<-shutdownDone
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes (no auth required)
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/api/version", h.GetVersion).Methods("GET")

	// Auth routes
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/logout", h.Logout).Methods("GET", "POST")
	r.HandleFunc("/api/auth/check", h.CheckAuth).Methods("GET")

	// Protected API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/scan", h.Scan).Methods("GET", "POST")
	api.HandleFunc("/status", h.Status).Methods("GET")
	api.HandleFunc("/match", h.Match).Methods("POST")
	api.HandleFunc("/upload", h.Upload).Methods("POST")
	api.HandleFunc("/get_image/{id:[0-9]+}", h.GetImage).Methods("GET")
	api.HandleFunc("/get_video/{path}", h.GetVideo).Methods("GET", "HEAD")
	api.HandleFunc("/download_video_clip/{path}/{start:[0-9]+}/{end:[0-9]+}", h.DownloadVideoClip).Methods("GET")
	api.HandleFunc("/events", h.Events).Methods("GET")

	// Static files
	r.PathPrefix("/").Handler(http.FileServer(http.Dir("./static")))

	return r
}

// scanWorkerCount uses the configured count, or one worker per CPU.
func scanWorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	return workers.ForCPU(0)
}

// metricsRouter serves the Prometheus registry on its own port so scrapes
// bypass auth and the access log.
func metricsRouter() http.Handler {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	return m
}

func startMetricsServer(port string) *http.Server {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           metricsRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Metrics server error: %v", err)
		}
	}()
	return srv
}

// cleanSessions drops expired sessions and their pending uploads.
func cleanSessions(sessions *handlers.SessionStore) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		for _, path := range sessions.Cleanup() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				logging.Warn("Failed to remove expired upload %s: %v", path, err)
			}
		}
	}
}

type shutdownDeps struct {
	watcher      *watcher.Watcher
	queue        *queue.Queue
	incremental  *indexer.Incremental
	stopPipeline context.CancelFunc
	scanner      *indexer.Scanner
	hub          *events.Hub
	collector    *metrics.Collector
	store        database.Store
	embedder     embedding.Embedder
	monitor      *memory.Monitor
	vips         bool
}

var shutdownDone = make(chan struct{})

// handleShutdown stops intake first, lets queued work finish, then releases
// the store and the model.
func handleShutdown(srv, metricsSrv *http.Server, d shutdownDeps) {
	defer close(shutdownDone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if d.watcher != nil {
		startup.LogShutdownStep("Stopping file watcher")
		d.watcher.Stop()
		startup.LogShutdownStepComplete("File watcher stopped")
	}

	startup.LogShutdownStep("Draining event queue")
	d.queue.DrainNow()
	d.queue.Close()
	waitOrCancel(ctx, d.incremental.Wait, d.stopPipeline)
	d.stopPipeline()
	startup.LogShutdownStepComplete("Event queue drained")

	startup.LogShutdownStep("Stopping scanner")
	d.scanner.Stop()
	startup.LogShutdownStepComplete("Scanner stopped")

	startup.LogShutdownStep("Closing event stream")
	d.hub.Shutdown()
	startup.LogShutdownStepComplete("Event stream closed")

	d.collector.Stop()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	startup.LogShutdownStep("Closing database")
	if err := d.store.Close(); err != nil {
		logging.Warn("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	if err := d.embedder.Close(); err != nil {
		logging.Warn("Embedding model close error: %v", err)
	}
	if d.vips {
		media.ShutdownVips()
	}
	d.monitor.Stop()

	startup.LogShutdownComplete()
}

// waitOrCancel runs wait and cancels the pipeline if ctx expires first.
func waitOrCancel(ctx context.Context, wait func(), cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn("Queued work did not finish in time, cancelling")
		cancel()
		<-done
	}
}
