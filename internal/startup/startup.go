package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"material-search/internal/database"
	"material-search/internal/logging"
	"material-search/internal/memory"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// LoadConfig prints the banner, loads the configuration and prepares the
// directories the service writes to.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	logConfig(cfg)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	for _, root := range cfg.AssetPaths {
		if err := checkAssetRoot(root); err != nil {
			logging.Warn("  Asset path %s: %v", root, err)
		}
	}

	if cfg.DatabaseDriver == database.DriverSQLite {
		if err := ensureDirectory(cfg.DatabaseDir, "database"); err != nil {
			return nil, fmt.Errorf("database directory error: %w", err)
		}
		logging.Debug("  Testing database directory write access...")
		if err := testWriteAccess(cfg.DatabaseDir); err != nil {
			return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
		}
		logging.Info("  [OK] Database directory is writable")
	}

	uploads := setupOptionalDir(cfg.UploadDir(), "upload")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:    %s (required)", strings.ToUpper(cfg.DatabaseDriver))
	logging.Info("    Uploads:     %s", enabledString(uploads))
	logging.Info("    File watch:  %s", enabledString(cfg.FileWatch))
	logging.Info("    Auto scan:   %s", enabledString(cfg.AutoScan))
	logging.Info("    Login:       %s", enabledString(cfg.AuthEnabled()))
	logging.Info("    Metrics:     %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

func logConfig(cfg *Config) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if cfg.ConfigFile != "" {
		logging.Info("  CONFIG_FILE:             %s", cfg.ConfigFile)
	}
	logging.Info("  ASSETS_PATH:             %s", strings.Join(cfg.AssetPaths, ", "))
	logging.Info("  SKIP_PATH:               %s", strings.Join(cfg.SkipPaths, ", "))
	logging.Info("  IGNORE_STRINGS:          %s", strings.Join(cfg.IgnoreStrings, ", "))
	logging.Info("  IMAGE_EXTENSIONS:        %s", strings.Join(cfg.ImageExtensions, ", "))
	logging.Info("  VIDEO_EXTENSIONS:        %s", strings.Join(cfg.VideoExtensions, ", "))
	logging.Info("  FRAME_INTERVAL:          %ds", cfg.FrameInterval)
	logging.Info("  SCAN_PROCESS_BATCH_SIZE: %d", cfg.BatchSize)
	logging.Info("  IMAGE_MIN_SIZE:          %dx%d", cfg.ImageMinWidth, cfg.ImageMinHeight)
	logging.Info("  DEBOUNCE_DELAY:          %v", cfg.DebounceDelay)
	logging.Info("  ENABLE_FILE_WATCH:       %v", cfg.FileWatch)
	logging.Info("  AUTO_SCAN:               %v (every %v)", cfg.AutoScan, cfg.ScanInterval)
	logging.Info("  DATABASE_DRIVER:         %s", cfg.DatabaseDriver)
	if cfg.DatabaseDriver == database.DriverSQLite {
		logging.Info("  DATABASE_DIR:            %s", cfg.DatabaseDir)
	} else {
		logging.Info("  DATABASE_URL:            %s", redactURL(cfg.DatabaseURL))
	}
	logging.Info("  MODEL_DIR:               %s", cfg.ModelDir)
	logging.Info("  EMBEDDING_DIM:           %d", cfg.EmbeddingDim)
	logging.Info("  USE_VIPS:                %v", cfg.UseVips)
	logging.Info("  TEMP_PATH:               %s", cfg.TempPath)
	logging.Info("  VIDEO_EXTENSION_LENGTH:  %ds", cfg.ClipPadding)
	logging.Info("  PORT:                    %s", cfg.Port)
	logging.Info("  METRICS_PORT:            %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:         %v", cfg.MetricsEnabled)
	logging.Info("  LOG_STATIC_FILES:        %v", cfg.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS:       %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:               %s", logging.GetLevel())
	if cfg.ScanWorkers > 0 {
		logging.Info("  SCAN_WORKERS:            %d", cfg.ScanWorkers)
	}
}

// redactURL hides the password of a connection string.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return raw
	}
	if user, _, hasPass := strings.Cut(creds, ":"); hasPass {
		creds = user + ":****"
	}
	return scheme + "://" + creds + "@" + host
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}
	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogMemoryConfig logs how GOMEMLIMIT was configured.
func LogMemoryConfig(res memory.ConfigResult) {
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY")
	logging.Info("------------------------------------------------------------")
	switch res.Source {
	case memory.SourceGoMemLimit:
		logging.Info("  GOMEMLIMIT:      %s (from environment)", memory.FormatBytes(res.GoMemLimit))
	case memory.SourceMemoryLimit:
		logging.Info("  Container limit: %s", memory.FormatBytes(res.ContainerLimit))
		logging.Info("  GOMEMLIMIT:      %s (%.0f%%)", memory.FormatBytes(res.GoMemLimit), res.Ratio*100)
	default:
		logging.Info("  GOMEMLIMIT:      not configured (set MEMORY_LIMIT to enable)")
	}
	logging.Info("")
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(driver string, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] %s asset store opened in %v", driver, duration)
}

// LogEmbedderInit logs the embedding model load.
func LogEmbedderInit(modelDir string, dimension int, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("EMBEDDING MODEL")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Model directory: %s", modelDir)
	logging.Info("  Dimension:       %d", dimension)
	logging.Info("  [OK] Model loaded in %v", duration)
}

// LogMediaInit logs decoder availability.
func LogMediaInit(ffmpeg, vips bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEDIA DECODERS")
	logging.Info("------------------------------------------------------------")
	if ffmpeg {
		logging.Info("  [OK] FFmpeg is available")
	} else {
		logging.Warn("  FFmpeg not found in PATH, videos will not be indexed")
	}
	logging.Info("  libvips:         %s", enabledString(vips))
}

// LogIndexerInit logs the indexing pipeline configuration.
func LogIndexerInit(cfg *Config, workers int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("INDEXER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Scan workers:    %d", workers)
	logging.Info("  Debounce delay:  %v", cfg.DebounceDelay)
	if cfg.AutoScan {
		logging.Info("  Auto scan:       every %v", cfg.ScanInterval)
	} else {
		logging.Info("  Auto scan:       DISABLED")
	}
}

// LogWatcherStarted logs the outcome of starting the file watcher.
func LogWatcherStarted(err error) {
	if err != nil {
		logging.Warn("  File watcher not started: %v", err)
		return
	}
	logging.Info("  [OK] File watcher started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level.
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	logging.Info("  HTTP logging enabled")
	if logStaticFiles {
		logging.Info("    Static file logging: ON")
	} else {
		logging.Info("    Static file logging: OFF (set LOG_STATIC_FILES=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	logging.Info("    Events:        ws://0.0.0.0:%s/api/events", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...any) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
                 __            _       __
   ____ ___  ___/ /____  ____(_)___ _/ /  ________  ____ ___________/ /_
  / __ '__ \/ __ / __/ _ \/ __/ / __ '/ /  / ___/ _ \/ __ '/ ___/ ___/ __ \
 / / / / / / /_/ / /_/  __/ / / / /_/ / /  (__  )  __/ /_/ / /  / /__/ / / /
/_/ /_/ /_/\__,_/\__/\___/_/ /_/\__,_/_/  /____/\___/\__,_/_/   \___/_/ /_/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

// checkAssetRoot verifies an asset root exists. Roots are mounted, never
// created.
func checkAssetRoot(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}

	if logging.IsDebugEnabled() {
		if entries, err := os.ReadDir(path); err == nil {
			files, dirs := 0, 0
			for _, e := range entries {
				if e.IsDir() {
					dirs++
				} else {
					files++
				}
			}
			logging.Debug("  %s: %d files, %d directories (top level)", path, files, dirs)
		}
	}
	return nil
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
