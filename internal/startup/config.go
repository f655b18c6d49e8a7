package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"material-search/internal/database"
	"material-search/internal/logging"
	"material-search/internal/mediatypes"
)

// Defaults for every option. Lists are comma-separated.
const (
	DefaultAssetsPath      = "/media"
	DefaultIgnoreStrings   = "thumb,avatar,__macosx,icons,cache"
	DefaultFrameInterval   = 2
	DefaultBatchSize       = 32
	DefaultImageMinSize    = 64
	DefaultDebounceDelay   = 2 * time.Second
	DefaultEventBuffer     = 1024
	DefaultScanInterval    = 6 * time.Hour
	DefaultDatabaseDir     = "/database"
	DefaultModelDir        = "/models"
	DefaultEmbeddingDim    = 512
	DefaultPort            = "8085"
	DefaultMetricsPort     = "9090"
	DefaultTempPath        = "/tmp/material-search"
	DefaultUsername        = "admin"
	DefaultClipPadding     = 1
	configFileEnv          = "CONFIG_FILE"
	uploadDirName          = "upload"
	previewDirName         = "preview"
	clipDirName            = "video_clips"
	minimumPasswordHashLen = 59
)

// Config holds all application configuration.
type Config struct {
	// Paths and filtering
	AssetPaths      []string
	SkipPaths       []string
	IgnoreStrings   []string
	ImageExtensions []string
	VideoExtensions []string

	// Extraction
	FrameInterval  int
	BatchSize      int
	ImageMinWidth  int
	ImageMinHeight int
	UseVips        bool
	ScanWorkers    int

	// Watching and scanning
	DebounceDelay    time.Duration
	FileWatch        bool
	WatchEventBuffer int
	AutoScan         bool
	ScanInterval     time.Duration

	// Storage
	DatabaseDriver string
	DatabaseDir    string
	DatabaseURL    string

	// Model
	ModelDir       string
	OnnxRuntimeLib string
	EmbeddingDim   int

	// Server
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	LogStaticFiles  bool
	LogHealthChecks bool

	// Uploads, downloads and login
	TempPath     string
	ClipPadding  int
	PasswordHash string
	Username     string

	// ConfigFile is the YAML file the options were overlaid from, if any.
	ConfigFile string
}

// UploadDir is where uploaded query images are stored.
func (c *Config) UploadDir() string {
	return filepath.Join(c.TempPath, uploadDirName)
}

// PreviewDir caches JPEG previews of indexed images.
func (c *Config) PreviewDir() string {
	return filepath.Join(c.TempPath, previewDirName)
}

// ClipDir caches cut video segments.
func (c *Config) ClipDir() string {
	return filepath.Join(c.TempPath, clipDirName)
}

// AuthEnabled reports whether login is required.
func (c *Config) AuthEnabled() bool {
	return c.PasswordHash != ""
}

// settings resolves options from the environment first and the config
// file second.
type settings struct {
	file map[string]string
}

// Load reads the configuration without printing the startup banner. Invalid
// values log a warning and fall back to their defaults.
func Load() (*Config, error) {
	s := settings{}
	configFile := os.Getenv(configFileEnv)
	if configFile != "" {
		values, err := readConfigFile(configFile)
		if err != nil {
			return nil, err
		}
		s.file = values
	}

	cfg := &Config{
		AssetPaths:      s.getEnvList("ASSETS_PATH", DefaultAssetsPath),
		SkipPaths:       s.getEnvList("SKIP_PATH", ""),
		IgnoreStrings:   s.getEnvList("IGNORE_STRINGS", DefaultIgnoreStrings),
		ImageExtensions: s.getEnvList("IMAGE_EXTENSIONS", strings.Join(mediatypes.DefaultImageExtensions, ",")),
		VideoExtensions: s.getEnvList("VIDEO_EXTENSIONS", strings.Join(mediatypes.DefaultVideoExtensions, ",")),

		FrameInterval:  s.getEnvInt("FRAME_INTERVAL", DefaultFrameInterval, 1),
		BatchSize:      s.getEnvInt("SCAN_PROCESS_BATCH_SIZE", DefaultBatchSize, 1),
		ImageMinWidth:  s.getEnvInt("IMAGE_MIN_WIDTH", DefaultImageMinSize, 0),
		ImageMinHeight: s.getEnvInt("IMAGE_MIN_HEIGHT", DefaultImageMinSize, 0),
		UseVips:        s.getEnvBool("USE_VIPS", false),
		ScanWorkers:    s.getEnvInt("SCAN_WORKERS", 0, 0),

		DebounceDelay:    s.getEnvDuration("DEBOUNCE_DELAY", DefaultDebounceDelay),
		FileWatch:        s.getEnvBool("ENABLE_FILE_WATCH", true),
		WatchEventBuffer: s.getEnvInt("WATCH_EVENT_BUFFER", DefaultEventBuffer, 1),
		AutoScan:         s.getEnvBool("AUTO_SCAN", false),
		ScanInterval:     s.getEnvDuration("SCAN_INTERVAL", DefaultScanInterval),

		DatabaseDriver: strings.ToLower(s.getEnv("DATABASE_DRIVER", database.DriverSQLite)),
		DatabaseDir:    s.getEnv("DATABASE_DIR", DefaultDatabaseDir),
		DatabaseURL:    s.getEnv("DATABASE_URL", ""),

		ModelDir:       s.getEnv("MODEL_DIR", DefaultModelDir),
		OnnxRuntimeLib: s.getEnv("ONNXRUNTIME_LIB", ""),
		EmbeddingDim:   s.getEnvInt("EMBEDDING_DIM", DefaultEmbeddingDim, 1),

		Port:            s.getEnv("PORT", DefaultPort),
		MetricsPort:     s.getEnv("METRICS_PORT", DefaultMetricsPort),
		MetricsEnabled:  s.getEnvBool("METRICS_ENABLED", true),
		LogStaticFiles:  s.getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks: s.getEnvBool("LOG_HEALTH_CHECKS", true),

		TempPath:     s.getEnv("TEMP_PATH", DefaultTempPath),
		ClipPadding:  s.getEnvInt("VIDEO_EXTENSION_LENGTH", DefaultClipPadding, 0),
		PasswordHash: s.getEnv("PASSWORD_HASH", ""),
		Username:     s.getEnv("USERNAME", DefaultUsername),

		ConfigFile: configFile,
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths() error {
	var err error
	for _, list := range []*[]string{&c.AssetPaths, &c.SkipPaths} {
		for i, p := range *list {
			if (*list)[i], err = filepath.Abs(p); err != nil {
				return fmt.Errorf("failed to resolve path %q: %w", p, err)
			}
		}
	}
	for _, p := range []*string{&c.DatabaseDir, &c.TempPath, &c.ModelDir} {
		if *p, err = filepath.Abs(*p); err != nil {
			return fmt.Errorf("failed to resolve path %q: %w", *p, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (want %s or %s)", c.DatabaseDriver, database.DriverSQLite, database.DriverPostgres)
	}
	if c.DatabaseDriver == database.DriverPostgres && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required when DATABASE_DRIVER is postgres")
	}
	if c.PasswordHash != "" {
		if len(c.PasswordHash) < minimumPasswordHashLen {
			return errors.New("PASSWORD_HASH is not a bcrypt hash")
		}
		if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
			return fmt.Errorf("PASSWORD_HASH is not a bcrypt hash: %w", err)
		}
	}
	if len(c.AssetPaths) == 0 {
		logging.Warn("ASSETS_PATH is empty, nothing will be indexed")
	}
	return nil
}

// readConfigFile loads a flat YAML mapping of option names to values.
// Keys are matched case-insensitively and sequences are joined with commas.
func readConfigFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for key, v := range raw {
		values[strings.ToUpper(key)] = yamlString(v)
	}
	return values, nil
}

func yamlString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, yamlString(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}

func (s settings) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

func (s settings) getEnv(key, defaultValue string) string {
	if value := s.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func (s settings) getEnvBool(key string, defaultValue bool) bool {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvInt rejects values below minimum.
func (s settings) getEnvInt(key string, defaultValue, minimum int) int {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || parsed < minimum {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration accepts Go durations ("2s") and plain numbers of seconds.
func (s settings) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(s.lookup(key))
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvList splits a comma-separated value, dropping empty entries.
func (s settings) getEnvList(key, defaultValue string) []string {
	value := s.getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
