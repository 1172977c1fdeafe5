package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"snapconvert/internal/logging"
	"snapconvert/internal/metrics"

	"github.com/gorilla/mux"
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

// Config holds all application configuration
type Config struct {
	Port           string
	MetricsPort    string
	MetricsEnabled bool
	FrontendURL    string

	// TmpDir is the absolute working directory root.
	TmpDir string

	MaxFileSizeMB int
	MaxFileSize   int64
	MaxFiles      int

	ConversionTimeout time.Duration
	VideoTimeout      time.Duration
	PDFDPI            int
	SofficePath       string
	PdftoppmPath      string
	FFmpegPath        string
	// ConversionWorkers bounds per-batch parallelism; 0 sizes it automatically.
	ConversionWorkers int

	CleanupMaxAge       time.Duration
	CleanupInterval     time.Duration
	DownloadDeleteDelay time.Duration

	RegistryBackend string
	RegistryPath    string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	RateLimitRequests int
	RateLimitWindow   time.Duration

	LogHealthChecks bool
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config, err := readConfig()
	if err != nil {
		return nil, err
	}
	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Work directory (absolute): %s", config.TmpDir)

	if err := ensureDirectory(config.TmpDir, "work"); err != nil {
		return nil, fmt.Errorf("work directory error: %w", err)
	}

	logging.Debug("  Testing work directory write access...")
	if err := testWriteAccess(config.TmpDir); err != nil {
		return nil, fmt.Errorf("work directory is not writable: %w", err)
	}
	logging.Info("  [OK] Work directory is writable")

	return config, nil
}

// readConfig resolves every setting without touching the filesystem.
func readConfig() (*Config, error) {
	tmpDir, err := filepath.Abs(getEnv("TMP_DIR", "./tmp"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work directory path: %w", err)
	}

	maxFileSizeMB := getEnvInt("MAX_FILE_SIZE_MB", 50)
	if maxFileSizeMB <= 0 {
		logging.Warn("  Invalid MAX_FILE_SIZE_MB %d, using default: 50", maxFileSizeMB)
		maxFileSizeMB = 50
	}
	maxFiles := getEnvInt("MAX_FILES", 10)
	if maxFiles <= 0 {
		logging.Warn("  Invalid MAX_FILES %d, using default: 10", maxFiles)
		maxFiles = 10
	}

	conversionTimeout := getEnvDuration("CONVERSION_TIMEOUT", 30*time.Second)
	maxAgeMinutes := getEnvInt("CLEANUP_MAX_AGE_MINUTES", 30)
	if maxAgeMinutes <= 0 {
		logging.Warn("  Invalid CLEANUP_MAX_AGE_MINUTES %d, using default: 30", maxAgeMinutes)
		maxAgeMinutes = 30
	}

	backend := strings.ToLower(getEnv("REGISTRY_BACKEND", "memory"))
	switch backend {
	case "memory", "sqlite", "redis":
	default:
		return nil, fmt.Errorf("unknown REGISTRY_BACKEND %q (want memory, sqlite or redis)", backend)
	}

	return &Config{
		Port:                getEnv("PORT", "3001"),
		MetricsPort:         getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:5173"),
		TmpDir:              tmpDir,
		MaxFileSizeMB:       maxFileSizeMB,
		MaxFileSize:         int64(maxFileSizeMB) * 1024 * 1024,
		MaxFiles:            maxFiles,
		ConversionTimeout:   conversionTimeout,
		VideoTimeout:        getEnvDuration("VIDEO_TIMEOUT", conversionTimeout),
		PDFDPI:              getEnvInt("PDF_DPI", 150),
		SofficePath:         getEnv("SOFFICE_PATH", "soffice"),
		PdftoppmPath:        getEnv("PDFTOPPM_PATH", "pdftoppm"),
		FFmpegPath:          getEnv("FFMPEG_PATH", "ffmpeg"),
		ConversionWorkers:   max(getEnvInt("CONVERSION_WORKERS", 0), 0),
		CleanupMaxAge:       time.Duration(maxAgeMinutes) * time.Minute,
		CleanupInterval:     getEnvDuration("CLEANUP_INTERVAL", 10*time.Minute),
		DownloadDeleteDelay: getEnvDuration("DOWNLOAD_DELETE_DELAY", 5*time.Second),
		RegistryBackend:     backend,
		RegistryPath:        getEnv("REGISTRY_PATH", filepath.Join(filepath.Dir(tmpDir), "registry.db")),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		RateLimitRequests:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		LogHealthChecks:     getEnvBool("LOG_HEALTH_CHECKS", true),
	}, nil
}

func logConfig(c *Config) {
	logging.Info("  PORT:                    %s", c.Port)
	logging.Info("  METRICS_PORT:            %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:         %v", c.MetricsEnabled)
	logging.Info("  FRONTEND_URL:            %s", c.FrontendURL)
	logging.Info("  TMP_DIR:                 %s", c.TmpDir)
	logging.Info("  MAX_FILE_SIZE_MB:        %d", c.MaxFileSizeMB)
	logging.Info("  MAX_FILES:               %d", c.MaxFiles)
	logging.Info("  CONVERSION_TIMEOUT:      %v", c.ConversionTimeout)
	logging.Info("  VIDEO_TIMEOUT:           %v", c.VideoTimeout)
	logging.Info("  PDF_DPI:                 %d", c.PDFDPI)
	logging.Info("  CLEANUP_MAX_AGE:         %v", c.CleanupMaxAge)
	logging.Info("  CLEANUP_INTERVAL:        %v", c.CleanupInterval)
	logging.Info("  DOWNLOAD_DELETE_DELAY:   %v", c.DownloadDeleteDelay)
	logging.Info("  REGISTRY_BACKEND:        %s", c.RegistryBackend)
	switch c.RegistryBackend {
	case "sqlite":
		logging.Info("  REGISTRY_PATH:           %s", c.RegistryPath)
	case "redis":
		logging.Info("  REDIS_ADDR:              %s (db %d)", c.RedisAddr, c.RedisDB)
	}
	logging.Info("  RATE_LIMIT:              %d per %v", c.RateLimitRequests, c.RateLimitWindow)
	if c.ConversionWorkers > 0 {
		logging.Info("  CONVERSION_WORKERS:      %d", c.ConversionWorkers)
	} else {
		logging.Info("  CONVERSION_WORKERS:      auto")
	}
	logging.Info("  LOG_HEALTH_CHECKS:       %v", c.LogHealthChecks)
	logging.Info("  LOG_LEVEL:               %s", logging.GetLevel())
}

// LogRegistryInit logs result registry initialization
func LogRegistryInit(backend string, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("RESULT REGISTRY INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] %s registry ready in %v", backend, duration)
}

// LogToolCheck logs the availability of every converter tool and records
// it in the tool availability gauge.
func LogToolCheck(status map[string]error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CONVERTER TOOLS")
	logging.Info("------------------------------------------------------------")

	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := status[name]; err != nil {
			metrics.ToolAvailable.WithLabelValues(name).Set(0)
			logging.Warn("  %-14s UNAVAILABLE (%v)", name, err)
			continue
		}
		metrics.ToolAvailable.WithLabelValues(name).Set(1)
		logging.Info("  %-14s [OK]", name)
	}
}

// LogSweeperInit logs the cleanup schedule
func LogSweeperInit(dirs []string, interval, maxAge time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CLEANUP SWEEPER")
	logging.Info("------------------------------------------------------------")
	for _, dir := range dirs {
		logging.Info("  Directory:  %s", dir)
	}
	logging.Info("  Interval:   %v", interval)
	logging.Info("  Max age:    %v", maxAge)
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

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
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
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
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
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
   ____                   ______                           __
  / __/__  ___ ____      / ____/___  ____ _   _____  _____/ /_
 _\ \/ _ \/ _ '/ _ \    / /   / __ \/ __ \ | / / _ \/ ___/ __/
/___/_//_/\_,_/ .__/   / /___/ /_/ / / / / |/ /  __/ /  / /_
             /_/       \____/\____/_/ /_/|___/\___/_/   \__/

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

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
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

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration accepts Go durations ("90s", "15m") and bare integers as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			logging.Warn("Negative duration for %s: %q, using default: %v", key, value, defaultValue)
			return defaultValue
		}
		return time.Duration(secs) * time.Second
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
