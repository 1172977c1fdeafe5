// Package startup handles configuration loading and startup/shutdown logging
// for the SnapConvert server.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - PORT: HTTP server port (default: 3001)
//   - METRICS_PORT, METRICS_ENABLED: Prometheus server (default: 9090, true)
//   - FRONTEND_URL: allowed CORS origin (default: http://localhost:5173)
//   - TMP_DIR: working directory for uploads and results (default: ./tmp)
//   - MAX_FILE_SIZE_MB, MAX_FILES: upload limits (default: 50, 10)
//   - CONVERSION_TIMEOUT, VIDEO_TIMEOUT: external tool limits (default: 30s)
//   - PDF_DPI: pdftoppm resolution (default: 150)
//   - SOFFICE_PATH, PDFTOPPM_PATH, FFMPEG_PATH: tool binaries
//   - CLEANUP_MAX_AGE_MINUTES, CLEANUP_INTERVAL: sweeper schedule (default: 30, 10m)
//   - DOWNLOAD_DELETE_DELAY: delay before a downloaded result is removed (default: 5s)
//   - REGISTRY_BACKEND: memory, sqlite or redis (default: memory)
//   - REGISTRY_PATH: sqlite file (default: registry.db next to TMP_DIR)
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB: redis backend
//   - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW: per-IP limit on /api (default: 100 per 15m)
//   - LOG_LEVEL, LOG_HEALTH_CHECKS: logging
//
// Durations accept Go syntax ("90s") or a bare number of seconds.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
