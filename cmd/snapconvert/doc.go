// Command snapconvert runs the SnapConvert file conversion API.
//
// SnapConvert accepts batches of uploaded files, converts each one to a
// requested target format and hands back one-shot download links. Documents
// are converted with LibreOffice, PDFs are rasterized with pdftoppm, videos
// are transcoded with ffmpeg and images are handled in process with libvips
// (falling back to pure Go encoders when libvips is unavailable).
//
// # Application Lifecycle
//
//  1. Configuration Loading: sets GOMEMLIMIT, reads environment variables and prepares TMP_DIR
//  2. Result Registry: opens the memory, sqlite or redis backend
//  3. Tool Probing: checks soffice, pdftoppm and ffmpeg and logs availability
//  4. Background Services: cleanup sweeper, metrics collector, memory monitor, rate limiter eviction
//  5. HTTP Server Setup: routes, middleware and the optional metrics server
//  6. Graceful Shutdown: handles SIGINT/SIGTERM
//
// # HTTP Server
//
// The main server (default port 3001) serves:
//
//   - POST /api/convert: multipart upload with files, targetFormat and merge
//   - GET /api/download/{id}: streams a result once, then deletes it
//   - GET /api/formats and /api/formats/{ext}: the conversion matrix
//   - GET /api/health, /healthz, /livez, /readyz, /version
//
// The metrics server (default port 9090) serves /metrics.
//
// # Graceful Shutdown
//
//  1. Stop the cleanup sweeper, metrics collector and memory monitor
//  2. Terminate running conversion tool processes
//  3. Shut down the main HTTP server (30s timeout)
//  4. Run pending post-download deletions
//  5. Shut down the metrics server
//  6. Release libvips and close the result registry
//
// See the startup package for the environment variables and the memory
// package for MEMORY_LIMIT and MEMORY_RATIO.
package main
