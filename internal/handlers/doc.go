// Package handlers provides the HTTP handlers for the SnapConvert API.
//
// It includes handlers for:
//   - Batch conversion uploads (POST /api/convert)
//   - One-shot result downloads (GET /api/download/{id})
//   - The conversion matrix (GET /api/formats, GET /api/formats/{ext})
//   - Health, liveness, readiness and version endpoints
//
// Conversion uploads wait on an optional [AdmissionGate] before the body is
// read; a request that is not admitted in time gets 503 with Retry-After.
//
// Downloaded results are deleted after a short delay. [Handlers.Drain]
// runs any pending deletions during shutdown.
package handlers
