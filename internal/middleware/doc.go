// Package middleware provides HTTP middleware for the SnapConvert API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labeled by route template
//   - gzip compression of JSON responses
//   - Per-client rate limiting on the /api prefix
package middleware
