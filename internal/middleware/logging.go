package middleware

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ServiceName is written into the #Software directive.
const ServiceName = "SnapConvert/1.0"

// kubeHealthPaths are polled by the orchestrator every few seconds.
var kubeHealthPaths = []string{"/healthz", "/livez", "/readyz"}

// AccessLogConfig selects which requests reach the access log.
type AccessLogConfig struct {
	// SkipPaths are path prefixes that are never logged.
	SkipPaths []string
	// LogHealthChecks keeps /api/health and the orchestrator health endpoints in the log.
	LogHealthChecks bool
}

// DefaultAccessLogConfig logs every request.
func DefaultAccessLogConfig() AccessLogConfig {
	return AccessLogConfig{LogHealthChecks: true}
}

// accessEntry is one finished request.
type accessEntry struct {
	at   time.Time
	req  *http.Request
	rec  *statusRecorder
	took time.Duration
}

type w3cField struct {
	name  string
	value func(e accessEntry) string
}

// accessFields renders both the #Fields directive and every line.
// cs-bytes is the declared request size, "-" when unknown.
var accessFields = []w3cField{
	{"date", func(e accessEntry) string { return e.at.Format("2006-01-02") }},
	{"time", func(e accessEntry) string { return e.at.Format("15:04:05") }},
	{"c-ip", func(e accessEntry) string { return ClientIP(e.req) }},
	{"cs-method", func(e accessEntry) string { return e.req.Method }},
	{"cs-uri-stem", func(e accessEntry) string { return e.req.URL.Path }},
	{"cs-uri-query", func(e accessEntry) string { return e.req.URL.RawQuery }},
	{"cs-bytes", func(e accessEntry) string {
		if e.req.ContentLength < 0 {
			return ""
		}
		return strconv.FormatInt(e.req.ContentLength, 10)
	}},
	{"sc-status", func(e accessEntry) string { return strconv.Itoa(e.rec.status) }},
	{"sc-bytes", func(e accessEntry) string { return strconv.FormatInt(e.rec.written, 10) }},
	{"time-taken", func(e accessEntry) string { return strconv.FormatInt(e.took.Milliseconds(), 10) }},
	{"sc(Content-Type)", func(e accessEntry) string { return e.rec.Header().Get("Content-Type") }},
	{"sc(Content-Encoding)", func(e accessEntry) string { return e.rec.Header().Get("Content-Encoding") }},
	{"cs(Origin)", func(e accessEntry) string { return e.req.Header.Get("Origin") }},
	{"cs(User-Agent)", func(e accessEntry) string { return e.req.Header.Get("User-Agent") }},
}

// AccessLog writes one W3C Extended Log Format line per request.
type AccessLog struct {
	config  AccessLogConfig
	health  map[string]bool
	printf  func(format string, v ...any)
	timeNow func() time.Time
}

// NewAccessLog builds an access log that writes through the standard logger.
func NewAccessLog(config AccessLogConfig) *AccessLog {
	health := map[string]bool{"/api/health": true}
	for _, p := range kubeHealthPaths {
		health[p] = true
	}
	return &AccessLog{
		config:  config,
		health:  health,
		printf:  log.Printf,
		timeNow: time.Now,
	}
}

// AccessLogger writes the log directives and returns the middleware.
func AccessLogger(config AccessLogConfig) func(http.Handler) http.Handler {
	a := NewAccessLog(config)
	a.directives()
	return a.Middleware
}

func (a *AccessLog) directives() {
	names := make([]string, len(accessFields))
	for i, f := range accessFields {
		names[i] = f.name
	}
	a.printf("#Software: %s", ServiceName)
	a.printf("#Fields: %s", strings.Join(names, " "))
}

// Middleware wraps next and logs each request once it has been served.
func (a *AccessLog) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := a.timeNow()
		rec := record(w)
		next.ServeHTTP(rec, r)

		end := a.timeNow()
		a.printf("%s", a.line(accessEntry{at: end.UTC(), req: r, rec: rec, took: end.Sub(start)}))
	})
}

func (a *AccessLog) line(e accessEntry) string {
	var b strings.Builder
	for i, f := range accessFields {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(quoteField(sanitizeLogField(f.value(e))))
	}
	return b.String()
}

func (a *AccessLog) skipped(path string) bool {
	if !a.config.LogHealthChecks && a.health[path] {
		return true
	}
	for _, prefix := range a.config.SkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// sanitizeLogField turns line breaks into spaces and drops other control
// characters so a client cannot forge log lines.
func sanitizeLogField(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

// quoteField writes "-" for an empty value and double-quotes values that
// contain whitespace or quotes.
func quoteField(s string) string {
	if s == "" {
		return "-"
	}
	if !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ClientIP returns the originating client address, preferring the first
// X-Forwarded-For hop, then X-Real-IP, then the socket peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
