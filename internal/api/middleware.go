package api

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "strconv"
    "strings"
    "time"

    "storefront/internal/metrics"
)

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is needed by the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := r.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("hijack not supported") }
    r.status = http.StatusSwitchingProtocols
    return h.Hijack()
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        s.Log.Info("http request", "remote", r.RemoteAddr, "method", r.Method, "path", r.URL.Path,
            "status", rec.status, "duration", time.Since(start))
    })
}

func metricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        code := strconv.Itoa(rec.status)
        path := routeLabel(r.URL.Path)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
    })
}

// routeLabel collapses ids so label cardinality stays bounded.
func routeLabel(p string) string {
    switch {
    case strings.HasPrefix(p, "/v1/subscriptions/"):
        if strings.HasSuffix(p, "/test") { return "/v1/subscriptions/{id}/test" }
        return "/v1/subscriptions/{id}"
    case strings.HasPrefix(p, "/v1/admin/drgreen/clients/"):
        return "/v1/admin/drgreen/clients/{id}"
    }
    return p
}

func metricsHandler() http.Handler { return metrics.Handler() }
