package api

import (
    "context"
    "net/http"
    "time"
)

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

// ReadyHandler checks the database and Redis when they are in use.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    type pinger interface{ Ping(ctx context.Context) error }
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if pg, ok := s.Store.(pinger); ok {
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", "database: "+err.Error(), r.URL.Path); return }
    }
    if rb, ok := s.Broker.(pinger); ok {
        if err := rb.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", "redis: "+err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
