package api

import (
    "net/http"
    "time"

    "storefront/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.requireAdmin(w, r); !ok { return }
    writeJSON(w, 200, map[string]any{
        "build":  buildinfo.Info(),
        "time":   time.Now().UTC().Format(time.RFC3339),
        "config": s.Config.Redacted(),
    })
}
