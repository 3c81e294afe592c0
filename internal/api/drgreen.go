package api

import (
    "encoding/json"
    "errors"
    "net/http"
    "strings"

    "storefront/internal/drgreen"
    "storefront/internal/model"
    "storefront/internal/store"
)

// DrGreenCredentialsHandler stores (PUT) or reports (GET) the caller tenant's
// Dr. Green key pair. Keys are never returned.
func (s *Server) DrGreenCredentialsHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.requireAdmin(w, r)
    if !ok { return }
    if p.Tenant == "" {
        writeProblem(w, http.StatusBadRequest, "Tenant required", "credentials belong to a tenant", r.URL.Path)
        return
    }
    switch r.Method {
    case http.MethodPut:
        var req model.CredentialsRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := s.Creds.Save(r.Context(), p.Tenant, req); err != nil {
            if errors.Is(err, drgreen.ErrMissingCredentials) {
                writeProblem(w, http.StatusBadRequest, "Invalid credentials", err.Error(), r.URL.Path)
                return
            }
            writeProblem(w, http.StatusInternalServerError, "Save credentials failed", err.Error(), r.URL.Path)
            return
        }
        s.Log.Info("drgreen credentials updated", "tenant", p.Tenant)
        w.WriteHeader(http.StatusNoContent)
    case http.MethodGet:
        c, err := s.Store.GetTenantCredentials(r.Context(), p.Tenant)
        if errors.Is(err, store.ErrNotFound) {
            writeJSON(w, 200, map[string]any{"configured": false})
            return
        }
        if err != nil { writeProblem(w, 500, "Load credentials failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"configured": true, "updatedAt": c.UpdatedAt})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// DrGreenClientHandler looks up a patient record upstream: GET /v1/admin/drgreen/clients/{id}.
func (s *Server) DrGreenClientHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/admin/drgreen/clients/"), "/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p, ok := s.requireAdmin(w, r)
    if !ok { return }
    if p.Tenant == "" {
        writeProblem(w, http.StatusBadRequest, "Tenant required", "credentials belong to a tenant", r.URL.Path)
        return
    }
    creds, err := s.Creds.Resolve(r.Context(), p.Tenant)
    if err != nil {
        s.upstreamProblem(w, r, err)
        return
    }
    rec, err := s.DrGreen.GetClient(r.Context(), creds, id)
    if err != nil {
        s.upstreamProblem(w, r, err)
        return
    }
    writeJSON(w, 200, map[string]any{"client": rec, "approved": rec.Approved()})
}

// upstreamProblem maps Dr. Green client errors to problem responses with a
// customer-facing detail.
func (s *Server) upstreamProblem(w http.ResponseWriter, r *http.Request, err error) {
    status := http.StatusBadGateway
    var apiErr *drgreen.ExternalAPIError
    switch {
    case errors.Is(err, drgreen.ErrMissingCredentials):
        status = http.StatusFailedDependency
    case errors.Is(err, drgreen.ErrCircuitOpen):
        status = http.StatusServiceUnavailable
    case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
        status = http.StatusNotFound
    }
    s.Log.Warn("drgreen call failed", "path", r.URL.Path, "err", err)
    writeProblem(w, status, "Upstream request failed", drgreen.FriendlyMessage(err), r.URL.Path)
}
