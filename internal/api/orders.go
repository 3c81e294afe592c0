package api

import (
    "encoding/json"
    "errors"
    "net/http"

    "storefront/internal/model"
    "storefront/internal/orders"
)

// OrdersHandler places (POST) and lists (GET) the caller tenant's orders. An
// order the upstream rejected is still created and reported with its reason.
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.requireTenant(w, r)
    if !ok { return }
    switch r.Method {
    case http.MethodPost:
        var req model.OrderRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        o, err := s.Orders.Place(r.Context(), p.Tenant, req)
        if errors.Is(err, orders.ErrInvalid) {
            writeProblem(w, http.StatusBadRequest, "Invalid order", err.Error(), r.URL.Path)
            return
        }
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create order failed", err.Error(), r.URL.Path)
            return
        }
        resp := map[string]any{"order": o}
        if o.Status == model.OrderStatusUpstreamFailed {
            resp["message"] = o.UpstreamError
        }
        writeJSON(w, http.StatusCreated, resp)
    case http.MethodGet:
        items, next, err := s.Orders.List(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryLimit(r))
        if err != nil { writeProblem(w, 500, "List orders failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}
