package api

import (
    "encoding/json"
    "errors"
    "net/http"
    "strconv"
    "strings"

    "storefront/internal/model"
    "storefront/internal/store"
)

const testEventMessage = "This is a test webhook delivery."

func queryLimit(r *http.Request) int {
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" {
        if n, err := strconv.Atoi(v); err == nil { limit = n }
    }
    return limit
}

func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        p, ok := s.requireAdmin(w, r)
        if !ok { return }
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateSubscriptionRequest(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
            return
        }
        secret, err := newWebhookSecret()
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        sub, err := s.Store.CreateSubscription(r.Context(), model.Subscription{
            TenantID:    p.TenantScope(),
            URL:         req.URL,
            Events:      req.Events,
            Secret:      secret,
            Description: req.Description,
            Active:      true,
        })
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        s.Log.Info("webhook subscription created", "subscription", sub.ID, "tenant", p.Tenant, "events", sub.Events)
        // The full secret is shown exactly once.
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        p, ok := s.requireAdmin(w, r)
        if !ok { return }
        items, next, err := s.Store.ListSubscriptions(r.Context(), p.TenantScope(), r.URL.Query().Get("cursor"), queryLimit(r))
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        for i := range items { items[i] = items[i].Masked() }
        writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SubscriptionByIDHandler serves /v1/subscriptions/{id} and /v1/subscriptions/{id}/test.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/"), "/")
    parts := strings.Split(rest, "/")
    if rest == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "test") {
        writeProblem(w, 404, "Not Found", "", r.URL.Path)
        return
    }
    id := parts[0]
    p, ok := s.requireAdmin(w, r)
    if !ok { return }
    scope := p.TenantScope()

    if len(parts) == 2 {
        if r.Method != http.MethodPost { w.WriteHeader(405); return }
        s.testSubscription(w, r, scope, id)
        return
    }

    switch r.Method {
    case http.MethodGet:
        sub, err := s.Store.GetSubscription(r.Context(), id)
        if err != nil || !sameScope(sub.TenantID, scope) {
            s.subscriptionError(w, r, err)
            return
        }
        writeJSON(w, 200, sub.Masked())
    case http.MethodPatch:
        var patch model.SubscriptionPatch
        if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateSubscriptionPatch(&patch); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
            return
        }
        sub, err := s.Store.UpdateSubscription(r.Context(), scope, id, patch)
        if err != nil { s.subscriptionError(w, r, err); return }
        writeJSON(w, 200, sub.Masked())
    case http.MethodDelete:
        if err := s.Store.DeleteSubscription(r.Context(), scope, id); err != nil {
            s.subscriptionError(w, r, err)
            return
        }
        w.WriteHeader(204)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// testSubscription sends a tenant.updated ping to one subscription and waits
// for the first attempt; failures retry like any other delivery.
func (s *Server) testSubscription(w http.ResponseWriter, r *http.Request, scope *string, id string) {
    sub, err := s.Store.GetSubscription(r.Context(), id)
    if err != nil || !sameScope(sub.TenantID, scope) {
        s.subscriptionError(w, r, err)
        return
    }
    if !sub.Active {
        writeProblem(w, http.StatusConflict, "Subscription inactive", "activate the subscription before testing it", r.URL.Path)
        return
    }
    s.Hooks.Send(r.Context(), sub, model.EventTenantUpdated, map[string]any{
        "test":           true,
        "subscriptionId": sub.ID,
        "message":        testEventMessage,
    })
    writeJSON(w, http.StatusAccepted, map[string]any{"status": "sent", "subscriptionId": sub.ID, "event": model.EventTenantUpdated})
}

func (s *Server) subscriptionError(w http.ResponseWriter, r *http.Request, err error) {
    if err == nil || errors.Is(err, store.ErrNotFound) {
        writeProblem(w, http.StatusNotFound, "Not Found", "subscription not found", r.URL.Path)
        return
    }
    writeProblem(w, http.StatusInternalServerError, "Subscription lookup failed", err.Error(), r.URL.Path)
}

func sameScope(a, b *string) bool {
    if a == nil || b == nil { return a == nil && b == nil }
    return *a == *b
}
