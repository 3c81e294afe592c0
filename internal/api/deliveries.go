package api

import (
    "net/http"
    "strconv"
    "time"

    "github.com/gorilla/websocket"

    "storefront/internal/model"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

const (
    feedPingInterval = 20 * time.Second
    feedReadTimeout  = 60 * time.Second
)

// WebhookDeliveriesHandler lists the caller's delivery log, newest first.
// Filters: subscriptionId, eventType, success.
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    p, ok := s.requireAdmin(w, r)
    if !ok { return }
    q := r.URL.Query()
    f := model.DeliveryFilter{
        TenantID:       p.TenantScope(),
        SubscriptionID: q.Get("subscriptionId"),
        EventType:      q.Get("eventType"),
    }
    if v := q.Get("success"); v != "" {
        b, err := strconv.ParseBool(v)
        if err != nil { writeProblem(w, 400, "Invalid filter", "success must be true or false", r.URL.Path); return }
        f.Success = &b
    }
    items, next, err := s.Store.ListDeliveries(r.Context(), f, q.Get("cursor"), queryLimit(r))
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryStreamHandler streams delivery attempts for the caller's
// tenant over a WebSocket as they are logged.
func (s *Server) WebhookDeliveryStreamHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.requireAdmin(w, r)
    if !ok { return }
    // Subscribe before upgrading so nothing published after the handshake is missed.
    key := feedKey(p.TenantScope())
    ch := s.Broker.Subscribe(key)
    defer s.Broker.Unsubscribe(key, ch)

    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    // Read loop only services control frames and notices the client leaving.
    done := make(chan struct{})
    conn.SetReadLimit(1 << 16)
    _ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout))
    conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(feedReadTimeout)); return nil })
    go func() {
        defer close(done)
        for {
            if _, _, err := conn.ReadMessage(); err != nil { return }
        }
    }()

    ticker := time.NewTicker(feedPingInterval)
    defer ticker.Stop()
    for {
        select {
        case <-done:
            return
        case evt, ok := <-ch:
            if !ok { return }
            _ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
            if err := conn.WriteJSON(evt); err != nil { return }
        case <-ticker.C:
            if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil { return }
        }
    }
}
