package api

import (
    "bytes"
    "context"
    "crypto/ed25519"
    "crypto/rand"
    "crypto/x509"
    "encoding/json"
    "encoding/pem"
    "io"
    "log/slog"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/gorilla/websocket"

    "storefront/internal/config"
    "storefront/internal/model"
    "storefront/internal/webhooks"
)

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *Server {
    t.Helper()
    cfg := config.Default()
    for _, m := range mutate { m(&cfg) }
    s, err := NewServer(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
    if err != nil { t.Fatalf("NewServer: %v", err) }
    t.Cleanup(s.Close)
    return s
}

func do(t *testing.T, h http.Handler, method, path, tenant, role string, body any) *httptest.ResponseRecorder {
    t.Helper()
    var rdr io.Reader
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { t.Fatal(err) }
        rdr = bytes.NewReader(b)
    }
    req := httptest.NewRequest(method, path, rdr)
    req.Header.Set("Content-Type", "application/json")
    if tenant != "" { req.Header.Set("X-Tenant-Id", tenant) }
    if role != "" { req.Header.Set("X-Role", role) }
    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    return rr
}

type hookReceiver struct {
    mu     sync.Mutex
    bodies [][]byte
    sigs   []string
    events []string
}

func (h *hookReceiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
    b, _ := io.ReadAll(r.Body)
    h.mu.Lock()
    h.bodies = append(h.bodies, b)
    h.sigs = append(h.sigs, r.Header.Get(webhooks.HeaderSignature))
    h.events = append(h.events, r.Header.Get(webhooks.HeaderEvent))
    h.mu.Unlock()
    w.WriteHeader(200)
}

func createSub(t *testing.T, h http.Handler, tenant, url string, events ...string) model.Subscription {
    t.Helper()
    rr := do(t, h, http.MethodPost, "/v1/subscriptions", tenant, "", map[string]any{"url": url, "events": events})
    if rr.Code != http.StatusCreated { t.Fatalf("create subscription: %d %s", rr.Code, rr.Body.String()) }
    var sub model.Subscription
    if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil { t.Fatal(err) }
    return sub
}

func TestHealthReadyMetrics(t *testing.T) {
    h := newTestServer(t).Routes()
    for _, p := range []string{"/healthz", "/readyz", "/metrics"} {
        if rr := do(t, h, http.MethodGet, p, "", "", nil); rr.Code != 200 {
            t.Fatalf("%s: got %d", p, rr.Code)
        }
    }
}

func TestSubscriptionLifecycle(t *testing.T) {
    h := newTestServer(t).Routes()
    sub := createSub(t, h, "t1", "https://hooks.example/a", model.EventOrderCreated, model.EventOrderCreated, model.EventProductCreated)
    if !strings.HasPrefix(sub.Secret, "whsec_") || len(sub.Secret) != len("whsec_")+64 {
        t.Fatalf("secret %q", sub.Secret)
    }
    if sub.TenantID == nil || *sub.TenantID != "t1" || !sub.Active || len(sub.Events) != 2 {
        t.Fatalf("subscription %+v", sub)
    }

    rr := do(t, h, http.MethodGet, "/v1/subscriptions", "t1", "", nil)
    var list struct{ Items []model.Subscription `json:"items"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &list)
    if len(list.Items) != 1 || list.Items[0].Secret != "whsec_****"+sub.Secret[len(sub.Secret)-4:] {
        t.Fatalf("list %+v", list.Items)
    }

    rr = do(t, h, http.MethodPatch, "/v1/subscriptions/"+sub.ID, "t1", "", map[string]any{"isActive": false, "url": "https://hooks.example/b"})
    var patched model.Subscription
    _ = json.Unmarshal(rr.Body.Bytes(), &patched)
    if rr.Code != 200 || patched.Active || patched.URL != "https://hooks.example/b" || strings.Contains(patched.Secret, sub.Secret) {
        t.Fatalf("patch: %d %+v", rr.Code, patched)
    }

    if rr := do(t, h, http.MethodDelete, "/v1/subscriptions/"+sub.ID, "t1", "", nil); rr.Code != 204 {
        t.Fatalf("delete: %d", rr.Code)
    }
    if rr := do(t, h, http.MethodGet, "/v1/subscriptions/"+sub.ID, "t1", "", nil); rr.Code != 404 {
        t.Fatalf("get after delete: %d", rr.Code)
    }
}

func TestSubscriptionValidation(t *testing.T) {
    h := newTestServer(t).Routes()
    bad := []map[string]any{
        {"url": "ftp://x.example", "events": []string{model.EventOrderCreated}},
        {"url": "/relative", "events": []string{model.EventOrderCreated}},
        {"url": "https://x.example", "events": []string{}},
        {"url": "https://x.example", "events": []string{"order.exploded"}},
    }
    for i, body := range bad {
        rr := do(t, h, http.MethodPost, "/v1/subscriptions", "t1", "", body)
        if rr.Code != 400 { t.Fatalf("case %d: got %d", i, rr.Code) }
        if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" { t.Fatalf("case %d: content type %q", i, ct) }
        var p Problem
        if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil { t.Fatalf("case %d: decode problem: %v", i, err) }
        if p.Type != "urn:storefront:problem:invalid-subscription" || p.Status != 400 || p.Instance != "/v1/subscriptions" || p.Detail == "" {
            t.Fatalf("case %d: problem %+v", i, p)
        }
    }
}

func TestProblemType(t *testing.T) {
    cases := map[string]string{
        "Not Found":             "urn:storefront:problem:not-found",
        "Subscription inactive": "urn:storefront:problem:subscription-inactive",
        "  ":                    "about:blank",
    }
    for title, want := range cases {
        if got := problemType(title); got != want { t.Fatalf("problemType(%q) = %q, want %q", title, got, want) }
    }
}

func TestSubscriptionTenantIsolationAndRoles(t *testing.T) {
    h := newTestServer(t).Routes()
    sub := createSub(t, h, "a", "https://hooks.example/a", model.EventOrderCreated)

    for _, m := range []string{http.MethodGet, http.MethodPatch, http.MethodDelete} {
        if rr := do(t, h, m, "/v1/subscriptions/"+sub.ID, "b", "", map[string]any{}); rr.Code != 404 {
            t.Fatalf("%s by other tenant: got %d", m, rr.Code)
        }
    }
    if rr := do(t, h, http.MethodGet, "/v1/subscriptions/"+sub.ID, "", "platform", nil); rr.Code != 404 {
        t.Fatalf("platform reading tenant sub: got %d", rr.Code)
    }
    if rr := do(t, h, http.MethodGet, "/v1/subscriptions", "a", "customer", nil); rr.Code != 403 {
        t.Fatalf("customer role: got %d", rr.Code)
    }
    if rr := do(t, h, http.MethodGet, "/v1/subscriptions", "", "admin", nil); rr.Code != 401 {
        t.Fatalf("missing tenant: got %d", rr.Code)
    }

    rr := do(t, h, http.MethodPost, "/v1/subscriptions", "", "platform", map[string]any{"url": "https://hooks.example/p2", "events": []string{model.EventTenantCreated}})
    var ps model.Subscription
    _ = json.Unmarshal(rr.Body.Bytes(), &ps)
    if rr.Code != 201 || ps.TenantID != nil {
        t.Fatalf("platform subscription: %d %+v", rr.Code, ps)
    }
}

func TestSubscriptionTestPingAndDeliveryLog(t *testing.T) {
    recv := &hookReceiver{}
    target := httptest.NewServer(recv)
    defer target.Close()

    h := newTestServer(t).Routes()
    sub := createSub(t, h, "t1", target.URL, model.EventOrderCreated)

    if rr := do(t, h, http.MethodPost, "/v1/subscriptions/"+sub.ID+"/test", "t1", "", nil); rr.Code != http.StatusAccepted {
        t.Fatalf("test ping: %d %s", rr.Code, rr.Body.String())
    }
    recv.mu.Lock()
    if len(recv.bodies) != 1 || recv.events[0] != model.EventTenantUpdated || !webhooks.VerifyHMAC(sub.Secret, recv.bodies[0], recv.sigs[0]) {
        recv.mu.Unlock()
        t.Fatalf("receiver saw %d requests", len(recv.bodies))
    }
    recv.mu.Unlock()

    rr := do(t, h, http.MethodGet, "/v1/admin/webhook-deliveries?success=true&subscriptionId="+sub.ID, "t1", "", nil)
    var list struct{ Items []model.Delivery `json:"items"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &list)
    if rr.Code != 200 || len(list.Items) != 1 || !list.Items[0].Success || list.Items[0].Attempt != 1 {
        t.Fatalf("deliveries: %d %+v", rr.Code, list.Items)
    }
    rr = do(t, h, http.MethodGet, "/v1/admin/webhook-deliveries", "t2", "", nil)
    _ = json.Unmarshal(rr.Body.Bytes(), &list)
    if len(list.Items) != 0 {
        t.Fatalf("other tenant sees deliveries: %+v", list.Items)
    }
    if rr := do(t, h, http.MethodGet, "/v1/admin/webhook-deliveries?success=maybe", "t1", "", nil); rr.Code != 400 {
        t.Fatalf("bad filter: %d", rr.Code)
    }
}

func TestDeliveryStream(t *testing.T) {
    recv := &hookReceiver{}
    target := httptest.NewServer(recv)
    defer target.Close()

    s := newTestServer(t)
    srv := httptest.NewServer(s.Routes())
    defer srv.Close()
    createSub(t, s.Routes(), "t1", target.URL, model.EventOrderShipped)

    hdr := http.Header{}
    hdr.Set("X-Tenant-Id", "t1")
    conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/admin/webhook-deliveries/stream", hdr)
    if err != nil { t.Fatalf("dial: %v", err) }
    defer conn.Close()

    t1 := "t1"
    s.Hooks.Trigger(context.Background(), model.EventOrderShipped, &t1, map[string]any{"orderId": "o1"})

    _ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
    var evt FeedEvent
    if err := conn.ReadJSON(&evt); err != nil { t.Fatalf("read: %v", err) }
    if evt.Type != feedEventDelivery || evt.Delivery.EventType != model.EventOrderShipped || !evt.Delivery.Success {
        t.Fatalf("event %+v", evt)
    }
}

func ed25519PEM(t *testing.T) string {
    t.Helper()
    _, key, err := ed25519.GenerateKey(rand.Reader)
    if err != nil { t.Fatal(err) }
    der, err := x509.MarshalPKCS8PrivateKey(key)
    if err != nil { t.Fatal(err) }
    return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func TestOrdersWithUpstream(t *testing.T) {
    var gotKey, gotSig, gotPath string
    upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        gotKey, gotSig, gotPath = r.Header.Get("x-auth-apikey"), r.Header.Get("x-auth-signature"), r.URL.Path
        _, _ = io.WriteString(w, `{"success":true,"data":{"id":"up-7","status":"PENDING"}}`)
    }))
    defer upstream.Close()

    h := newTestServer(t, func(c *config.Config) { c.DrGreen.BaseURL = upstream.URL + "/api/v1" }).Routes()

    // No credentials yet: the order is kept but marked upstream_failed.
    rr := do(t, h, http.MethodPost, "/v1/orders", "t1", "customer", map[string]any{"clientId": "c1", "items": []map[string]any{{"strainId": "s1", "quantity": 1}}})
    var resp struct {
        Order   model.Order `json:"order"`
        Message string      `json:"message"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &resp)
    if rr.Code != 201 || resp.Order.Status != model.OrderStatusUpstreamFailed || resp.Message == "" || gotPath != "" {
        t.Fatalf("without creds: %d %+v", rr.Code, resp)
    }

    if rr := do(t, h, http.MethodPut, "/v1/admin/drgreen/credentials", "t1", "", map[string]any{"apiKey": "key-1", "secretKey": ed25519PEM(t)}); rr.Code != 204 {
        t.Fatalf("save creds: %d %s", rr.Code, rr.Body.String())
    }
    rr = do(t, h, http.MethodGet, "/v1/admin/drgreen/credentials", "t1", "", nil)
    if !strings.Contains(rr.Body.String(), `"configured":true`) || strings.Contains(rr.Body.String(), "key-1") {
        t.Fatalf("creds status: %s", rr.Body.String())
    }

    rr = do(t, h, http.MethodPost, "/v1/orders", "t1", "customer", map[string]any{"clientId": "c1", "items": []map[string]any{{"strainId": "s1", "quantity": 2}}})
    resp.Message = ""
    _ = json.Unmarshal(rr.Body.Bytes(), &resp)
    if rr.Code != 201 || resp.Order.Status != model.OrderStatusSubmitted || resp.Order.UpstreamID != "up-7" {
        t.Fatalf("with creds: %d %+v", rr.Code, resp)
    }
    if gotPath != "/api/v1/dapp/orders" || gotKey != "key-1" || gotSig == "" {
        t.Fatalf("upstream saw path=%q key=%q sig=%q", gotPath, gotKey, gotSig)
    }

    rr = do(t, h, http.MethodGet, "/v1/orders", "t1", "customer", nil)
    var list struct{ Items []model.Order `json:"items"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &list)
    if len(list.Items) != 2 {
        t.Fatalf("orders list: %+v", list.Items)
    }
    if rr := do(t, h, http.MethodPost, "/v1/orders", "t1", "customer", map[string]any{"clientId": ""}); rr.Code != 400 {
        t.Fatalf("invalid order: %d", rr.Code)
    }
}

func TestDebugConfigRedacted(t *testing.T) {
    h := newTestServer(t, func(c *config.Config) { c.Secrets.EncryptionKey = "" }).Routes()
    rr := do(t, h, http.MethodGet, "/debug/config", "t1", "", nil)
    if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"authMode":"dev"`) {
        t.Fatalf("debug: %d %s", rr.Code, rr.Body.String())
    }
}
