//go:build postgres_integration

package store

import (
    "os"
    "testing"

    "storefront/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    defer p.Close()
    if err := p.Ping(t.Context()); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.Migrate(t.Context()); err != nil { t.Fatalf("Migrate: %v", err) }

    tenant := "t_integration"
    sub, err := p.CreateSubscription(t.Context(), model.Subscription{TenantID: &tenant, URL: "https://example.com/hook", Events: []string{model.EventOrderCreated}, Secret: "whsec_x", Active: true})
    if err != nil { t.Fatalf("CreateSubscription: %v", err) }
    defer func() { _ = p.DeleteSubscription(t.Context(), &tenant, sub.ID) }()

    got, err := p.GetSubscriptionsForEvent(t.Context(), &tenant, model.EventOrderCreated)
    if err != nil { t.Fatalf("GetSubscriptionsForEvent: %v", err) }
    if len(got) == 0 { t.Fatalf("expected subscription match") }
    none, err := p.GetSubscriptionsForEvent(t.Context(), nil, model.EventOrderCreated)
    if err != nil { t.Fatalf("platform lookup: %v", err) }
    for _, s := range none {
        if s.ID == sub.ID { t.Fatalf("tenant subscription matched platform lookup") }
    }
    code := 200
    sent := `{"event":"order.created", "tenantId":"t_integration","data":{},"timestamp":"2026-01-02T03:04:05.000Z"}`
    if _, err := p.InsertDelivery(t.Context(), model.Delivery{SubscriptionID: sub.ID, TenantID: &tenant, EventType: model.EventOrderCreated, Payload: []byte(sent), StatusCode: &code, Success: true, Attempt: 1}); err != nil {
        t.Fatalf("InsertDelivery: %v", err)
    }
    items, _, err := p.ListDeliveries(t.Context(), model.DeliveryFilter{TenantID: &tenant, SubscriptionID: sub.ID}, "", 10)
    if err != nil || len(items) == 0 { t.Fatalf("ListDeliveries: %v %d", err, len(items)) }
    if string(items[0].Payload) != sent { t.Fatalf("payload changed in storage:\n got %s\nwant %s", items[0].Payload, sent) }

    second, err := p.CreateSubscription(t.Context(), model.Subscription{TenantID: &tenant, URL: "https://example.com/hook2", Events: []string{model.EventOrderCreated}, Secret: "whsec_y", Active: true})
    if err != nil { t.Fatalf("CreateSubscription: %v", err) }
    defer func() { _ = p.DeleteSubscription(t.Context(), &tenant, second.ID) }()
    page, next, err := p.ListSubscriptions(t.Context(), &tenant, "", 1)
    if err != nil || len(page) != 1 || page[0].ID != sub.ID { t.Fatalf("first page: %v %+v", err, page) }
    page, _, err = p.ListSubscriptions(t.Context(), &tenant, next, 1)
    if err != nil || len(page) != 1 || page[0].ID != second.ID { t.Fatalf("second page: %v %+v", err, page) }
    page, _, err = p.ListSubscriptions(t.Context(), &tenant, "6f1c2a9e-0000-4000-8000-000000000000", 10)
    if err != nil || len(page) != 0 { t.Fatalf("unknown cursor: %v %+v", err, page) }
}
