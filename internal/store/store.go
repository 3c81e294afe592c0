package store

import (
    "context"
    "errors"

    "storefront/internal/model"
)

// Store is the persistence interface shared by the API server, the webhook
// dispatcher and the credential resolver.
type Store interface {
    // Subscriptions
    CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error)
    GetSubscription(ctx context.Context, id string) (model.Subscription, error)
    UpdateSubscription(ctx context.Context, tenantID *string, id string, patch model.SubscriptionPatch) (model.Subscription, error)
    DeleteSubscription(ctx context.Context, tenantID *string, id string) error
    ListSubscriptions(ctx context.Context, tenantID *string, cursor string, limit int) ([]model.Subscription, string, error)
    // GetSubscriptionsForEvent returns active subscriptions of exactly tenantID
    // (nil matches only platform subscriptions) interested in eventType.
    GetSubscriptionsForEvent(ctx context.Context, tenantID *string, eventType string) ([]model.Subscription, error)

    // Delivery log (append-only)
    InsertDelivery(ctx context.Context, d model.Delivery) (string, error)
    ListDeliveries(ctx context.Context, f model.DeliveryFilter, cursor string, limit int) ([]model.Delivery, string, error)

    // Dr. Green credentials, stored encrypted
    GetTenantCredentials(ctx context.Context, tenantID string) (model.EncryptedCredentials, error)
    SaveTenantCredentials(ctx context.Context, c model.EncryptedCredentials) error

    // Orders
    CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
    UpdateOrderUpstream(ctx context.Context, tenantID, id, status, upstreamID, upstreamErr string) (model.Order, error)
    ListOrders(ctx context.Context, tenantID, cursor string, limit int) ([]model.Order, string, error)
}

var ErrNotFound = errors.New("not found")

const (
    defaultLimit = 100
    maxLimit     = 500
)

func clampLimit(limit int) int {
    if limit <= 0 || limit > maxLimit { return defaultLimit }
    return limit
}

func sameTenant(a, b *string) bool {
    if a == nil || b == nil { return a == nil && b == nil }
    return *a == *b
}
