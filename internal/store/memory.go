package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"
    "storefront/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu         sync.Mutex
    subs       map[string]model.Subscription           // id -> subscription
    subOrder   []string                                // insertion order
    deliveries []model.Delivery                        // append-only log
    creds      map[string]model.EncryptedCredentials   // tenant -> credentials
    orders     map[string]model.Order                  // id -> order
    byTen      map[string][]string                     // tenant -> order ids
}

func NewMemory() *Memory {
    return &Memory{
        subs:   map[string]model.Subscription{},
        creds:  map[string]model.EncryptedCredentials{},
        orders: map[string]model.Order{},
        byTen:  map[string][]string{},
    }
}

func copySub(s model.Subscription) model.Subscription {
    s.Events = append([]string(nil), s.Events...)
    if s.TenantID != nil { t := *s.TenantID; s.TenantID = &t }
    return s
}

func (m *Memory) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if sub.ID == "" { sub.ID = uuid.New().String() }
    now := time.Now().UTC()
    if sub.CreatedAt.IsZero() { sub.CreatedAt = now }
    sub.UpdatedAt = now
    m.subs[sub.ID] = copySub(sub)
    m.subOrder = append(m.subOrder, sub.ID)
    return copySub(sub), nil
}

func (m *Memory) GetSubscription(ctx context.Context, id string) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.subs[id]
    if !ok { return model.Subscription{}, ErrNotFound }
    return copySub(s), nil
}

func (m *Memory) UpdateSubscription(ctx context.Context, tenantID *string, id string, patch model.SubscriptionPatch) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.subs[id]
    if !ok || !sameTenant(s.TenantID, tenantID) { return model.Subscription{}, ErrNotFound }
    if patch.URL != nil { s.URL = *patch.URL }
    if patch.Events != nil { s.Events = append([]string(nil), (*patch.Events)...) }
    if patch.Description != nil { s.Description = *patch.Description }
    if patch.Active != nil { s.Active = *patch.Active }
    s.UpdatedAt = time.Now().UTC()
    m.subs[id] = s
    return copySub(s), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID *string, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.subs[id]
    if !ok || !sameTenant(s.TenantID, tenantID) { return ErrNotFound }
    delete(m.subs, id)
    out := make([]string, 0, len(m.subOrder))
    for _, sid := range m.subOrder { if sid != id { out = append(out, sid) } }
    m.subOrder = out
    return nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID *string, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit)
    var list []model.Subscription
    for _, id := range m.subOrder {
        if s := m.subs[id]; sameTenant(s.TenantID, tenantID) { list = append(list, s) }
    }
    start := 0
    if cursor != "" {
        start = -1
        for i := range list { if list[i].ID == cursor { start = i+1; break } }
        if start < 0 { return []model.Subscription{}, "", nil }
    }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := make([]model.Subscription, 0, end-start)
    for _, s := range list[start:end] { items = append(items, copySub(s)) }
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID *string, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, id := range m.subOrder {
        s := m.subs[id]
        if s.Active && sameTenant(s.TenantID, tenantID) && s.Subscribes(eventType) {
            out = append(out, copySub(s))
        }
    }
    return out, nil
}

// Delivery log
func (m *Memory) InsertDelivery(ctx context.Context, d model.Delivery) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if d.ID == "" { d.ID = uuid.New().String() }
    if d.CreatedAt.IsZero() { d.CreatedAt = time.Now().UTC() }
    d.Payload = append([]byte(nil), d.Payload...)
    m.deliveries = append(m.deliveries, d)
    return d.ID, nil
}

func (m *Memory) ListDeliveries(ctx context.Context, f model.DeliveryFilter, cursor string, limit int) ([]model.Delivery, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit)
    out := []model.Delivery{}
    // newest first
    started := cursor == ""
    for i := len(m.deliveries) - 1; i >= 0; i-- {
        d := m.deliveries[i]
        if !started {
            if d.ID == cursor { started = true }
            continue
        }
        if !sameTenant(d.TenantID, f.TenantID) { continue }
        if f.SubscriptionID != "" && d.SubscriptionID != f.SubscriptionID { continue }
        if f.EventType != "" && d.EventType != f.EventType { continue }
        if f.Success != nil && d.Success != *f.Success { continue }
        out = append(out, d)
        if len(out) == limit { break }
    }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

// Credentials
func (m *Memory) GetTenantCredentials(ctx context.Context, tenantID string) (model.EncryptedCredentials, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    c, ok := m.creds[tenantID]
    if !ok { return model.EncryptedCredentials{}, ErrNotFound }
    return c, nil
}

func (m *Memory) SaveTenantCredentials(ctx context.Context, c model.EncryptedCredentials) error {
    m.mu.Lock(); defer m.mu.Unlock()
    c.UpdatedAt = time.Now().UTC()
    m.creds[c.TenantID] = c
    return nil
}

// Orders
func (m *Memory) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if o.ID == "" { o.ID = uuid.New().String() }
    if o.CreatedAt.IsZero() { o.CreatedAt = time.Now().UTC() }
    if o.Status == "" { o.Status = model.OrderStatusPending }
    o.Items = append([]model.OrderItem(nil), o.Items...)
    m.orders[o.ID] = o
    m.byTen[o.TenantID] = append(m.byTen[o.TenantID], o.ID)
    return o, nil
}

func (m *Memory) UpdateOrderUpstream(ctx context.Context, tenantID, id, status, upstreamID, upstreamErr string) (model.Order, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    o, ok := m.orders[id]
    if !ok || o.TenantID != tenantID { return model.Order{}, ErrNotFound }
    o.Status = status
    o.UpstreamID = upstreamID
    o.UpstreamError = upstreamErr
    m.orders[id] = o
    return o, nil
}

func (m *Memory) ListOrders(ctx context.Context, tenantID, cursor string, limit int) ([]model.Order, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit)
    ids := m.byTen[tenantID]
    start := 0
    if cursor != "" {
        start = -1
        for i := range ids { if ids[i] == cursor { start = i+1; break } }
        if start < 0 { return []model.Order{}, "", nil }
    }
    end := start + limit
    if end > len(ids) { end = len(ids) }
    out := make([]model.Order, 0, end-start)
    for _, id := range ids[start:end] { out = append(out, m.orders[id]) }
    next := ""
    if end < len(ids) { next = ids[end-1] }
    return out, next, nil
}
