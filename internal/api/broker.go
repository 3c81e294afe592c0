package api

import (
    "sync"

    "storefront/internal/model"
)

// FeedEvent is one message on the live delivery feed.
type FeedEvent struct {
    Type     string         `json:"type"`
    Delivery model.Delivery `json:"delivery"`
}

const feedEventDelivery = "webhook.delivery"

// feedKey names the feed a tenant scope listens on; nil is the platform.
func feedKey(tenantID *string) string {
    if tenantID == nil { return "platform" }
    return "tenant:" + *tenantID
}

// EventBroker fans feed events out to live listeners, keyed by tenant scope.
type EventBroker interface {
    Subscribe(key string) chan FeedEvent
    Unsubscribe(key string, ch chan FeedEvent)
    Publish(key string, evt FeedEvent)
    Close() error
}

type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan FeedEvent]struct{}
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan FeedEvent]struct{}{}}
}

func (b *Broker) Subscribe(key string) chan FeedEvent {
    ch := make(chan FeedEvent, 16)
    b.mu.Lock()
    if b.subs[key] == nil { b.subs[key] = map[chan FeedEvent]struct{}{} }
    b.subs[key][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(key string, ch chan FeedEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[key]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, key) }
    close(ch)
}

// Publish never blocks: slow listeners miss events.
func (b *Broker) Publish(key string, evt FeedEvent) {
    b.mu.Lock()
    m := b.subs[key]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}

func (b *Broker) Close() error {
    b.mu.Lock()
    defer b.mu.Unlock()
    for key, m := range b.subs {
        for ch := range m { close(ch) }
        delete(b.subs, key)
    }
    return nil
}
