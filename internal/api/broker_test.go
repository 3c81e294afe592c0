package api

import (
    "testing"
    "time"

    "storefront/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    tenant := "t1"
    key := feedKey(&tenant)
    ch := b.Subscribe(key)
    other := b.Subscribe(feedKey(nil))

    evt := FeedEvent{Type: feedEventDelivery, Delivery: model.Delivery{ID: "d1", EventType: model.EventOrderCreated}}
    b.Publish(key, evt)

    select {
    case got := <-ch:
        if got.Delivery.ID != "d1" { t.Fatalf("bad payload: %+v", got) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }
    select {
    case got := <-other:
        t.Fatalf("platform feed received tenant event %+v", got)
    default:
    }

    b.Unsubscribe(key, ch)
    if _, ok := <-ch; ok { t.Fatal("channel should be closed after unsubscribe") }
    b.Unsubscribe(key, ch) // second call is a no-op
    _ = b.Close()
    if _, ok := <-other; ok { t.Fatal("close should close remaining channels") }
}
