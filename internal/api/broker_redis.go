package api

import (
    "context"
    "encoding/json"
    "log/slog"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis Pub/Sub so every API instance
// sees deliveries made by any other.
type RedisBroker struct {
    rdb *redis.Client
    log *slog.Logger

    mu   sync.Mutex
    subs map[chan FeedEvent]*redis.PubSub
}

func NewRedisBroker(url string, log *slog.Logger) (*RedisBroker, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    if log == nil { log = slog.Default() }
    return &RedisBroker{rdb: redis.NewClient(opt), log: log, subs: map[chan FeedEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error { return b.rdb.Ping(ctx).Err() }

func (b *RedisBroker) Subscribe(key string) chan FeedEvent {
    ch := make(chan FeedEvent, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(key))
    // initial receive confirms the subscription
    if _, err := ps.Receive(ctx); err != nil {
        b.log.Warn("redis feed subscribe failed", "key", key, "err", err)
    }
    b.mu.Lock()
    b.subs[ch] = ps
    b.mu.Unlock()
    go func() {
        defer close(ch)
        for msg := range ps.Channel() {
            var evt FeedEvent
            if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
                select { case ch <- evt: default: }
            }
        }
    }()
    return ch
}

// Unsubscribe closes the Pub/Sub; the forwarding goroutine then closes ch.
func (b *RedisBroker) Unsubscribe(key string, ch chan FeedEvent) {
    b.mu.Lock()
    ps := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    if ps != nil { _ = ps.Close() }
}

func (b *RedisBroker) Publish(key string, evt FeedEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, err := json.Marshal(evt)
    if err != nil { return }
    if err := b.rdb.Publish(ctx, b.chanName(key), data).Err(); err != nil {
        b.log.Warn("redis feed publish failed", "key", key, "err", err)
    }
}

func (b *RedisBroker) Close() error {
    b.mu.Lock()
    for ch, ps := range b.subs {
        _ = ps.Close()
        delete(b.subs, ch)
    }
    b.mu.Unlock()
    return b.rdb.Close()
}

func (b *RedisBroker) chanName(key string) string { return "webhook-deliveries:" + key }
