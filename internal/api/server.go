// Package api implements the HTTP surface of the storefront webhook and Dr. Green service.
package api

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "net/http"

    "storefront/internal/auth"
    "storefront/internal/config"
    "storefront/internal/credentials"
    "storefront/internal/drgreen"
    "storefront/internal/model"
    "storefront/internal/orders"
    "storefront/internal/secrets"
    "storefront/internal/store"
    "storefront/internal/webhooks"
)

// Webhooks is the part of the dispatcher the handlers use.
type Webhooks interface {
    Trigger(ctx context.Context, eventType string, tenantID *string, data map[string]any)
    Send(ctx context.Context, sub model.Subscription, eventType string, data map[string]any)
}

type Server struct {
    Store   store.Store
    Hooks   Webhooks
    Auth    *auth.Verifier
    Broker  EventBroker
    Creds   *credentials.Resolver
    DrGreen *drgreen.Client
    Orders  *orders.Service
    Config  config.Config
    Log     *slog.Logger

    closers []func()
}

// NewServer wires the service from cfg. An empty DATABASE_URL selects the
// in-memory store; REDIS_URL selects the Redis-backed delivery feed.
func NewServer(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
    if log == nil { log = slog.Default() }
    s := &Server{Config: cfg, Log: log}

    if cfg.Database.URL == "" {
        s.Store = store.NewMemory()
    } else {
        pg, err := store.NewPostgres(cfg.Database.URL)
        if err != nil { return nil, err }
        if cfg.Database.Migrate {
            if err := pg.Migrate(ctx); err != nil {
                _ = pg.Close()
                return nil, fmt.Errorf("migrate: %w", err)
            }
        }
        s.Store = pg
        s.closers = append(s.closers, func() { _ = pg.Close() })
    }

    if cfg.Redis.URL != "" {
        rb, err := NewRedisBroker(cfg.Redis.URL, log)
        if err != nil {
            log.Warn("redis broker unavailable, using in-process feed", "err", err)
            s.Broker = NewBroker()
        } else {
            s.Broker = rb
        }
    } else {
        s.Broker = NewBroker()
    }

    verifier, err := auth.NewVerifier(cfg.Auth)
    if err != nil { return nil, err }
    s.Auth = verifier

    dispatcher := webhooks.NewDispatcher(s.Store, webhooks.Config{
        Timeout:     cfg.Webhooks.Timeout,
        MaxAttempts: cfg.Webhooks.MaxAttempts,
        UserAgent:   cfg.Webhooks.UserAgent,
        Logger:      log,
        OnDelivery: func(d model.Delivery) {
            s.Broker.Publish(feedKey(d.TenantID), FeedEvent{Type: feedEventDelivery, Delivery: d})
        },
    })
    s.Hooks = dispatcher
    // Pending retries are cancelled before the broker and store go away.
    s.closers = append([]func(){dispatcher.Close, func() { _ = s.Broker.Close() }}, s.closers...)

    key := cfg.Secrets.EncryptionKey
    if key == "" {
        if cfg.IsProduction() {
            return nil, errors.New("CREDENTIALS_ENCRYPTION_KEY is required in production")
        }
        if key, err = secrets.GenerateKey(); err != nil { return nil, err }
        log.Warn("no credentials encryption key configured; using an ephemeral key")
    }
    cipher, err := secrets.NewCipher(key)
    if err != nil { return nil, err }
    s.Creds = credentials.NewResolver(s.Store, cipher)

    s.DrGreen, err = drgreen.New(drgreen.Config{
        BaseURL:   cfg.DrGreen.BaseURL,
        Timeout:   cfg.DrGreen.Timeout,
        RateLimit: cfg.DrGreen.RateLimit,
        Burst:     cfg.DrGreen.Burst,
        Breaker: drgreen.BreakerConfig{
            Enabled:      cfg.DrGreen.BreakerEnabled,
            MinRequests:  uint32(cfg.DrGreen.BreakerMinRequests),
            FailureRatio: cfg.DrGreen.BreakerFailureRatio,
            OpenTimeout:  cfg.DrGreen.BreakerOpenTimeout,
        },
        Logger: log,
    })
    if err != nil { return nil, err }

    s.Orders = orders.NewService(s.Store, s.Creds, s.DrGreen, s.Hooks, log)
    return s, nil
}

// Close stops pending webhook retries and releases the broker and store.
func (s *Server) Close() {
    for _, c := range s.closers { c() }
    s.closers = nil
}

// Routes returns the service mux wrapped in logging and metrics middleware.
func (s *Server) Routes() http.Handler {
    mux := http.NewServeMux()

    // Subscriptions
    mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler) // includes /test

    // Orders
    mux.HandleFunc("/v1/orders", s.OrdersHandler)

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/stream", s.WebhookDeliveryStreamHandler)
    mux.HandleFunc("/v1/admin/drgreen/credentials", s.DrGreenCredentialsHandler)
    mux.HandleFunc("/v1/admin/drgreen/clients/", s.DrGreenClientHandler)

    // Health
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", metricsHandler())
    mux.HandleFunc("/debug/config", s.DebugJSON)

    return s.logMiddleware(metricsMiddleware(mux))
}
