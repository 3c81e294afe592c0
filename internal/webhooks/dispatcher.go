package webhooks

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"storefront/internal/model"
)

// Store is the persistence the dispatcher needs: subscription lookups and the
// append-only delivery log.
type Store interface {
	GetSubscriptionsForEvent(ctx context.Context, tenantID *string, eventType string) ([]model.Subscription, error)
	GetSubscription(ctx context.Context, id string) (model.Subscription, error)
	InsertDelivery(ctx context.Context, d model.Delivery) (string, error)
}

const (
	DefaultMaxAttempts = 3
	DefaultUserAgent   = "Storefront-Webhooks/1.0"
	// MaxResponseChars bounds the response excerpt kept in the delivery log.
	MaxResponseChars = 1000

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Config tunes a Dispatcher. Zero values select the defaults.
type Config struct {
	Timeout     time.Duration
	MaxAttempts int
	UserAgent   string
	// Backoff returns the wait before the attempt following attempt n.
	Backoff func(attempt int) time.Duration
	Retries Scheduler
	HTTP    *http.Client
	Logger  *slog.Logger
	// OnDelivery observes every logged attempt.
	OnDelivery func(model.Delivery)
}

// Dispatcher fans business events out to subscribed endpoints.
type Dispatcher struct {
	store       Store
	http        *http.Client
	retries     Scheduler
	ownRetries  *RetryScheduler
	backoff     func(int) time.Duration
	maxAttempts int
	userAgent   string
	log         *slog.Logger
	onDelivery  func(model.Delivery)
	now         func() time.Time
}

func NewDispatcher(s Store, cfg Config) *Dispatcher {
	d := &Dispatcher{
		store:       s,
		http:        cfg.HTTP,
		retries:     cfg.Retries,
		backoff:     cfg.Backoff,
		maxAttempts: cfg.MaxAttempts,
		userAgent:   cfg.UserAgent,
		log:         cfg.Logger,
		onDelivery:  cfg.OnDelivery,
		now:         time.Now,
	}
	if d.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		d.http = &http.Client{Timeout: timeout}
	}
	if d.retries == nil {
		d.ownRetries = NewRetryScheduler()
		d.retries = d.ownRetries
	}
	if d.backoff == nil {
		d.backoff = ExponentialBackoff
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = DefaultMaxAttempts
	}
	if d.userAgent == "" {
		d.userAgent = DefaultUserAgent
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.log = d.log.With("component", "webhooks")
	return d
}

// ExponentialBackoff waits 2^attempt seconds: 2s after the first attempt, 4s after the second.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		attempt = 10
	}
	return time.Duration(1<<attempt) * time.Second
}

// Close cancels retries still waiting on a scheduler the dispatcher created itself.
func (d *Dispatcher) Close() {
	if d.ownRetries != nil {
		d.ownRetries.Close()
	}
}

// Trigger delivers eventType to every active subscription of tenantID (nil for
// platform events) that lists it. First attempts run concurrently and Trigger
// waits for them; retries run later on the scheduler. Failures are logged,
// never returned, so a webhook problem cannot fail the calling mutation.
func (d *Dispatcher) Trigger(ctx context.Context, eventType string, tenantID *string, data map[string]any) {
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("webhook dispatch panicked", "event", eventType, "panic", r)
		}
	}()
	subs, err := d.store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		d.log.Error("webhook subscription lookup failed", "event", eventType, "err", err)
		return
	}
	if len(subs) == 0 {
		return
	}
	body, err := d.envelope(eventType, tenantID, data)
	if err != nil {
		d.log.Error("webhook envelope encode failed", "event", eventType, "err", err)
		return
	}
	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			d.deliver(ctx, id, eventType, body, 1)
		}(s.ID)
	}
	wg.Wait()
}

// Send delivers one event to a single subscription regardless of its
// interests, with the same retry policy as Trigger. Used for test pings.
func (d *Dispatcher) Send(ctx context.Context, sub model.Subscription, eventType string, data map[string]any) {
	ctx = context.WithoutCancel(ctx)
	body, err := d.envelope(eventType, sub.TenantID, data)
	if err != nil {
		d.log.Error("webhook envelope encode failed", "event", eventType, "err", err)
		return
	}
	d.deliver(ctx, sub.ID, eventType, body, 1)
}

func (d *Dispatcher) envelope(eventType string, tenantID *string, data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(model.Envelope{
		Event:     eventType,
		TenantID:  tenantID,
		Data:      data,
		Timestamp: d.now().UTC().Format(timestampLayout),
	})
}
