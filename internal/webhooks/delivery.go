package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/store"
)

// deliveryFailure describes an unsuccessful attempt. It drives retries and
// logging and never leaves the package.
type deliveryFailure struct {
	StatusCode int
	Err        error
}

func (f *deliveryFailure) Error() string {
	if f.Err != nil {
		return "webhook delivery: " + f.Err.Error()
	}
	return fmt.Sprintf("webhook delivery: endpoint returned %d", f.StatusCode)
}

func (f *deliveryFailure) Unwrap() error { return f.Err }

// deliver runs attempt number `attempt` for one subscription and, on failure,
// schedules the next one. The subscription is re-read first so that a
// subscription disabled or deleted in the meantime receives nothing.
func (d *Dispatcher) deliver(ctx context.Context, subID, eventType string, body []byte, attempt int) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("webhook delivery panicked", "subscription", subID, "panic", r)
		}
	}()
	sub, err := d.store.GetSubscription(ctx, subID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			d.log.Error("webhook subscription reload failed", "subscription", subID, "err", err)
		}
		return
	}
	if !sub.Active {
		return
	}

	rec, err := d.attempt(ctx, sub, eventType, body)
	rec.Attempt = attempt
	d.record(ctx, rec)

	if err == nil {
		return
	}
	if attempt >= d.maxAttempts {
		d.log.Warn("webhook delivery exhausted", "subscription", subID, "event", eventType, "attempts", attempt, "err", err)
		return
	}
	wait := d.backoff(attempt)
	d.log.Info("webhook delivery failed, retrying", "subscription", subID, "event", eventType, "attempt", attempt, "retryIn", wait, "err", err)
	if !d.retries.Schedule(wait, func(rctx context.Context) {
		d.deliver(rctx, subID, eventType, body, attempt+1)
	}) {
		d.log.Warn("webhook retry rejected", "subscription", subID, "event", eventType, "attempt", attempt+1)
	}
}

// attempt performs one signed POST and returns the log record for it.
func (d *Dispatcher) attempt(ctx context.Context, sub model.Subscription, eventType string, body []byte) (model.Delivery, error) {
	rec := model.Delivery{
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		EventType:      eventType,
		Payload:        append([]byte(nil), body...),
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		rec.Response = err.Error()
		return rec, &deliveryFailure{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, SignHMAC(sub.Secret, body))
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set("User-Agent", d.userAgent)

	start := time.Now()
	resp, err := d.http.Do(req)
	rec.LatencyMs = int(time.Since(start).Milliseconds())
	if err != nil {
		rec.Response = truncate(err.Error(), MaxResponseChars)
		return rec, &deliveryFailure{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	// UTF-8 needs at most 4 bytes per character.
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseChars*4))
	code := resp.StatusCode
	rec.StatusCode = &code
	rec.Response = truncate(string(excerpt), MaxResponseChars)
	if code < 200 || code >= 300 {
		return rec, &deliveryFailure{StatusCode: code}
	}
	rec.Success = true
	return rec, nil
}

// record persists the attempt and reports it. Errors are logged only.
func (d *Dispatcher) record(ctx context.Context, rec model.Delivery) {
	status := "failed"
	if rec.Success {
		status = "success"
	}
	metrics.WebhookDeliveries.WithLabelValues(rec.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(rec.EventType, status).Observe(float64(rec.LatencyMs))

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = d.now().UTC()
	}
	id, err := d.store.InsertDelivery(ctx, rec)
	if err != nil {
		d.log.Error("webhook delivery log write failed", "subscription", rec.SubscriptionID, "attempt", rec.Attempt, "err", err)
		return
	}
	rec.ID = id
	if d.onDelivery != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("delivery observer panicked", "panic", r)
				}
			}()
			d.onDelivery(rec)
		}()
	}
	d.log.Debug("webhook delivery logged", "subscription", rec.SubscriptionID, "event", rec.EventType,
		"attempt", rec.Attempt, "status", statusText(rec.StatusCode), "success", rec.Success)
}

func statusText(code *int) string {
	if code == nil {
		return "none"
	}
	return strconv.Itoa(*code)
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
