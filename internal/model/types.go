package model

import (
    "encoding/json"
    "time"
)

// Event types delivered to webhook subscribers. The set is closed; subscriptions
// may only register interest in these values.
const (
    EventTenantCreated     = "tenant.created"
    EventTenantUpdated     = "tenant.updated"
    EventTenantActivated   = "tenant.activated"
    EventTenantDeactivated = "tenant.deactivated"

    EventProductCreated    = "product.created"
    EventProductUpdated    = "product.updated"
    EventProductDeleted    = "product.deleted"
    EventProductLowStock   = "product.low_stock"
    EventProductOutOfStock = "product.out_of_stock"

    EventOrderCreated   = "order.created"
    EventOrderConfirmed = "order.confirmed"
    EventOrderShipped   = "order.shipped"
    EventOrderDelivered = "order.delivered"
    EventOrderCancelled = "order.cancelled"

    EventConsultationSubmitted = "consultation.submitted"
    EventConsultationApproved  = "consultation.approved"
    EventConsultationRejected  = "consultation.rejected"

    EventDrGreenPaymentReceived = "drgreen.payment_received"
    EventDrGreenPaymentFailed   = "drgreen.payment_failed"
    EventDrGreenOrderCreated    = "drgreen.order_created"
    EventDrGreenOrderApproved   = "drgreen.order_approved"
)

var eventTypes = []string{
    EventTenantCreated, EventTenantUpdated, EventTenantActivated, EventTenantDeactivated,
    EventProductCreated, EventProductUpdated, EventProductDeleted, EventProductLowStock, EventProductOutOfStock,
    EventOrderCreated, EventOrderConfirmed, EventOrderShipped, EventOrderDelivered, EventOrderCancelled,
    EventConsultationSubmitted, EventConsultationApproved, EventConsultationRejected,
    EventDrGreenPaymentReceived, EventDrGreenPaymentFailed, EventDrGreenOrderCreated, EventDrGreenOrderApproved,
}

var eventTypeSet = func() map[string]struct{} {
    m := make(map[string]struct{}, len(eventTypes))
    for _, e := range eventTypes { m[e] = struct{}{} }
    return m
}()

// EventTypes returns every known event type in declaration order.
func EventTypes() []string { return append([]string(nil), eventTypes...) }

// IsEventType reports whether e belongs to the event enumeration.
func IsEventType(e string) bool {
    _, ok := eventTypeSet[e]
    return ok
}

// Subscription is a tenant's (or the platform's, when TenantID is nil) webhook registration.
type Subscription struct {
    ID          string    `json:"id"`
    TenantID    *string   `json:"tenantId"`
    URL         string    `json:"url"`
    Events      []string  `json:"events"`
    Secret      string    `json:"secret,omitempty"`
    Description string    `json:"description,omitempty"`
    Active      bool      `json:"isActive"`
    CreatedAt   time.Time `json:"createdAt"`
    UpdatedAt   time.Time `json:"updatedAt"`
}

// Subscribes reports whether the subscription lists eventType among its interests.
func (s Subscription) Subscribes(eventType string) bool {
    for _, e := range s.Events {
        if e == eventType { return true }
    }
    return false
}

// Masked returns a copy safe to show after creation: only the last four secret characters survive.
func (s Subscription) Masked() Subscription {
    out := s
    out.Events = append([]string(nil), s.Events...)
    if n := len(s.Secret); n > 4 {
        out.Secret = "whsec_****" + s.Secret[n-4:]
    } else if n > 0 {
        out.Secret = "whsec_****"
    }
    return out
}

type SubscriptionRequest struct {
    URL         string   `json:"url"`
    Events      []string `json:"events"`
    Description string   `json:"description"`
}

// SubscriptionPatch carries the mutable fields; nil means unchanged.
type SubscriptionPatch struct {
    URL         *string   `json:"url,omitempty"`
    Events      *[]string `json:"events,omitempty"`
    Description *string   `json:"description,omitempty"`
    Active      *bool     `json:"isActive,omitempty"`
}

// Envelope is the JSON body POSTed to subscribers.
type Envelope struct {
    Event     string         `json:"event"`
    TenantID  *string        `json:"tenantId"`
    Data      map[string]any `json:"data"`
    Timestamp string         `json:"timestamp"`
}

// Delivery is one logged attempt to deliver an envelope to a subscription.
type Delivery struct {
    ID             string          `json:"id"`
    SubscriptionID string          `json:"subscriptionId"`
    TenantID       *string         `json:"tenantId"`
    EventType      string          `json:"eventType"`
    Payload        json.RawMessage `json:"payload"`
    StatusCode     *int            `json:"statusCode"`
    Response       string          `json:"response,omitempty"`
    Success        bool            `json:"success"`
    Attempt        int             `json:"attempt"`
    LatencyMs      int             `json:"latencyMs"`
    CreatedAt      time.Time       `json:"createdAt"`
}

type DeliveryFilter struct {
    TenantID       *string
    SubscriptionID string
    EventType      string
    Success        *bool
}

// EncryptedCredentials is the at-rest form of a tenant's Dr. Green key pair.
type EncryptedCredentials struct {
    TenantID  string    `json:"tenantId"`
    APIKey    string    `json:"-"`
    SecretKey string    `json:"-"`
    UpdatedAt time.Time `json:"updatedAt"`
}

type CredentialsRequest struct {
    APIKey    string `json:"apiKey"`
    SecretKey string `json:"secretKey"`
}

// Order statuses recorded locally.
const (
    OrderStatusPending        = "pending"
    OrderStatusSubmitted      = "submitted"
    OrderStatusUpstreamFailed = "upstream_failed"
)

type OrderItem struct {
    StrainID string  `json:"strainId"`
    Quantity int     `json:"quantity"`
    Price    float64 `json:"price,omitempty"`
}

type OrderRequest struct {
    ClientID string      `json:"clientId"`
    Items    []OrderItem `json:"items"`
}

type Order struct {
    ID            string      `json:"id"`
    TenantID      string      `json:"tenantId"`
    ClientID      string      `json:"clientId"`
    Items         []OrderItem `json:"items"`
    Status        string      `json:"status"`
    UpstreamID    string      `json:"upstreamId,omitempty"`
    UpstreamError string      `json:"upstreamError,omitempty"`
    CreatedAt     time.Time   `json:"createdAt"`
}
