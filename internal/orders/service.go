package orders

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "strings"

    "storefront/internal/drgreen"
    "storefront/internal/model"
)

// ErrInvalid marks a rejected order request.
var ErrInvalid = errors.New("invalid order")

type Store interface {
    CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
    UpdateOrderUpstream(ctx context.Context, tenantID, id, status, upstreamID, upstreamErr string) (model.Order, error)
    ListOrders(ctx context.Context, tenantID, cursor string, limit int) ([]model.Order, string, error)
}

type Credentials interface {
    Resolve(ctx context.Context, tenantID string) (drgreen.Credentials, error)
}

type Upstream interface {
    CreateOrder(ctx context.Context, creds drgreen.Credentials, in drgreen.OrderInput) (drgreen.OrderRecord, error)
}

// Notifier publishes business events; webhooks.Dispatcher satisfies it.
type Notifier interface {
    Trigger(ctx context.Context, eventType string, tenantID *string, data map[string]any)
}

// Service records orders locally, forwards them to Dr. Green and announces
// them to webhook subscribers. An upstream failure does not fail the order:
// it is kept with status upstream_failed and a message fit for the customer.
type Service struct {
    store    Store
    creds    Credentials
    upstream Upstream
    notify   Notifier
    log      *slog.Logger
}

func NewService(s Store, c Credentials, u Upstream, n Notifier, log *slog.Logger) *Service {
    if log == nil { log = slog.Default() }
    return &Service{store: s, creds: c, upstream: u, notify: n, log: log.With("component", "orders")}
}

func validate(req model.OrderRequest) error {
    if strings.TrimSpace(req.ClientID) == "" {
        return fmt.Errorf("%w: clientId is required", ErrInvalid)
    }
    if len(req.Items) == 0 {
        return fmt.Errorf("%w: at least one item is required", ErrInvalid)
    }
    for i, it := range req.Items {
        if strings.TrimSpace(it.StrainID) == "" {
            return fmt.Errorf("%w: items[%d].strainId is required", ErrInvalid, i)
        }
        if it.Quantity <= 0 {
            return fmt.Errorf("%w: items[%d].quantity must be positive", ErrInvalid, i)
        }
    }
    return nil
}

// Place creates the order. Only validation and local storage errors are returned.
func (s *Service) Place(ctx context.Context, tenantID string, req model.OrderRequest) (model.Order, error) {
    if err := validate(req); err != nil {
        return model.Order{}, err
    }
    o, err := s.store.CreateOrder(ctx, model.Order{TenantID: tenantID, ClientID: req.ClientID, Items: req.Items, Status: model.OrderStatusPending})
    if err != nil {
        return model.Order{}, fmt.Errorf("create order: %w", err)
    }

    rec, upErr := s.submit(ctx, tenantID, o)
    if upErr != nil {
        s.log.Warn("upstream order submission failed", "tenant", tenantID, "order", o.ID, "err", upErr)
        o, err = s.store.UpdateOrderUpstream(ctx, tenantID, o.ID, model.OrderStatusUpstreamFailed, "", drgreen.FriendlyMessage(upErr))
    } else {
        o, err = s.store.UpdateOrderUpstream(ctx, tenantID, o.ID, model.OrderStatusSubmitted, rec.ID, "")
    }
    if err != nil {
        return model.Order{}, fmt.Errorf("update order: %w", err)
    }

    tid := tenantID
    data := map[string]any{"orderId": o.ID, "clientId": o.ClientID, "status": o.Status, "items": len(o.Items)}
    s.notify.Trigger(ctx, model.EventOrderCreated, &tid, data)
    if upErr == nil {
        s.notify.Trigger(ctx, model.EventDrGreenOrderCreated, &tid, map[string]any{"orderId": o.ID, "upstreamId": rec.ID})
    }
    return o, nil
}

func (s *Service) submit(ctx context.Context, tenantID string, o model.Order) (drgreen.OrderRecord, error) {
    creds, err := s.creds.Resolve(ctx, tenantID)
    if err != nil {
        return drgreen.OrderRecord{}, err
    }
    in := drgreen.OrderInput{ClientID: o.ClientID}
    for _, it := range o.Items {
        in.Items = append(in.Items, drgreen.OrderLine{StrainID: it.StrainID, Quantity: it.Quantity, Price: it.Price})
    }
    return s.upstream.CreateOrder(ctx, creds, in)
}

func (s *Service) List(ctx context.Context, tenantID, cursor string, limit int) ([]model.Order, string, error) {
    return s.store.ListOrders(ctx, tenantID, cursor, limit)
}
