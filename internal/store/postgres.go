package store

import (
    "context"
    "database/sql"
    "embed"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "sort"
    "strings"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "storefront/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        _ = db.Close()
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded migrations that have not run yet, in file name order.
func (p *Postgres) Migrate(ctx context.Context) error {
    if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
        return fmt.Errorf("create schema_migrations: %w", err)
    }
    names, err := fs.Glob(migrationsFS, "migrations/*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, name := range names {
        var seen string
        err := p.db.QueryRowContext(ctx, `SELECT name FROM schema_migrations WHERE name=$1`, name).Scan(&seen)
        if err == nil { continue }
        if !errors.Is(err, sql.ErrNoRows) { return err }
        body, err := migrationsFS.ReadFile(name)
        if err != nil { return err }
        tx, err := p.db.BeginTx(ctx, nil)
        if err != nil { return err }
        if _, err := tx.ExecContext(ctx, string(body)); err != nil {
            _ = tx.Rollback()
            return fmt.Errorf("migration %s: %w", name, err)
        }
        if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
            _ = tx.Rollback()
            return err
        }
        if err := tx.Commit(); err != nil { return err }
    }
    return nil
}

const subColumns = `id::text, tenant_id, url, events, secret, description, is_active, created_at, updated_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanSubscription(row rowScanner) (model.Subscription, error) {
    var s model.Subscription
    var tenant sql.NullString
    var events []byte
    if err := row.Scan(&s.ID, &tenant, &s.URL, &events, &s.Secret, &s.Description, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
        return model.Subscription{}, err
    }
    s.TenantID = fromNullString(tenant)
    if err := json.Unmarshal(events, &s.Events); err != nil {
        return model.Subscription{}, fmt.Errorf("decode events: %w", err)
    }
    return s, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
    if sub.ID == "" { sub.ID = uuid.New().String() }
    ev, err := json.Marshal(sub.Events)
    if err != nil { return model.Subscription{}, err }
    row := p.db.QueryRowContext(ctx, `INSERT INTO webhook_subscriptions (id, tenant_id, url, events, secret, description, is_active)
        VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+subColumns,
        sub.ID, nullTenant(sub.TenantID), sub.URL, string(ev), sub.Secret, sub.Description, sub.Active)
    return scanSubscription(row)
}

func (p *Postgres) GetSubscription(ctx context.Context, id string) (model.Subscription, error) {
    if _, err := uuid.Parse(id); err != nil { return model.Subscription{}, ErrNotFound }
    s, err := scanSubscription(p.db.QueryRowContext(ctx, `SELECT `+subColumns+` FROM webhook_subscriptions WHERE id=$1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Subscription{}, ErrNotFound }
    return s, err
}

func (p *Postgres) UpdateSubscription(ctx context.Context, tenantID *string, id string, patch model.SubscriptionPatch) (model.Subscription, error) {
    if _, err := uuid.Parse(id); err != nil { return model.Subscription{}, ErrNotFound }
    sets := []string{"updated_at=now()"}
    args := []any{id, nullTenant(tenantID)}
    add := func(col string, v any) {
        args = append(args, v)
        sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
    }
    if patch.URL != nil { add("url", *patch.URL) }
    if patch.Events != nil {
        ev, err := json.Marshal(*patch.Events)
        if err != nil { return model.Subscription{}, err }
        add("events", string(ev))
    }
    if patch.Description != nil { add("description", *patch.Description) }
    if patch.Active != nil { add("is_active", *patch.Active) }
    q := `UPDATE webhook_subscriptions SET ` + strings.Join(sets, ", ") +
        ` WHERE id=$1 AND tenant_id IS NOT DISTINCT FROM $2::text RETURNING ` + subColumns
    s, err := scanSubscription(p.db.QueryRowContext(ctx, q, args...))
    if errors.Is(err, sql.ErrNoRows) { return model.Subscription{}, ErrNotFound }
    return s, err
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID *string, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `DELETE FROM webhook_subscriptions WHERE id=$1 AND tenant_id IS NOT DISTINCT FROM $2::text`, id, nullTenant(tenantID))
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID *string, cursor string, limit int) ([]model.Subscription, string, error) {
    limit = clampLimit(limit)
    var rows *sql.Rows
    var err error
    if cursor != "" {
        if _, perr := uuid.Parse(cursor); perr != nil { return []model.Subscription{}, "", nil }
        rows, err = p.db.QueryContext(ctx, `SELECT `+subColumns+` FROM webhook_subscriptions
            WHERE tenant_id IS NOT DISTINCT FROM $1::text AND (created_at, id) > (SELECT created_at, id FROM webhook_subscriptions WHERE id=$2)
            ORDER BY created_at, id LIMIT $3`, nullTenant(tenantID), cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+subColumns+` FROM webhook_subscriptions WHERE tenant_id IS NOT DISTINCT FROM $1::text ORDER BY created_at, id LIMIT $2`, nullTenant(tenantID), limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        s, err := scanSubscription(rows)
        if err != nil { return nil, "", err }
        out = append(out, s)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID *string, eventType string) ([]model.Subscription, error) {
    want, _ := json.Marshal([]string{eventType})
    rows, err := p.db.QueryContext(ctx, `SELECT `+subColumns+` FROM webhook_subscriptions
        WHERE is_active AND tenant_id IS NOT DISTINCT FROM $1::text AND events @> $2::jsonb ORDER BY created_at`, nullTenant(tenantID), string(want))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        s, err := scanSubscription(rows)
        if err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

// Delivery log
func (p *Postgres) InsertDelivery(ctx context.Context, d model.Delivery) (string, error) {
    if d.ID == "" { d.ID = uuid.New().String() }
    var code any
    if d.StatusCode != nil { code = *d.StatusCode }
    payload := []byte(d.Payload)
    if payload == nil { payload = []byte{} }
    _, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, tenant_id, event_type, payload, status_code, response, success, attempt, latency_ms)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
        d.ID, d.SubscriptionID, nullTenant(d.TenantID), d.EventType, payload, code, d.Response, d.Success, d.Attempt, d.LatencyMs)
    if err != nil { return "", err }
    return d.ID, nil
}

func (p *Postgres) ListDeliveries(ctx context.Context, f model.DeliveryFilter, cursor string, limit int) ([]model.Delivery, string, error) {
    limit = clampLimit(limit)
    where := []string{"tenant_id IS NOT DISTINCT FROM $1::text"}
    args := []any{nullTenant(f.TenantID)}
    add := func(cond string, v any) {
        args = append(args, v)
        where = append(where, fmt.Sprintf(cond, len(args)))
    }
    if f.SubscriptionID != "" {
        if _, err := uuid.Parse(f.SubscriptionID); err != nil { return []model.Delivery{}, "", nil }
        add("subscription_id=$%d", f.SubscriptionID)
    }
    if f.EventType != "" { add("event_type=$%d", f.EventType) }
    if f.Success != nil { add("success=$%d", *f.Success) }
    if cursor != "" {
        if _, err := uuid.Parse(cursor); err != nil { return []model.Delivery{}, "", nil }
        add("(created_at, id) < (SELECT created_at, id FROM webhook_deliveries WHERE id=$%d)", cursor)
    }
    args = append(args, limit)
    q := fmt.Sprintf(`SELECT id::text, subscription_id::text, tenant_id, event_type, payload, status_code, response, success, attempt, latency_ms, created_at
        FROM webhook_deliveries WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`, strings.Join(where, " AND "), len(args))
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Delivery{}
    for rows.Next() {
        var d model.Delivery
        var tenant sql.NullString
        var code sql.NullInt64
        var payload []byte
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &tenant, &d.EventType, &payload, &code, &d.Response, &d.Success, &d.Attempt, &d.LatencyMs, &d.CreatedAt); err != nil {
            return nil, "", err
        }
        d.TenantID = fromNullString(tenant)
        if len(payload) > 0 { d.Payload = payload }
        if code.Valid { c := int(code.Int64); d.StatusCode = &c }
        out = append(out, d)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

// Credentials
func (p *Postgres) GetTenantCredentials(ctx context.Context, tenantID string) (model.EncryptedCredentials, error) {
    c := model.EncryptedCredentials{TenantID: tenantID}
    err := p.db.QueryRowContext(ctx, `SELECT api_key, secret_key, updated_at FROM tenant_drgreen_credentials WHERE tenant_id=$1`, tenantID).
        Scan(&c.APIKey, &c.SecretKey, &c.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) { return model.EncryptedCredentials{}, ErrNotFound }
    return c, err
}

func (p *Postgres) SaveTenantCredentials(ctx context.Context, c model.EncryptedCredentials) error {
    _, err := p.db.ExecContext(ctx, `INSERT INTO tenant_drgreen_credentials (tenant_id, api_key, secret_key, updated_at) VALUES ($1,$2,$3,now())
        ON CONFLICT (tenant_id) DO UPDATE SET api_key=EXCLUDED.api_key, secret_key=EXCLUDED.secret_key, updated_at=now()`,
        c.TenantID, c.APIKey, c.SecretKey)
    return err
}

// Orders
func (p *Postgres) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
    if o.ID == "" { o.ID = uuid.New().String() }
    if o.Status == "" { o.Status = model.OrderStatusPending }
    items, err := json.Marshal(o.Items)
    if err != nil { return model.Order{}, err }
    err = p.db.QueryRowContext(ctx, `INSERT INTO orders (id, tenant_id, client_id, items, status) VALUES ($1,$2,$3,$4,$5) RETURNING created_at`,
        o.ID, o.TenantID, o.ClientID, string(items), o.Status).Scan(&o.CreatedAt)
    if err != nil { return model.Order{}, err }
    return o, nil
}

const orderColumns = `id::text, tenant_id, client_id, items, status, upstream_id, upstream_error, created_at`

func scanOrder(row rowScanner) (model.Order, error) {
    var o model.Order
    var items []byte
    if err := row.Scan(&o.ID, &o.TenantID, &o.ClientID, &items, &o.Status, &o.UpstreamID, &o.UpstreamError, &o.CreatedAt); err != nil {
        return model.Order{}, err
    }
    if err := json.Unmarshal(items, &o.Items); err != nil { return model.Order{}, err }
    return o, nil
}

func (p *Postgres) UpdateOrderUpstream(ctx context.Context, tenantID, id, status, upstreamID, upstreamErr string) (model.Order, error) {
    o, err := scanOrder(p.db.QueryRowContext(ctx, `UPDATE orders SET status=$3, upstream_id=$4, upstream_error=$5 WHERE tenant_id=$1 AND id=$2 RETURNING `+orderColumns,
        tenantID, id, status, upstreamID, upstreamErr))
    if errors.Is(err, sql.ErrNoRows) { return model.Order{}, ErrNotFound }
    return o, err
}

func (p *Postgres) ListOrders(ctx context.Context, tenantID, cursor string, limit int) ([]model.Order, string, error) {
    limit = clampLimit(limit)
    var rows *sql.Rows
    var err error
    if cursor != "" {
        if _, perr := uuid.Parse(cursor); perr != nil { return []model.Order{}, "", nil }
        rows, err = p.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders
            WHERE tenant_id=$1 AND (created_at, id) > (SELECT created_at, id FROM orders WHERE id=$2)
            ORDER BY created_at, id LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE tenant_id=$1 ORDER BY created_at, id LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Order{}
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil { return nil, "", err }
        out = append(out, o)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

// Helpers
func nullTenant(t *string) any { if t == nil { return nil }; return *t }

func fromNullString(s sql.NullString) *string {
    if !s.Valid { return nil }
    v := s.String
    return &v
}
