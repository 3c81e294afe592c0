package credentials

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "storefront/internal/drgreen"
    "storefront/internal/model"
    "storefront/internal/secrets"
    "storefront/internal/store"
)

// Store is the slice of persistence the resolver needs.
type Store interface {
    GetTenantCredentials(ctx context.Context, tenantID string) (model.EncryptedCredentials, error)
    SaveTenantCredentials(ctx context.Context, c model.EncryptedCredentials) error
}

// Resolver keeps tenants' Dr. Green key pairs encrypted at rest and hands out
// the decrypted pair only for an outbound call.
type Resolver struct {
    store  Store
    cipher *secrets.Cipher
    now    func() time.Time
}

func NewResolver(s Store, c *secrets.Cipher) *Resolver {
    return &Resolver{store: s, cipher: c, now: time.Now}
}

// Save encrypts and stores the pair for tenantID, replacing any previous one.
func (r *Resolver) Save(ctx context.Context, tenantID string, req model.CredentialsRequest) error {
    apiKey := strings.TrimSpace(req.APIKey)
    secretKey := strings.TrimSpace(req.SecretKey)
    if apiKey == "" {
        return &drgreen.MissingCredentialsError{Field: "apiKey"}
    }
    if secretKey == "" {
        return &drgreen.MissingCredentialsError{Field: "secretKey"}
    }
    encKey, err := r.cipher.Encrypt(apiKey, aad(tenantID, "apiKey"))
    if err != nil {
        return fmt.Errorf("encrypt api key: %w", err)
    }
    encSecret, err := r.cipher.Encrypt(secretKey, aad(tenantID, "secretKey"))
    if err != nil {
        return fmt.Errorf("encrypt secret key: %w", err)
    }
    return r.store.SaveTenantCredentials(ctx, model.EncryptedCredentials{
        TenantID:  tenantID,
        APIKey:    encKey,
        SecretKey: encSecret,
        UpdatedAt: r.now().UTC(),
    })
}

// Resolve returns the decrypted pair. A missing row, an empty field or a value
// that does not decrypt all match drgreen.ErrMissingCredentials.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (drgreen.Credentials, error) {
    enc, err := r.store.GetTenantCredentials(ctx, tenantID)
    if errors.Is(err, store.ErrNotFound) {
        return drgreen.Credentials{}, &drgreen.MissingCredentialsError{Field: "credentials"}
    }
    if err != nil {
        return drgreen.Credentials{}, fmt.Errorf("load credentials: %w", err)
    }
    apiKey, err := r.open(tenantID, "apiKey", enc.APIKey)
    if err != nil {
        return drgreen.Credentials{}, err
    }
    secretKey, err := r.open(tenantID, "secretKey", enc.SecretKey)
    if err != nil {
        return drgreen.Credentials{}, err
    }
    return drgreen.Credentials{APIKey: apiKey, SecretKey: secretKey}, nil
}

func (r *Resolver) open(tenantID, field, value string) (string, error) {
    if value == "" {
        return "", &drgreen.MissingCredentialsError{Field: field}
    }
    plain, err := r.cipher.Decrypt(value, aad(tenantID, field))
    if err != nil {
        return "", fmt.Errorf("%w: %w", &drgreen.MissingCredentialsError{Field: field}, err)
    }
    if plain == "" {
        return "", &drgreen.MissingCredentialsError{Field: field}
    }
    return plain, nil
}

func aad(tenantID, field string) string { return tenantID + ":" + field }
