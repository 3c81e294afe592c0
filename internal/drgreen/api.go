package drgreen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// envelope is the upstream response wrapper: {"success": bool, "message": "...", "data": {...}}.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type ClientRecord struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	IsKYCVerified bool   `json:"isKYCVerified"`
	AdminApproval string `json:"adminApproval"`
}

// Approved reports whether the client may place orders.
func (c ClientRecord) Approved() bool {
	return c.IsKYCVerified && c.AdminApproval == "VERIFIED"
}

type OrderLine struct {
	StrainID string  `json:"strainId"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
}

type OrderInput struct {
	ClientID string      `json:"clientId"`
	Items    []OrderLine `json:"items"`
}

type OrderRecord struct {
	ID            string      `json:"id"`
	ClientID      string      `json:"clientId"`
	Status        string      `json:"status"`
	PaymentStatus string      `json:"paymentStatus"`
	TotalAmount   float64     `json:"totalAmount"`
	Items         []OrderLine `json:"items"`
}

// GetClient fetches a patient record including its KYC state.
func (c *Client) GetClient(ctx context.Context, creds Credentials, clientID string) (ClientRecord, error) {
	var out ClientRecord
	err := c.call(ctx, creds, Request{Method: http.MethodGet, Path: "/dapp/clients/" + url.PathEscape(clientID)}, &out)
	return out, err
}

func (c *Client) CreateOrder(ctx context.Context, creds Credentials, in OrderInput) (OrderRecord, error) {
	var out OrderRecord
	err := c.call(ctx, creds, Request{Method: http.MethodPost, Path: "/dapp/orders", Body: in}, &out)
	return out, err
}

func (c *Client) GetOrder(ctx context.Context, creds Credentials, orderID string) (OrderRecord, error) {
	var out OrderRecord
	err := c.call(ctx, creds, Request{Method: http.MethodGet, Path: "/dapp/orders/" + url.PathEscape(orderID)}, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, creds Credentials, req Request, out any) error {
	req.RequireSuccess = true
	resp, err := c.Do(ctx, req, creds)
	if err != nil {
		return err
	}
	var env envelope
	if err := resp.Decode(&env); err != nil {
		return fmt.Errorf("drgreen: decode %s: %w", req.Path, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("drgreen: decode %s data: %w", req.Path, err)
	}
	return nil
}
