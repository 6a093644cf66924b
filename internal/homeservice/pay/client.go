package pay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"fixitBack/internal/homeservice/pricing"
)

// ErrUnsuccessful is returned when the gateway answers but refuses the order.
var ErrUnsuccessful = errors.New("pay: unsuccessful response")

// Provider is the payment gateway as seen by the payments service.
type Provider interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	VerifyPayment(orderID, paymentID, signature string) bool
	VerifyWebhook(body []byte, signature string) bool
}

// Config holds gateway credentials.
type Config struct {
	Name          string
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	MaxRetries    uint64
}

// OrderRequest describes an order to open at the gateway.
type OrderRequest struct {
	Receipt  string
	Amount   decimal.Decimal
	Currency string
	Notes    map[string]string
}

// Order is the gateway's view of an opened order.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Client is a minimal orders API client.
type Client struct {
	httpClient *http.Client
	cfg        Config
	newBackOff func() backoff.BackOff
}

// NewClient constructs a gateway client.
func NewClient(httpClient *http.Client, cfg Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Name == "" {
		cfg.Name = "gateway"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{httpClient: httpClient, cfg: cfg}
	c.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxElapsedTime = 5 * time.Second
		return backoff.WithMaxRetries(b, c.cfg.MaxRetries)
	}
	return c
}

// Name identifies the provider in stored payments.
func (c *Client) Name() string { return c.cfg.Name }

// CreateOrder opens an order. Transport errors and 5xx answers are retried
// with exponential backoff; 4xx answers fail immediately.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	payload := map[string]interface{}{
		"amount":   pricing.MinorUnits(req.Amount),
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		payload["notes"] = req.Notes
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Order{}, err
	}

	var order Order
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/orders", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Signature", Sign(body, c.cfg.KeySecret))
		httpReq.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("pay: unexpected status %s", resp.Status)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("pay: unexpected status %s", resp.Status))
		}
		if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
			return backoff.Permanent(err)
		}
		if order.ID == "" {
			return backoff.Permanent(ErrUnsuccessful)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return Order{}, err
	}
	return order, nil
}

// VerifyPayment checks the checkout signature over "orderID|paymentID".
func (c *Client) VerifyPayment(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" {
		return false
	}
	return VerifyHMAC([]byte(orderID+"|"+paymentID), signature, c.cfg.KeySecret)
}

// VerifyWebhook checks a webhook body against the webhook secret.
func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	return VerifyHMAC(body, signature, c.cfg.WebhookSecret)
}
