package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"
)

var (
	ErrNotConfigured   = errors.New("paypal client is not configured")
	ErrAlreadyCaptured = errors.New("paypal order already captured")
)

// Config holds PayPal REST API configuration
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	Timeout      time.Duration
}

// APIError is a non-2xx PayPal answer
type APIError struct {
	StatusCode int
	Name       string `json:"name"`
	Message    string `json:"message"`
	Details    []struct {
		Issue string `json:"issue"`
	} `json:"details"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal api returned %d: %s %s", e.StatusCode, e.Name, e.Message)
}

func (e *APIError) hasIssue(issue string) bool {
	for _, d := range e.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

// Client is a minimal PayPal Orders v2 client
type Client struct {
	httpClient *http.Client
	config     Config

	mu        sync.Mutex
	token     string
	tokenTill time.Time
}

// NewClient creates new PayPal API client
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
	}
}

// Configured reports whether credentials are present
func (c *Client) Configured() bool {
	return c != nil && c.config.ClientID != "" && c.config.ClientSecret != ""
}

// CreateOrderRequest describes one purchase
type CreateOrderRequest struct {
	ReferenceID string
	Description string
	Amount      decimal.Decimal
	Currency    string
	ReturnURL   string
	CancelURL   string
}

// Order is the subset of the PayPal order we read
type Order struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// ApproveURL returns the buyer redirect link
func (o *Order) ApproveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// CreateOrder creates a CAPTURE-intent order
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("validation error: amount must be > 0")
	}
	if strings.TrimSpace(req.ReferenceID) == "" {
		return nil, fmt.Errorf("validation error: reference_id must be non-empty")
	}

	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": req.ReferenceID,
			"custom_id":    req.ReferenceID,
			"description":  req.Description,
			"amount":       money{CurrencyCode: req.Currency, Value: req.Amount.StringFixed(2)},
		}},
		"application_context": map[string]string{
			"return_url":  req.ReturnURL,
			"cancel_url":  req.CancelURL,
			"user_action": "PAY_NOW",
		},
	}

	var out Order
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", body, req.ReferenceID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Capture is the result of capturing an order
type Capture struct {
	OrderID   string `json:"id"`
	Status    string `json:"status"`
	CaptureID string `json:"-"`
}

// Completed reports whether money moved
func (c *Capture) Completed() bool {
	return c.Status == "COMPLETED"
}

// CaptureOrder captures an approved order. A second capture of the same order
// returns ErrAlreadyCaptured.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("validation error: order_id must be non-empty")
	}

	var raw struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}

	err := c.do(ctx, http.MethodPost, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", struct{}{}, "capture-"+orderID, &raw)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.hasIssue("ORDER_ALREADY_CAPTURED") {
			return nil, ErrAlreadyCaptured
		}
		return nil, err
	}

	out := &Capture{OrderID: raw.ID, Status: raw.Status}
	if len(raw.PurchaseUnits) > 0 && len(raw.PurchaseUnits[0].Payments.Captures) > 0 {
		out.CaptureID = raw.PurchaseUnits[0].Payments.Captures[0].ID
	}
	return out, nil
}

// GetOrder reads the current order state
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in interface{}, requestID string, out interface{}) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode paypal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("paypal api call failed: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paypal api call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paypal api call failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse paypal response: %w", err)
	}
	return nil
}

// accessToken returns a cached client-credentials token
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenTill) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal oauth failed: %w", err)
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := c.send(req, &out); err != nil {
		return "", fmt.Errorf("paypal oauth failed: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("paypal oauth failed: empty access token")
	}

	c.token = out.AccessToken
	// Refresh a minute early.
	c.tokenTill = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}
