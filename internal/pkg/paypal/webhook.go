package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventOrderApproved    = "CHECKOUT.ORDER.APPROVED"
)

// WebhookEvent is the envelope PayPal posts to the webhook URL
type WebhookEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// ParseEvent decodes a webhook body
func ParseEvent(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("invalid paypal webhook body: %w", err)
	}
	if ev.EventType == "" {
		return nil, fmt.Errorf("invalid paypal webhook body: missing event_type")
	}
	return &ev, nil
}

// OrderID extracts the checkout order id the event refers to
func (e *WebhookEvent) OrderID() string {
	var res struct {
		ID                string `json:"id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	}
	if err := json.Unmarshal(e.Resource, &res); err != nil {
		return ""
	}

	switch e.EventType {
	case EventCaptureCompleted:
		return res.SupplementaryData.RelatedIDs.OrderID
	case EventOrderApproved:
		return res.ID
	}
	return ""
}

// VerifyWebhookSignature asks PayPal whether the delivery is authentic
func (c *Client) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) (bool, error) {
	if c.config.WebhookID == "" {
		return false, ErrNotConfigured
	}

	req := map[string]interface{}{
		"auth_algo":         headers.Get("PAYPAL-AUTH-ALGO"),
		"cert_url":          headers.Get("PAYPAL-CERT-URL"),
		"transmission_id":   headers.Get("PAYPAL-TRANSMISSION-ID"),
		"transmission_sig":  headers.Get("PAYPAL-TRANSMISSION-SIG"),
		"transmission_time": headers.Get("PAYPAL-TRANSMISSION-TIME"),
		"webhook_id":        c.config.WebhookID,
		"webhook_event":     json.RawMessage(body),
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", req, "", &out); err != nil {
		return false, err
	}
	return out.VerificationStatus == "SUCCESS", nil
}
