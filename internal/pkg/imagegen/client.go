package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"
)

const (
	defaultTimeout = 120 * time.Second
	maxImageBytes  = 20 << 20
)

var (
	ErrNotConfigured = errors.New("imagegen client is not configured")
	ErrTimeout       = errors.New("imagegen timeout")
	ErrNetwork       = errors.New("imagegen network error")
	ErrEmptyOutput   = errors.New("imagegen returned no image")
	ErrRejected      = errors.New("imagegen rejected the request")
)

// Request is one portrait generation
type Request struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"image_url"`
	Style    string `json:"style,omitempty"`
	Size     string `json:"size,omitempty"`
}

// Image is the generated picture
type Image struct {
	Data        []byte
	ContentType string
}

// Client talks to the image generation provider over JSON/HTTP
type Client struct {
	baseURL string
	apiKey  string
	ua      string
	http    *http.Client
}

// NewClient creates a new provider client.
func NewClient(baseURL, apiKey string, timeout time.Duration, ua string) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		ua:      ua,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

type generateResponse struct {
	Images []struct {
		URL         string `json:"url"`
		B64JSON     string `json:"b64_json"`
		ContentType string `json:"content_type"`
	} `json:"images"`
}

// Generate renders one image. Failures wrap ErrTimeout, ErrNetwork,
// ErrRejected or ErrEmptyOutput.
func (c *Client) Generate(ctx context.Context, r Request) (*Image, error) {
	if c == nil || c.http == nil || strings.TrimSpace(c.baseURL) == "" {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return nil, fmt.Errorf("imagegen request error: prompt is empty")
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("imagegen request error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("imagegen request error: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyRequestError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*maxImageBytes))
	if err != nil {
		return nil, classifyRequestError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: status=%d body=%s", ErrRejected, resp.StatusCode, truncate(body))
		}
		return nil, fmt.Errorf("imagegen http error: status=%d body=%s", resp.StatusCode, truncate(body))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("imagegen response error: %w", err)
	}
	if len(out.Images) == 0 {
		return nil, ErrEmptyOutput
	}

	first := out.Images[0]
	switch {
	case first.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("imagegen response error: %w", err)
		}
		return newImage(data, first.ContentType)
	case first.URL != "":
		return c.download(ctx, first.URL, first.ContentType)
	}
	return nil, ErrEmptyOutput
}

func (c *Client) download(ctx context.Context, rawURL, contentType string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("imagegen download error: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyRequestError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagegen download error: status=%d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, classifyRequestError(ctx, err)
	}
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return newImage(data, contentType)
}

func newImage(data []byte, contentType string) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyOutput
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return &Image{Data: data, ContentType: contentType}, nil
}

func truncate(b []byte) string {
	if len(b) > 512 {
		return string(b[:512]) + "..."
	}
	return string(b)
}

func classifyRequestError(ctx context.Context, err error) error {
	if isTimeoutError(ctx, err) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return fmt.Errorf("imagegen request error: %w", err)
}

func isTimeoutError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}
