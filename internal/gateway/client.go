package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Client is the HTTP implementation of Gateway.
type Client struct {
	baseURL   string
	secretKey string
	timeout   time.Duration
	http      *fasthttp.Client
}

// NewClient builds a gateway client. timeout bounds calls whose context has no deadline.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		timeout:   timeout,
		http: &fasthttp.Client{
			Name:                "walletcore",
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// CreateIntent opens a payment intent.
func (c *Client) CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Intent{}, err
	}
	return c.do(ctx, fasthttp.MethodPost, "/v1/payment_intents", body, req.Reference)
}

// RetrieveIntent fetches the authoritative status of an intent.
func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	return c.do(ctx, fasthttp.MethodGet, "/v1/payment_intents/"+url.PathEscape(intentID), nil, "")
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotencyKey string) (Intent, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.secretKey)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return Intent{}, fmt.Errorf("%s %s timed out: %w", method, path, ErrUnavailable)
		}
		return Intent{}, fmt.Errorf("%s %s: %v: %w", method, path, err, ErrUnavailable)
	}

	status := resp.StatusCode()
	switch {
	case status == fasthttp.StatusNotFound:
		return Intent{}, ErrUnknownIntent
	case status >= 500 || status == fasthttp.StatusTooManyRequests:
		return Intent{}, fmt.Errorf("%s %s returned %d: %w", method, path, status, ErrUnavailable)
	case status >= 400:
		return Intent{}, fmt.Errorf("%s %s returned %d: %w", method, path, status, ErrRejected)
	}

	raw := append([]byte(nil), resp.Body()...)
	var intent Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return Intent{}, fmt.Errorf("decode gateway response: %w", err)
	}
	intent.Raw = raw
	return intent, nil
}
