// Package cryptopay is a client for the Crypto Pay API of @CryptoBot.
package cryptopay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fastprodman/stargiver/internal/config"
	"github.com/fastprodman/stargiver/internal/metrics"
)

const (
	tokenHeader  = "Crypto-Pay-API-Token"
	maxBodyBytes = 1 << 20
	maxBackoff   = 5 * time.Second
)

type Client struct {
	baseURL    string
	token      string
	http       *http.Client
	maxRetries int
	backoff    time.Duration
	metrics    *metrics.Metrics
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(cfg config.CryptoPayConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		http:       &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateInvoice issues a new invoice.
func (c *Client) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (Invoice, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Invoice{}, fmt.Errorf("marshal request: %w", err)
	}

	var res envelope[Invoice]

	err = c.call(ctx, "createInvoice", http.MethodPost, nil, body, &res)
	if err != nil {
		return Invoice{}, err
	}

	return res.Result, nil
}

// GetInvoice looks a single invoice up by id.
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (Invoice, error) {
	var res envelope[invoiceList]

	err := c.call(ctx, "getInvoices", http.MethodGet, url.Values{"invoice_ids": {invoiceID}}, nil, &res)
	if err != nil {
		return Invoice{}, err
	}

	if len(res.Result.Items) == 0 {
		return Invoice{}, fmt.Errorf("invoice %s: %w", invoiceID, ErrInvoiceNotFound)
	}

	return res.Result.Items[0], nil
}

type apiReply interface {
	apiError() *APIError
	ok() bool
}

func (e *envelope[T]) apiError() *APIError { return e.Error }
func (e *envelope[T]) ok() bool            { return e.OK }

// call runs one API method, retrying transient failures with exponential backoff.
func (c *Client) call(ctx context.Context, method, httpMethod string, query url.Values, body []byte, out apiReply) error {
	start := time.Now()

	var err error

	for attempt := 0; ; attempt++ {
		err = c.do(ctx, method, httpMethod, query, body, out)
		if err == nil || !errors.Is(err, ErrTransient) || attempt >= c.maxRetries {
			break
		}

		wait := c.backoff << attempt
		if wait > maxBackoff || wait <= 0 {
			wait = maxBackoff
		}

		slog.WarnContext(ctx, "crypto pay call failed, retrying",
			"method", method, "attempt", attempt+1, "wait", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			err = errors.Join(err, ctx.Err())
			c.metrics.ProviderCall(method, err, time.Since(start))

			return fmt.Errorf("%s: %w", method, err)
		case <-timer.C:
		}
	}

	c.metrics.ProviderCall(method, err, time.Since(start))

	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, httpMethod string, query url.Values, body []byte, out apiReply) error {
	u := c.baseURL + "/" + method
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, u, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set(tokenHeader, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	//nolint:errcheck
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrTransient, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: http status %d", ErrTransient, resp.StatusCode)
	}

	err = json.Unmarshal(raw, out)
	if err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if !out.ok() {
		if apiErr := out.apiError(); apiErr != nil {
			return apiErr
		}

		return fmt.Errorf("crypto pay: not ok (status %d)", resp.StatusCode)
	}

	return nil
}
