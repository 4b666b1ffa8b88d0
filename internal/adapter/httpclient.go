package adapter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/fundflow/fundflow/internal/resilience"
)

// httpClient wraps an http.Client with a per-source rate limiter and the
// shared transient/not-found classification every adapter needs.
type httpClient struct {
	source  string
	client  *http.Client
	limiter *rate.Limiter
	header  http.Header
	retry   *resilience.RetryConfig
}

func newHTTPClient(source string, timeout time.Duration, rps float64) *httpClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if rps <= 0 {
		rps = 2
	}
	h := http.Header{}
	h.Set("User-Agent", "fundflow-intel/1.0 (+https://fundflow.ai)")
	h.Set("Accept", "application/json")
	return &httpClient{
		source:  source,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		header:  h,
	}
}

// withRetry enables transient-failure retry on every call through this
// client. Off by default: most adapters lean on the fan-out's partial
// tolerance, but flaky upstreams opt in.
func (h *httpClient) withRetry(cfg resilience.RetryConfig) *httpClient {
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(h.source, "get")
	}
	h.retry = &cfg
	return h
}

// getJSON performs a rate-limited GET and decodes the response into out.
// 404 maps to ErrNotFoundUpstream; 408/429/5xx and network failures map to
// TransientError. Anything else is a permanent source error. Transient
// failures are retried with backoff when the client opted in via withRetry.
func (h *httpClient) getJSON(ctx context.Context, url string, out any) error {
	if h.retry != nil {
		return resilience.Do(ctx, *h.retry, func(ctx context.Context) error {
			return h.doGetJSON(ctx, url, out)
		})
	}
	return h.doGetJSON(ctx, url, out)
}

func (h *httpClient) doGetJSON(ctx context.Context, url string, out any) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return resilience.NewTransientError(h.source, err, 0)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrapf(err, "%s: build request", h.source)
	}
	for k, vs := range h.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(h.source, err, 0)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return resilience.ErrNotFoundUpstream
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return resilience.NewTransientError(h.source,
			eris.Errorf("%s: status %d", h.source, resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return eris.Errorf("%s: unexpected status %d", h.source, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resilience.NewTransientError(h.source, err, 0)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "%s: decode response", h.source)
	}
	return nil
}

// setHeader sets a default request header (auth tokens, API keys).
func (h *httpClient) setHeader(key, value string) {
	h.header.Set(key, value)
}
