package remote

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Client wraps resty with transport-level retries and per-provider rate
// limiting. Failure isolation lives in the dispatcher's circuit breaker, not
// here; the client only retries transport errors and 5xx responses.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
}

// ClientConfig tunes one provider's HTTP client.
type ClientConfig struct {
	BaseURL string
	// RPS caps outbound requests per second. Zero means unlimited.
	RPS float64
	// Timeout bounds a single HTTP exchange. Default 30s.
	Timeout time.Duration
	// RetryMax bounds transport-level retries. Default 3.
	RetryMax int
	// RetryWaitMin is the initial retry backoff. Default 1s.
	RetryWaitMin time.Duration
	// RetryWaitMax caps the retry backoff. Default 15s.
	RetryWaitMax time.Duration
}

// NewClient creates a rate-limited HTTP client for one provider endpoint.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 1 * time.Second
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 15 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil

	restyClient := resty.NewWithClient(retryClient.StandardClient())
	restyClient.
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "solvernet/1.0")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{resty: restyClient, limiter: limiter}
}

// R creates a request after the rate limiter admits it.
func (c *Client) R(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.resty.R().SetContext(ctx), nil
}
