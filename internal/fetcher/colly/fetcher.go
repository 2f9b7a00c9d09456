// Package collyfetcher implements fixtures.PageGetter using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/lflhelper/fixtures-bot/internal/fixtures"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
}

// Waiter throttles outbound requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher issues single GET requests through one shared HTTP transport.
// Each call clones the base collector so callbacks never cross requests.
type Fetcher struct {
	cfg           Config
	limiter       Waiter
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter throttles every request through limiter.
func WithLimiter(limiter Waiter) Option {
	return func(f *Fetcher) {
		f.limiter = limiter
	}
}

// WithTransport replaces the default pooled transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.baseCollector.WithTransport(transport)
	}
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())

	// The timeout lives on the shared HTTP client, so it is set once here and
	// never on the per-request clones.
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.SetRequestTimeout(timeout)

	f := &Fetcher{cfg: cfg, baseCollector: c}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get executes a single HTTP GET. Non-2xx responses are returned as pages;
// only transport failures and cancellation produce an error.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (fixtures.Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return fixtures.Page{}, fmt.Errorf("throttle %s: %w", rawURL, err)
		}
	}

	var (
		result   fixtures.Page
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return fixtures.Page{}, err
	}
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fixtures.Page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = fixtures.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
