package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/policy-compare/internal/model"
	"github.com/sells-group/policy-compare/internal/resilience"
)

// maxDocumentBytes caps a single downloaded document.
const maxDocumentBytes = 64 << 20

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RateLimiters map[string]*rate.Limiter
}

// HTTPFetcher implements Fetcher using net/http with retry, rate limiting
// and a per-host circuit breaker.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters map[string]*rate.Limiter
	breakers *resilience.ServiceBreakers
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "policy-compare/1.0"
	}
	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		limiters: limiters,
		breakers: resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rate.NewLimiter(20, 20)
	}
	if lim, ok := f.limiters[u.Host]; ok {
		return lim
	}
	return rate.NewLimiter(20, 20)
}

func (f *HTTPFetcher) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	cb := f.breakers.Get(req.URL.Host)
	retryCfg := resilience.FetchRetryConfig(f.opts.MaxRetries)
	retryCfg.OnRetry = resilience.RetryLogger("fetcher", req.URL.Host)

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*http.Response, error) {
		if err := f.limiterFor(req.URL.String()).Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*http.Response, error) {
			resp, err := f.client.Do(req.Clone(ctx))
			if err != nil {
				return nil, resilience.NewTransientError(err, 0)
			}
			// 429 and 5xx are worth another attempt; everything else is
			// the caller's problem.
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				_ = resp.Body.Close()
				return nil, resilience.NewTransientError(
					eris.Errorf("http %d from %s", resp.StatusCode, req.URL.String()),
					resp.StatusCode,
				)
			}
			return resp, nil
		})
	})
	if err != nil {
		return nil, eris.Wrap(f.classify(err), "all retries exhausted")
	}
	return resp, nil
}

// classify maps timeouts to the timeout sentinel, everything else to
// the fetch sentinel.
func (f *HTTPFetcher) classify(err error) error {
	if err == nil {
		return model.ErrFetch
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return eris.Wrap(model.ErrTimeout, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrap(model.ErrTimeout, err.Error())
	}
	return eris.Wrap(model.ErrFetch, err.Error())
}

// Fetch downloads the URL and returns the body bytes and Content-Type.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.doWithRetry(ctx, req)
	if err != nil {
		return nil, "", eris.Wrap(err, "fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, "", eris.Wrapf(model.ErrFetch, "fetch: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, "", eris.Wrap(f.classify(err), "read body")
	}
	if len(body) > maxDocumentBytes {
		return nil, "", eris.Wrapf(model.ErrFetch, "fetch: document exceeds %d bytes from %s", maxDocumentBytes, rawURL)
	}

	return body, resp.Header.Get("Content-Type"), nil
}
