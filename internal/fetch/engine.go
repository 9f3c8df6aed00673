package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Engine defaults.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxBodyBytes   = 10 << 20
)

// EngineConfig controls FetchEngine behavior.
type EngineConfig struct {
	// RespectRobots gates every fetch through robots.txt when true.
	RespectRobots bool
	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
	// RequestTimeout bounds each individual attempt. Zero means the default.
	RequestTimeout time.Duration
	// MaxRetries is the retry ceiling; total attempts are MaxRetries+1.
	MaxRetries int
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
	// UserAgents replaces the built-in identity pool when non-empty.
	UserAgents []string
	// GlobalRPS smooths outbound load across all domains when > 0. This is
	// independent of per-domain pacing.
	GlobalRPS float64
	// RateLimiter tunes per-domain pacing and backoff.
	RateLimiter RateLimiterConfig
}

// Result is a successful fetch: status, headers, body, and how much work it
// took. It carries no shared mutable state.
type Result struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Attempts   int
	Duration   time.Duration
}

// Engine composes the robots gate, the domain rate limiter, identity
// rotation, and the retry controller around one pooled HTTP client.
//
// An Engine is safe for concurrent use. It must not be used after Close.
type Engine struct {
	cfg      EngineConfig
	client   *http.Client
	robots   *RobotsGate
	limiter  *DomainRateLimiter
	retry    *RetryController
	identity *IdentityRotator
	global   *rate.Limiter
	logger   *zap.Logger

	closed       atomic.Bool
	delayApplied sync.Map // domain -> struct{}
}

// NewEngine builds an engine with its own connection-pooling transport.
func NewEngine(cfg EngineConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	limiter := NewDomainRateLimiter(cfg.RateLimiter)
	e := &Engine{
		cfg:      cfg,
		client:   &http.Client{Transport: newTransport(cfg.InsecureSkipVerify)},
		limiter:  limiter,
		retry:    NewRetryController(cfg.MaxRetries, limiter, logger),
		identity: NewIdentityRotator(cfg.UserAgents),
		logger:   logger,
	}
	if cfg.RespectRobots {
		e.robots = NewRobotsGate(logger)
	}
	if cfg.GlobalRPS > 0 {
		e.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), 1)
	}
	return e
}

// RateLimiter exposes the per-domain limiter, mainly for tests and for
// callers that pre-seed domain delays.
func (e *Engine) RateLimiter() *DomainRateLimiter { return e.limiter }

// Sitemaps returns the sitemap URLs advertised by rawURL's origin, or nil
// when robots compliance is disabled.
func (e *Engine) Sitemaps(rawURL string) []string {
	if e.robots == nil {
		return nil
	}
	return e.robots.Sitemaps(rawURL)
}

// Get fetches url with GET.
func (e *Engine) Get(ctx context.Context, rawURL string, opts ...RequestOption) (*Result, error) {
	return e.do(ctx, http.MethodGet, rawURL, nil, "", opts)
}

// PostForm fetches url with POST, sending data urlencoded.
func (e *Engine) PostForm(ctx context.Context, rawURL string, data url.Values, opts ...RequestOption) (*Result, error) {
	return e.do(ctx, http.MethodPost, rawURL, []byte(data.Encode()), "application/x-www-form-urlencoded", opts)
}

// PostJSON fetches url with POST, sending v as a JSON body.
func (e *Engine) PostJSON(ctx context.Context, rawURL string, v any, opts ...RequestOption) (*Result, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json body: %w", err)
	}
	return e.do(ctx, http.MethodPost, rawURL, payload, "application/json", opts)
}

// Close releases the engine's connection pool. Get/Post after Close return
// ErrEngineClosed.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.client.CloseIdleConnections()
}

func (e *Engine) do(ctx context.Context, method, rawURL string, body []byte, contentType string, opts []RequestOption) (*Result, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return nil, fmt.Errorf("unsupported url %q: need absolute http(s)", rawURL)
	}
	domain := strings.ToLower(parsed.Host)

	headers := e.identity.Headers(ro.headers)
	userAgent := headers.Get("User-Agent")

	if e.robots != nil {
		if !e.robots.CanFetch(rawURL, userAgent) {
			robotsDeniedTotal.Inc()
			e.logger.Warn("fetch denied by robots.txt", zap.String("url", rawURL))
			return nil, &PolicyDeniedError{URL: rawURL, UserAgent: userAgent}
		}
	}

	if err := e.limiter.Wait(ctx, domain); err != nil {
		return nil, err
	}
	e.applyCrawlDelayOnce(rawURL, domain, userAgent)

	if e.global != nil {
		if err := e.global.Wait(ctx); err != nil {
			return nil, fmt.Errorf("global rate limit: %w", err)
		}
	}

	timeout := e.cfg.RequestTimeout
	if ro.timeout > 0 {
		timeout = ro.timeout
	}

	var (
		result   Result
		attempts int
		start    = time.Now()
	)
	execErr := e.retry.Execute(ctx, func(ctx context.Context) error {
		attempts++
		return e.attempt(ctx, method, rawURL, body, contentType, headers, ro.cookies, timeout, &result)
	})
	result.Attempts = attempts
	result.Duration = time.Since(start)

	if execErr != nil {
		requestErrorsTotal.Inc()
		e.logger.Error("fetch failed",
			zap.String("url", rawURL),
			zap.Int("attempts", attempts),
			zap.Error(execErr),
		)
		return nil, execErr
	}
	return &result, nil
}

// applyCrawlDelayOnce adopts the origin's stated crawl-delay as the domain
// delay the first time the domain is fetched. The directive is already
// cached by the gate, so once is enough.
func (e *Engine) applyCrawlDelayOnce(rawURL, domain, userAgent string) {
	if e.robots == nil {
		return
	}
	if _, seen := e.delayApplied.LoadOrStore(domain, struct{}{}); seen {
		return
	}
	if delay, ok := e.robots.CrawlDelay(rawURL, userAgent); ok {
		e.logger.Info("applying robots crawl-delay",
			zap.String("domain", domain),
			zap.Duration("delay", delay),
		)
		e.limiter.SetDomainDelay(domain, delay)
	}
}

func (e *Engine) attempt(
	ctx context.Context,
	method, rawURL string,
	body []byte,
	contentType string,
	headers http.Header,
	cookies []*http.Cookie,
	timeout time.Duration,
	result *Result,
) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header = headers.Clone()
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	requestsTotal.Inc()
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			e.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		rateLimitHitsTotal.Inc()
	}
	if resp.StatusCode >= 400 {
		// Drain so the connection can be reused across retries.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, e.cfg.MaxBodyBytes))
		return &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	result.URL = resp.Request.URL.String()
	result.StatusCode = resp.StatusCode
	result.Headers = resp.Header.Clone()
	result.Body = data
	return nil
}

// RequestOption adjusts a single Get/Post call.
type RequestOption func(*requestOptions)

type requestOptions struct {
	headers http.Header
	cookies []*http.Cookie
	timeout time.Duration
}

// WithHeaders merges h over the rotated identity headers. Caller keys win.
func WithHeaders(h http.Header) RequestOption {
	return func(o *requestOptions) { o.headers = h }
}

// WithCookies attaches cookies to the request.
func WithCookies(cookies []*http.Cookie) RequestOption {
	return func(o *requestOptions) { o.cookies = cookies }
}

// WithTimeout overrides the per-attempt timeout for this call.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) { o.timeout = d }
}

func newTransport(insecureSkipVerify bool) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if insecureSkipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- operator opt-in
	}
	return t
}
