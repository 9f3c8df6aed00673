package fetch

import (
	"crypto/rand"
	"math/big"
	"net/http"
)

// defaultUserAgents is a small pool of realistic browser signatures used
// when no external pool is supplied.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.110 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/97.0.4692.71 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.110 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:95.0) Gecko/20100101 Firefox/95.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.110 Safari/537.36 Edg/96.0.1054.62",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.110 Safari/537.36",
}

// baselineHeaders mimic a real browser alongside the rotated User-Agent.
var baselineHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.5",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"DNT":                       "1",
}

// IdentityRotator selects a User-Agent pseudo-randomly per request and
// combines it with a fixed baseline header set. Selection is stateless:
// each call is an independent draw, not a round-robin.
type IdentityRotator struct {
	userAgents []string
}

// NewIdentityRotator builds a rotator over pool, falling back to the
// built-in browser signatures when pool is empty.
func NewIdentityRotator(pool []string) *IdentityRotator {
	if len(pool) == 0 {
		pool = defaultUserAgents
	}
	return &IdentityRotator{userAgents: append([]string(nil), pool...)}
}

// AddUserAgent appends a custom signature to the pool.
func (r *IdentityRotator) AddUserAgent(ua string) {
	for _, existing := range r.userAgents {
		if existing == ua {
			return
		}
	}
	r.userAgents = append(r.userAgents, ua)
}

// UserAgent returns a random signature from the pool.
func (r *IdentityRotator) UserAgent() string {
	return r.userAgents[randomIndex(len(r.userAgents))]
}

// Headers returns the baseline header set with a freshly drawn User-Agent,
// overlaid with extra. Caller-supplied keys win on conflict.
func (r *IdentityRotator) Headers(extra http.Header) http.Header {
	h := make(http.Header, len(baselineHeaders)+len(extra)+1)
	for k, v := range baselineHeaders {
		h.Set(k, v)
	}
	h.Set("User-Agent", r.UserAgent())
	for k, values := range extra {
		h.Del(k)
		for _, v := range values {
			h.Add(k, v)
		}
	}
	return h
}

func randomIndex(n int) int {
	if n <= 1 {
		return 0
	}
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(idx.Int64())
}
