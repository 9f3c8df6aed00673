package fetch

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"
)

// Rate limiter defaults. Delay and factor are applied when the config leaves
// them unset; DefaultJitter is the fraction the config layer starts from
// (explicit zero means no jitter, negative values clamp to zero).
const (
	DefaultDelay         = time.Second
	DefaultBackoffFactor = 2.0
	DefaultJitter        = 0.1
)

// RateLimiterConfig tunes per-domain pacing and backoff computation.
type RateLimiterConfig struct {
	// DefaultDelay is the minimum spacing between requests to one domain.
	DefaultDelay time.Duration
	// BackoffFactor multiplies the delay on each successive retry.
	BackoffFactor float64
	// Jitter is the fraction of the computed delay added as random extra
	// wait. Jitter only lengthens a wait, never shortens it.
	Jitter float64
	// MaxBackoff caps ExponentialBackoff output when > 0.
	MaxBackoff time.Duration
}

func (c RateLimiterConfig) withDefaults() RateLimiterConfig {
	if c.DefaultDelay <= 0 {
		c.DefaultDelay = DefaultDelay
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = DefaultBackoffFactor
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// DomainRateLimiter enforces minimum inter-request spacing per domain.
//
// Wait reserves the next available time slot for the domain under the lock
// and sleeps outside it, so concurrent callers on the same domain serialize
// with at least the effective delay between their reserved slots. Timing
// state lives for the limiter's lifetime, bounded by the number of distinct
// domains visited.
type DomainRateLimiter struct {
	cfg RateLimiterConfig

	mu           sync.Mutex
	domainDelays map[string]time.Duration
	lastRequest  map[string]time.Time
}

// NewDomainRateLimiter builds a limiter from cfg, filling unset knobs with
// the package defaults.
func NewDomainRateLimiter(cfg RateLimiterConfig) *DomainRateLimiter {
	return &DomainRateLimiter{
		cfg:          cfg.withDefaults(),
		domainDelays: make(map[string]time.Duration),
		lastRequest:  make(map[string]time.Time),
	}
}

// SetDomainDelay overrides the default delay for one domain, typically with
// a robots.txt crawl-delay.
func (l *DomainRateLimiter) SetDomainDelay(domain string, delay time.Duration) {
	key := domainKey(domain)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.domainDelays[key] = delay
}

// EffectiveDelay returns the delay currently applied to domain.
func (l *DomainRateLimiter) EffectiveDelay(domain string) time.Duration {
	key := domainKey(domain)
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.effectiveDelayLocked(key)
}

func (l *DomainRateLimiter) effectiveDelayLocked(key string) time.Duration {
	if d, ok := l.domainDelays[key]; ok {
		return d
	}
	return l.cfg.DefaultDelay
}

// Wait blocks until at least the effective delay has elapsed since the last
// recorded request to domain, then records the reserved slot as the new
// last-request time. The slot is claimed before sleeping, so a canceled wait
// still consumes it; the next caller simply finds a fresher timestamp.
func (l *DomainRateLimiter) Wait(ctx context.Context, domain string) error {
	key := domainKey(domain)

	l.mu.Lock()
	delay := l.effectiveDelayLocked(key)
	now := time.Now()
	slot := now
	if last, ok := l.lastRequest[key]; ok {
		if next := last.Add(delay); next.After(now) {
			slot = next
		}
	}
	l.lastRequest[key] = slot
	l.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	// Random extra wait avoids synchronized bursts from parallel workers.
	wait += randomJitter(time.Duration(l.cfg.Jitter * float64(delay)))
	return sleepCtx(ctx, wait)
}

// ExponentialBackoff computes the wait before retry number retryCount
// (zero-based): defaultDelay * factor^retryCount, plus jitter.
func (l *DomainRateLimiter) ExponentialBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := float64(l.cfg.DefaultDelay) * math.Pow(l.cfg.BackoffFactor, float64(retryCount))
	if max := float64(l.cfg.MaxBackoff); l.cfg.MaxBackoff > 0 && delay > max {
		delay = max
	}
	return time.Duration(delay) + randomJitter(time.Duration(l.cfg.Jitter*delay))
}

func domainKey(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
