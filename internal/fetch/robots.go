package fetch

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const (
	robotsFetchTimeout = 10 * time.Second
	robotsMaxBodyBytes = 1 << 20
)

// RobotsGate resolves and caches robots.txt directives per origin and
// answers allow/deny, crawl-delay, and sitemap queries.
//
// Directives are fetched lazily on first use and cached for the process
// lifetime. A failed fetch (network error or non-200 status) degrades to a
// permissive directive so the caller is never blocked by robots
// unavailability.
type RobotsGate struct {
	client *http.Client
	cache  sync.Map // origin -> *robotstxt.RobotsData
	logger *zap.Logger
}

// NewRobotsGate builds a gate with a dedicated short-timeout HTTP client.
func NewRobotsGate(logger *zap.Logger) *RobotsGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsGate{
		client: &http.Client{Timeout: robotsFetchTimeout},
		logger: logger,
	}
}

// CanFetch reports whether userAgent may fetch rawURL. It fails open: an
// unparseable robots.txt or an unreachable origin permits the fetch.
func (g *RobotsGate) CanFetch(rawURL, userAgent string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data := g.load(parsed)
	group := data.FindGroup(userAgent)
	if group == nil {
		return true
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return group.Test(path)
}

// CrawlDelay returns the crawl-delay stated for userAgent at rawURL's origin.
// The second return is false when no delay is declared.
func (g *RobotsGate) CrawlDelay(rawURL, userAgent string) (time.Duration, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return 0, false
	}
	group := g.load(parsed).FindGroup(userAgent)
	if group == nil || group.CrawlDelay <= 0 {
		return 0, false
	}
	return group.CrawlDelay, true
}

// Sitemaps returns the sitemap URLs advertised by rawURL's origin.
func (g *RobotsGate) Sitemaps(rawURL string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil
	}
	return g.load(parsed).Sitemaps
}

func (g *RobotsGate) load(parsed *url.URL) *robotstxt.RobotsData {
	origin := originKey(parsed)
	if cached, ok := g.cache.Load(origin); ok {
		return cached.(*robotstxt.RobotsData)
	}

	data := g.fetch(origin)
	// First fetch wins; a concurrent racer's result is equivalent.
	actual, _ := g.cache.LoadOrStore(origin, data)
	return actual.(*robotstxt.RobotsData)
}

func (g *RobotsGate) fetch(origin string) *robotstxt.RobotsData {
	robotsURL := origin + "/robots.txt"
	resp, err := g.client.Get(robotsURL)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing all",
			zap.String("url", robotsURL), zap.Error(err))
		return allowAllRobots()
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		g.logger.Debug("robots.txt unavailable; allowing all",
			zap.String("url", robotsURL), zap.Int("status", resp.StatusCode))
		return allowAllRobots()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBodyBytes))
	if err != nil {
		g.logger.Warn("read robots body failed; allowing all",
			zap.String("url", robotsURL), zap.Error(err))
		return allowAllRobots()
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		g.logger.Warn("parse robots.txt failed; allowing all",
			zap.String("url", robotsURL), zap.Error(err))
		return allowAllRobots()
	}
	return data
}

func allowAllRobots() *robotstxt.RobotsData {
	data, err := robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
	if err != nil {
		// 404 always yields an allow-all ruleset.
		panic(fmt.Sprintf("robotstxt allow-all: %v", err))
	}
	return data
}

func originKey(parsed *url.URL) string {
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
}
