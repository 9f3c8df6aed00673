package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts HTTP requests dispatched by the engine.
	requestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webharvest_requests_total",
		Help: "The total number of HTTP requests sent.",
	})
	// requestErrorsTotal counts requests that ended in a terminal error.
	requestErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webharvest_request_errors_total",
		Help: "The total number of failed HTTP requests.",
	})
	// retriesTotal counts retry attempts across all requests.
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webharvest_retries_total",
		Help: "The total number of retry attempts.",
	})
	// rateLimitHitsTotal counts HTTP 429 responses.
	rateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webharvest_rate_limit_hits_total",
		Help: "The total number of times a server rate-limited the engine.",
	})
	// robotsDeniedTotal counts fetches refused by robots.txt.
	robotsDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webharvest_robots_denied_total",
		Help: "The total number of fetches denied by robots.txt.",
	})
)
