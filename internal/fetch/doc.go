// Package fetch implements the polite-fetch engine: robots.txt compliance,
// per-domain rate limiting with jitter, retry with exponential backoff, and
// a bounded-concurrency coordinator for batch scraping.
package fetch
