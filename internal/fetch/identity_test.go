package fetch

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserAgentDrawnFromPool(t *testing.T) {
	pool := []string{"AgentA/1.0", "AgentB/2.0"}
	rotator := NewIdentityRotator(pool)

	for i := 0; i < 20; i++ {
		require.Contains(t, pool, rotator.UserAgent())
	}
}

func TestUserAgentDefaultPool(t *testing.T) {
	rotator := NewIdentityRotator(nil)
	require.Contains(t, defaultUserAgents, rotator.UserAgent())
}

func TestAddUserAgentDeduplicates(t *testing.T) {
	rotator := NewIdentityRotator([]string{"AgentA/1.0"})
	rotator.AddUserAgent("AgentB/2.0")
	rotator.AddUserAgent("AgentB/2.0")

	require.Len(t, rotator.userAgents, 2)
}

func TestHeadersCarryBaseline(t *testing.T) {
	rotator := NewIdentityRotator([]string{"AgentA/1.0"})
	h := rotator.Headers(nil)

	require.Equal(t, "AgentA/1.0", h.Get("User-Agent"))
	for key, value := range baselineHeaders {
		require.Equal(t, value, h.Get(key))
	}
}

func TestHeadersCallerKeysWin(t *testing.T) {
	rotator := NewIdentityRotator([]string{"AgentA/1.0"})

	extra := http.Header{}
	extra.Set("User-Agent", "Custom/9.9")
	extra.Set("Accept-Language", "de-DE")
	extra.Set("X-Custom", "yes")
	h := rotator.Headers(extra)

	require.Equal(t, "Custom/9.9", h.Get("User-Agent"))
	require.Equal(t, "de-DE", h.Get("Accept-Language"))
	require.Equal(t, "yes", h.Get("X-Custom"))
	require.Equal(t, baselineHeaders["Accept"], h.Get("Accept"))
}
