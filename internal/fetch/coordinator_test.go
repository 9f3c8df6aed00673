package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProcessReturnsOutcomePerURL(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{MaxWorkers: 3}, zap.NewNop())

	urls := []string{"http://a.test", "http://b.test", "http://c.test"}
	outcomes := c.Process(context.Background(), urls, func(_ context.Context, url string) (any, error) {
		return url + "/done", nil
	})

	require.Len(t, outcomes, 3)
	seen := make(map[string]any, 3)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		seen[o.URL] = o.Value
	}
	for _, u := range urls {
		require.Equal(t, u+"/done", seen[u])
	}
}

func TestProcessEmptyInput(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{}, zap.NewNop())
	require.Nil(t, c.Process(context.Background(), nil, func(context.Context, string) (any, error) {
		t.Fatal("work func should not be called")
		return nil, nil
	}))
}

func TestProcessIsolatesFailures(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{MaxWorkers: 2}, zap.NewNop())

	boom := errors.New("boom")
	outcomes := c.Process(context.Background(),
		[]string{"http://ok.test", "http://bad.test", "http://ok2.test"},
		func(_ context.Context, url string) (any, error) {
			if url == "http://bad.test" {
				return nil, boom
			}
			return "ok", nil
		})

	require.Len(t, outcomes, 3)
	failures := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failures++
			require.Equal(t, "http://bad.test", o.URL)
			require.ErrorIs(t, o.Err, boom)
		}
	}
	require.Equal(t, 1, failures)
}

func TestProcessBoundsConcurrency(t *testing.T) {
	const maxWorkers = 2
	c := NewCoordinator(CoordinatorConfig{MaxWorkers: maxWorkers}, zap.NewNop())

	var active, peak atomic.Int64
	urls := make([]string, 10)
	for i := range urls {
		urls[i] = "http://example.test"
	}

	outcomes := c.Process(context.Background(), urls, func(context.Context, string) (any, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return nil, nil
	})

	require.Len(t, outcomes, len(urls))
	require.LessOrEqual(t, peak.Load(), int64(maxWorkers))
}

func TestProcessBatchDelayThrottlesDispatch(t *testing.T) {
	const batchDelay = 100 * time.Millisecond
	c := NewCoordinator(CoordinatorConfig{MaxWorkers: 1, BatchDelay: batchDelay}, zap.NewNop())

	var (
		mu     sync.Mutex
		starts []time.Time
	)
	outcomes := c.Process(context.Background(),
		[]string{"http://a.test", "http://b.test", "http://c.test"},
		func(context.Context, string) (any, error) {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
			return nil, nil
		})

	require.Len(t, outcomes, 3)
	require.Len(t, starts, 3)
	// Each completion is a batch boundary with one worker, so every later
	// dispatch waits out the delay even though it was already queued.
	require.GreaterOrEqual(t, starts[1].Sub(starts[0]), batchDelay)
	require.GreaterOrEqual(t, starts[2].Sub(starts[1]), batchDelay)
}

func TestProcessWithEngineKeepsDomainSpacing(t *testing.T) {
	const delay = 100 * time.Millisecond

	var (
		mu   sync.Mutex
		hits = make(map[string][]time.Time)
	)
	handler := func(label string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits[label] = append(hits[label], time.Now())
			mu.Unlock()
			_, _ = w.Write([]byte("ok"))
		})
	}
	srvA := httptest.NewServer(handler("a"))
	defer srvA.Close()
	srvB := httptest.NewServer(handler("b"))
	defer srvB.Close()

	e := NewEngine(EngineConfig{
		RateLimiter: RateLimiterConfig{DefaultDelay: delay, Jitter: 0},
	}, zap.NewNop())
	defer e.Close()

	urls := make([]string, 0, 10)
	for i := 0; i < 5; i++ {
		urls = append(urls, srvA.URL+"/page", srvB.URL+"/page")
	}

	c := NewCoordinator(CoordinatorConfig{MaxWorkers: 5}, zap.NewNop())
	outcomes := c.Process(context.Background(), urls, func(ctx context.Context, u string) (any, error) {
		res, err := e.Get(ctx, u)
		if err != nil {
			return nil, err
		}
		return res.StatusCode, nil
	})

	require.Len(t, outcomes, 10)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
	}

	// Worker parallelism must not compress per-domain spacing. The small
	// allowance absorbs scheduling skew between slot expiry and arrival.
	for _, label := range []string{"a", "b"} {
		arrivals := hits[label]
		require.Len(t, arrivals, 5)
		for i := 1; i < len(arrivals); i++ {
			require.GreaterOrEqual(t, arrivals[i].Sub(arrivals[i-1]), delay-20*time.Millisecond)
		}
	}
}

func TestProcessTaskTimeout(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{MaxWorkers: 1, TaskTimeout: 20 * time.Millisecond}, zap.NewNop())

	outcomes := c.Process(context.Background(), []string{"http://slow.test"},
		func(ctx context.Context, _ string) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	require.Len(t, outcomes, 1)
	require.Error(t, outcomes[0].Err)
	require.Contains(t, outcomes[0].Err.Error(), "task timed out")
	require.ErrorIs(t, outcomes[0].Err, context.DeadlineExceeded)
}

func TestProcessFailFast(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{MaxWorkers: 1, FailFast: true}, zap.NewNop())

	boom := errors.New("boom")
	var calls atomic.Int64
	outcomes := c.Process(context.Background(),
		[]string{"http://a.test", "http://b.test", "http://c.test"},
		func(ctx context.Context, _ string) (any, error) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			calls.Add(1)
			return nil, boom
		})

	require.Len(t, outcomes, 3)
	require.Equal(t, int64(1), calls.Load())
	skipped := 0
	for _, o := range outcomes {
		require.Error(t, o.Err)
		if errors.Is(o.Err, context.Canceled) {
			skipped++
		}
	}
	require.Equal(t, 2, skipped)
}

func TestProcessCanceledContextSkipsRemaining(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{MaxWorkers: 1}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := c.Process(ctx, []string{"http://a.test", "http://b.test"},
		func(context.Context, string) (any, error) {
			t.Fatal("work func should not be called")
			return nil, nil
		})

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		require.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestReadURLsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "http://a.test\n\n# comment line\n  http://b.test  \nhttp://c.test\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	urls, err := ReadURLsFromFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"http://a.test", "http://b.test", "http://c.test"}, urls)
}

func TestReadURLsFromFileMissing(t *testing.T) {
	_, err := ReadURLsFromFile(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}
