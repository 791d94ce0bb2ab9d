package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/codeql-fetcher/cfg"
	"github.com/thep200/codeql-fetcher/pkg/errs"
	"github.com/thep200/codeql-fetcher/pkg/log"
)

func newTestCaller(t *testing.T, apiUrl, token string) (*Caller, *[]time.Duration) {
	t.Helper()

	logger, _ := log.NewCslLogger()
	config := &cfg.Config{
		GithubApi: cfg.GithubApi{
			AccessToken:       token,
			ApiUrl:            apiUrl,
			PerPage:           30,
			RequestsPerSecond: 1000,
			ThrottleDelay:     1,
		},
	}

	c := NewCaller(logger, config)
	slept := &[]time.Duration{}
	c.sleep = func(d time.Duration) {
		*slept = append(*slept, d)
	}
	return c, slept
}

func TestGetSendsAuthHeaders(t *testing.T) {
	var accept, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, _ := newTestCaller(t, server.URL, "ghp_secret")

	_, err := c.get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "application/vnd.github.v3+json", accept)
	assert.Equal(t, "token ghp_secret", auth)
}

func TestGetClassifiesClientErrors(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		t.Run(fmt.Sprintf("status %d", status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer server.Close()

			c, _ := newTestCaller(t, server.URL, "")
			_, err := c.get(context.Background(), server.URL)

			require.Error(t, err)
			assert.True(t, errs.IsConfig(err))
		})
	}
}

func TestGetNetworkErrorIsTransient(t *testing.T) {
	c, _ := newTestCaller(t, "http://127.0.0.1:1", "")

	_, err := c.get(context.Background(), "http://127.0.0.1:1/unreachable")

	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
}

func TestGetSelfThrottlesWhenQuotaLow(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "3")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, slept := newTestCaller(t, server.URL, "")

	_, err := c.get(context.Background(), server.URL)

	require.NoError(t, err)
	require.Len(t, *slept, 1)
	// Ngủ đến sau thời điểm reset một chút
	assert.Greater(t, (*slept)[0], 20*time.Second)
	assert.LessOrEqual(t, (*slept)[0], 31*time.Second)
}

func TestGetSkipsThrottleWhenQuotaHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "4000")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(time.Hour).Unix()))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, slept := newTestCaller(t, server.URL, "")

	_, err := c.get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Empty(t, *slept)
}

func TestSnapshotReadsRateLimit(t *testing.T) {
	resetUnix := time.Now().Add(time.Hour).Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rate_limit", r.URL.Path)
		resp := RateLimitResponse{
			Resources: RateLimitResources{Core: RateLimitCore{Remaining: 4321, Reset: resetUnix}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c, _ := newTestCaller(t, server.URL, "")

	remaining, reset, err := c.Snapshot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4321, remaining)
	assert.Equal(t, time.Unix(resetUnix, 0), reset)
}

func TestSearchRepositoriesBuildsQuery(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(SearchResponse{})
	}))
	defer server.Close()

	c, _ := newTestCaller(t, server.URL, "")

	_, err := c.SearchRepositories(context.Background(), "java", 3)

	require.NoError(t, err)
	assert.Contains(t, query, "q=language%3Ajava")
	assert.Contains(t, query, "per_page=30")
	assert.Contains(t, query, "page=3")
	assert.Contains(t, query, "sort=stars")
}
