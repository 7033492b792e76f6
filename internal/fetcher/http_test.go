package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 3,
	})
}

func TestHTTPFetcher_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "uhi-cli/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte("boundary data"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "boundary data", string(data))
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()
	assert.EqualValues(t, 3, calls.Load())
}

func TestHTTPFetcher_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all retries exhausted")
}

func TestHTTPFetcher_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestHTTPFetcher_DownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("shapefile bytes"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "boundary.zip")
	n, err := newTestFetcher().DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.EqualValues(t, len("shapefile bytes"), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "shapefile bytes", string(data))
}

func TestAdaptiveLimiter(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)

	a.OnRateLimit()
	assert.Equal(t, rate.Limit(5), a.Limit())

	// Rate never drops below a quarter of the initial rate.
	for range 10 {
		a.OnRateLimit()
	}
	assert.Equal(t, rate.Limit(2.5), a.Limit())

	// Successes push it back up, capped at 2x initial.
	for range 50 {
		a.OnSuccess()
	}
	assert.Equal(t, rate.Limit(20), a.Limit())
}
