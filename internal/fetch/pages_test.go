package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartx/imagesync/internal/fetch"
)

func TestPageFetcherFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/produto/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	})
	mux.HandleFunc("/produto/404", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	// Self-signed TLS exercises the disabled certificate verification.
	srv := httptest.NewTLSServer(mux)
	defer srv.Close()

	f := fetch.NewPageFetcher(fetch.PageConfig{Timeout: 5 * time.Second})

	t.Run("OK", func(t *testing.T) {
		res, err := f.Fetch(context.Background(), srv.URL+"/produto/1")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Contains(t, string(res.Body), "ok")
	})

	t.Run("NonOKStatusIsAResult", func(t *testing.T) {
		res, err := f.Fetch(context.Background(), srv.URL+"/produto/404")
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	t.Run("TransportError", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), "https://127.0.0.1:1/produto/1")
		assert.Error(t, err)
	})
}

func TestPageFetcherTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := fetch.NewPageFetcher(fetch.PageConfig{Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "fetch must degrade instead of hanging")
}
