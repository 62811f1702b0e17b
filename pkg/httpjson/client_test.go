package httpjson_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hub-settle/pkg/httpjson"
)

func fastRetry() httpjson.Option {
	cfg := httpjson.DefaultRetryConfig()
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 5 * time.Millisecond
	return httpjson.WithRetry(cfg)
}

func flakyServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestPostIdempotent_RetriesTransientFailures(t *testing.T) {
	server, calls := flakyServer(t, 2)
	client := httpjson.New(server.URL, fastRetry())

	var out map[string]string
	require.NoError(t, client.PostIdempotent(context.Background(), "/", map[string]string{"a": "b"}, &out))
	assert.Equal(t, "yes", out["ok"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestPost_DoesNotRetry(t *testing.T) {
	server, calls := flakyServer(t, 1)
	client := httpjson.New(server.URL, fastRetry())

	err := client.Post(context.Background(), "/", map[string]string{"a": "b"}, nil)
	require.Error(t, err)

	var httpErr *httpjson.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"BAD","message":"nope"}`))
	}))
	defer server.Close()

	client := httpjson.New(server.URL, fastRetry())
	err := client.Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
	assert.Equal(t, int32(1), calls.Load())
}
