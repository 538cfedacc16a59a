package contentstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credtrust/internal/platform/upstream"
	"credtrust/pkg/platform/sentinel"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL: srv.URL,
		Timeout: timeout,
		Caller:  upstream.New("ipfs", upstream.WithRetries(1, time.Millisecond)),
	}), &hits
}

func TestFetch(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/bafy123", r.URL.Path)
		_, _ = io.WriteString(w, `{"id":"urn:uuid:1"}`)
	}, time.Second)

	blob, err := c.Fetch(context.Background(), "ipfs://bafy123")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"urn:uuid:1"}`, string(blob))
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, time.Second)

	_, err := c.Fetch(context.Background(), "bafy-missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchServerErrorRetried(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, time.Second)

	_, err := c.Fetch(context.Background(), "bafy")
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)

	_, err := c.Fetch(context.Background(), "bafy-slow")
	assert.Error(t, err)
}

func TestFetchEmptyAddress(t *testing.T) {
	c := New(Config{BaseURL: "http://unused"})
	_, err := c.Fetch(context.Background(), " ")
	assert.Error(t, err)
}
