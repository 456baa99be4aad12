package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/promptpipe/core"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestFetch_Direct(t *testing.T) {
	t.Run("Should return the body and content type", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngMagic)
		}))
		defer srv.Close()

		f := New(WithRelays([]string{Direct}), WithTimeout(2*time.Second))
		res, err := f.Fetch(context.Background(), srv.URL+"/a.png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", res.ContentType)
		assert.Equal(t, pngMagic, res.Body)
		assert.Equal(t, Direct, res.Relay)
	})

	t.Run("Should sniff a missing content type", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(pngMagic)
		}))
		defer srv.Close()

		res, err := New(WithRelays([]string{Direct})).Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "image/png", res.ContentType)
	})
}

func TestFetch_RelayChain(t *testing.T) {
	t.Run("Should fall back to the next relay and stop at the first success", func(t *testing.T) {
		var relayHits, lastHits int32
		origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer origin.Close()
		relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&relayHits, 1)
			assert.Equal(t, origin.URL+"/x.png", r.URL.Query().Get("url"))
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngMagic)
		}))
		defer relay.Close()
		last := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&lastHits, 1)
		}))
		defer last.Close()

		f := New(WithRelays([]string{Direct, relay.URL + "/?url={url}", last.URL + "/?u={url}"}))
		res, err := f.Fetch(context.Background(), origin.URL+"/x.png")
		require.NoError(t, err)
		assert.Equal(t, relay.URL+"/?url={url}", res.Relay)
		assert.Equal(t, int32(1), atomic.LoadInt32(&relayHits))
		assert.Equal(t, int32(0), atomic.LoadInt32(&lastHits))
	})

	t.Run("Should report retrieval failure when every relay fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		f := New(WithRelays([]string{Direct, srv.URL + "/?url={url}"}))
		_, err := f.Fetch(context.Background(), srv.URL+"/missing.png")
		require.ErrorIs(t, err, core.ErrRetrievalFailed)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("Should reject non-http references", func(t *testing.T) {
		_, err := New().Fetch(context.Background(), "file:///etc/passwd")
		require.ErrorIs(t, err, core.ErrRetrievalFailed)
	})
}

func TestFetch_Cache(t *testing.T) {
	t.Run("Should serve repeated URLs from cache", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&hits, 1)
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngMagic)
		}))
		defer srv.Close()

		f := New(WithRelays([]string{Direct}), WithCacheSize(4))
		for i := 0; i < 3; i++ {
			_, err := f.Fetch(context.Background(), srv.URL+"/c.png")
			require.NoError(t, err)
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})

	t.Run("Should refetch when caching is disabled", func(t *testing.T) {
		var hits int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&hits, 1)
			_, _ = w.Write(pngMagic)
		}))
		defer srv.Close()

		f := New(WithRelays([]string{Direct}), WithCacheSize(0))
		for i := 0; i < 2; i++ {
			_, err := f.Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
		}
		assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	})
}

func TestRelayURL(t *testing.T) {
	assert.Equal(t, "https://a/b.png", RelayURL(Direct, "https://a/b.png"))
	assert.Equal(t, "https://relay/?url=https%3A%2F%2Fa%2Fb.png", RelayURL("https://relay/?url={url}", "https://a/b.png"))
}
