package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	config "github.com/postwise/postwise/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInstagram(t *testing.T, handler http.Handler) (*instagramProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewInstagramProvider(config.Config{}, Credentials{
		AccountID:    "17840000000000000",
		AccessToken:  "token",
		RefreshToken: "token",
	}).(*instagramProvider)
	p.baseURL = srv.URL
	return p, srv
}

func TestInstagramSingleImagePublish(t *testing.T) {
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/17840000000000000/media", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "media")
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "https://cdn.example.com/a.jpg", payload["image_url"])
		assert.Equal(t, "Hello world", payload["caption"])
		json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
	})
	mux.HandleFunc("/v21.0/17840000000000000/media_publish", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "publish")
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "container-1", payload["creation_id"])
		json.NewEncoder(w).Encode(map[string]string{"id": "media-9"})
	})
	mux.HandleFunc("/media-9", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "permalink")
		json.NewEncoder(w).Encode(map[string]string{"permalink": "https://www.instagram.com/p/abc/"})
	})

	p, _ := newTestInstagram(t, mux)

	res, err := p.Publish(context.Background(), Content{
		Text:      "Hello world",
		MediaURLs: []string{"https://cdn.example.com/a.jpg"},
		MediaType: "image",
	})
	require.NoError(t, err)
	assert.Equal(t, "media-9", res.PlatformPostID)
	assert.Equal(t, "https://www.instagram.com/p/abc/", res.URL)
	assert.Equal(t, []string{"media", "publish", "permalink"}, calls)
}

func TestInstagramCarouselPublish(t *testing.T) {
	var containers int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/17840000000000000/media", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&containers, 1)
		json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("c-%d", n)})
	})
	mux.HandleFunc("/v21.0/17840000000000000/media_publish", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "media-10"})
	})
	mux.HandleFunc("/media-10", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"permalink": ""})
	})

	p, _ := newTestInstagram(t, mux)

	res, err := p.Publish(context.Background(), Content{
		Text:      "carousel",
		MediaURLs: []string{"https://x/a.png", "https://x/b.png"},
		MediaType: "multiImage",
	})
	require.NoError(t, err)
	assert.Equal(t, "media-10", res.PlatformPostID)
	// two item containers plus the carousel container
	assert.Equal(t, int32(3), containers)
}

func TestInstagramLimitsFailFast(t *testing.T) {
	var hit int32
	p, _ := newTestInstagram(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hit, 1)
	}))

	_, err := p.Publish(context.Background(), Content{
		Text:      strings.Repeat("a", instagramCaptionLimit+1),
		MediaURLs: []string{"https://x/a.jpg"},
	})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	_, err = p.Publish(context.Background(), Content{Text: "no media"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	urls := make([]string, instagramMediaLimit+1)
	for i := range urls {
		urls[i] = "https://x/a.jpg"
	}
	_, err = p.Publish(context.Background(), Content{Text: "too many", MediaURLs: urls})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	assert.Equal(t, int32(0), hit, "limit violations must not reach the network")
}

func TestInstagramErrorClassification(t *testing.T) {
	p, _ := newTestInstagram(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	_, err := p.Publish(context.Background(), Content{Text: "x", MediaURLs: []string{"https://x/a.jpg"}})
	require.Error(t, err)
	assert.True(t, IsPermanent(err), "401 is permanent")

	p, _ = newTestInstagram(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	_, err = p.Publish(context.Background(), Content{Text: "x", MediaURLs: []string{"https://x/a.jpg"}})
	require.Error(t, err)
	assert.False(t, IsPermanent(err), "500 is transient")

	p, _ = newTestInstagram(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	_, err = p.Publish(context.Background(), Content{Text: "x", MediaURLs: []string{"https://x/a.jpg"}})
	require.Error(t, err)
	assert.False(t, IsPermanent(err), "rate limit is transient")
}

func TestInstagramRefreshToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/refresh_access_token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ig_refresh_token", r.URL.Query().Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "fresh-token",
			"expires_in":   5184000,
		})
	})

	p, _ := newTestInstagram(t, mux)

	ts, err := p.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", ts.AccessToken)
	assert.Equal(t, "fresh-token", ts.RefreshToken)
	assert.False(t, ts.ExpiresAt.IsZero())
}

func TestInstagramTestConnection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "1"})
	})
	p, _ := newTestInstagram(t, mux)
	assert.NoError(t, p.TestConnection(context.Background()))

	p, _ = newTestInstagram(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	err := p.TestConnection(context.Background())
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}
