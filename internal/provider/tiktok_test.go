package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	config "github.com/postwise/postwise/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTiktok(t *testing.T, handler http.Handler) *tiktokProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewTiktokProvider(config.Config{TiktokClientKey: "key", TiktokClientSecret: "secret"}, Credentials{
		AccessToken:  "token",
		RefreshToken: "refresh",
	}).(*tiktokProvider)
	p.baseURL = srv.URL
	p.tokenURL = srv.URL + "/v2/oauth/token/"
	return p
}

func TestTiktokPullFromURLPublish(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/post/publish/video/init/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var payload struct {
			PostInfo struct {
				Title string `json:"title"`
			} `json:"post_info"`
			SourceInfo struct {
				Source   string `json:"source"`
				VideoURL string `json:"video_url"`
			} `json:"source_info"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "PULL_FROM_URL", payload.SourceInfo.Source)
		assert.Equal(t, "https://cdn.example.com/clip.mp4", payload.SourceInfo.VideoURL)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data":  map[string]string{"publish_id": "v_pub_1"},
			"error": map[string]string{"code": "ok"},
		})
	})

	p := newTestTiktok(t, mux)

	res, err := p.Publish(context.Background(), Content{
		Text:      "new clip",
		MediaURLs: []string{"https://cdn.example.com/clip.mp4"},
		MediaType: "video",
	})
	require.NoError(t, err)
	assert.Equal(t, "v_pub_1", res.PlatformPostID)
}

func TestTiktokRejectsNonVideoFast(t *testing.T) {
	var hit int32
	p := newTestTiktok(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hit, 1)
	}))

	_, err := p.Publish(context.Background(), Content{
		Text:      "image post",
		MediaURLs: []string{"https://x/a.jpg"},
		MediaType: "image",
	})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	_, err = p.Publish(context.Background(), Content{
		Text:      "two videos",
		MediaURLs: []string{"https://x/a.mp4", "https://x/b.mp4"},
		MediaType: "video",
	})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	assert.Equal(t, int32(0), hit)
}

func TestTiktokAPIErrorCode(t *testing.T) {
	p := newTestTiktok(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]string{},
			"error": map[string]string{
				"code":    "spam_risk_too_many_posts",
				"message": "daily post cap reached",
			},
		})
	}))

	_, err := p.Publish(context.Background(), Content{
		Text:      "clip",
		MediaURLs: []string{"https://x/a.mp4"},
		MediaType: "video",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily post cap reached")
}

func TestTiktokRefreshToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/oauth/token/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "fresh",
			"refresh_token": "fresh-refresh",
			"token_type":    "Bearer",
			"expires_in":    86400,
		})
	})

	p := newTestTiktok(t, mux)

	ts, err := p.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", ts.AccessToken)
	assert.Equal(t, "fresh-refresh", ts.RefreshToken)
}

func TestTiktokTestConnection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/user/info/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"open_id": "x"}})
	})
	p := newTestTiktok(t, mux)
	assert.NoError(t, p.TestConnection(context.Background()))
}
