package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	config "github.com/postwise/postwise/configs"
	"golang.org/x/oauth2"
)

const (
	tiktokBaseURL      = "https://open.tiktokapis.com"
	tiktokTokenURL     = "https://open.tiktokapis.com/v2/oauth/token/"
	tiktokCaptionLimit = 2200
)

type tiktokProvider struct {
	cfg      config.Config
	creds    Credentials
	baseURL  string
	tokenURL string
	client   *http.Client
}

func NewTiktokProvider(cfg config.Config, creds Credentials) Provider {
	return &tiktokProvider{
		cfg:      cfg,
		creds:    creds,
		baseURL:  tiktokBaseURL,
		tokenURL: tiktokTokenURL,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *tiktokProvider) validate(content Content) error {
	if len(content.Text) > tiktokCaptionLimit {
		return permanentf("tiktok", "caption exceeds %d characters", tiktokCaptionLimit)
	}
	if len(content.MediaURLs) != 1 {
		return permanentf("tiktok", "exactly one video is required, got %d media items", len(content.MediaURLs))
	}
	if content.MediaType != "video" {
		return permanentf("tiktok", "only video posts are supported, got %q", content.MediaType)
	}
	return nil
}

// Publish hands TikTok the video URL via the PULL_FROM_URL source; the
// platform downloads the media itself, so no bytes pass through here.
func (p *tiktokProvider) Publish(ctx context.Context, content Content) (*Result, error) {
	if err := p.validate(content); err != nil {
		return nil, err
	}

	caption := content.Text
	if content.Title != "" {
		caption = content.Title
	}

	payload := map[string]interface{}{
		"post_info": map[string]interface{}{
			"title":         caption,
			"privacy_level": "PUBLIC_TO_EVERYONE",
		},
		"source_info": map[string]interface{}{
			"source":    "PULL_FROM_URL",
			"video_url": content.MediaURLs[0],
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, permanentf("tiktok", "marshalling payload: %v", err)
	}

	url := p.baseURL + "/v2/post/publish/video/init/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, transientf("tiktok", "creating request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.creds.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &Error{Platform: "tiktok", Message: "HTTP request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		e := &Error{
			Platform: "tiktok",
			Message:  fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, respBody),
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			e.Permanent = true
		}
		return nil, e
	}

	var result struct {
		Data struct {
			PublishID string `json:"publish_id"`
		} `json:"data"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, transientf("tiktok", "decoding response: %v", err)
	}
	if result.Error.Code != "" && result.Error.Code != "ok" {
		return nil, permanentf("tiktok", "publish rejected: %s (%s)", result.Error.Message, result.Error.Code)
	}
	if result.Data.PublishID == "" {
		return nil, transientf("tiktok", "no publish id returned")
	}

	// TikTok processes pulled video asynchronously; the canonical URL is not
	// known at init time.
	return &Result{PlatformPostID: result.Data.PublishID}, nil
}

// RefreshToken runs the OAuth2 refresh-token grant against TikTok's token
// endpoint.
func (p *tiktokProvider) RefreshToken(ctx context.Context) (*TokenSet, error) {
	conf := &oauth2.Config{
		ClientID:     p.cfg.TiktokClientKey,
		ClientSecret: p.cfg.TiktokClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: p.creds.RefreshToken}).Token()
	if err != nil {
		return nil, &Error{Platform: "tiktok", Message: "token refresh failed", Err: err}
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = p.creds.RefreshToken
	}

	return &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (p *tiktokProvider) TestConnection(ctx context.Context) error {
	url := p.baseURL + "/v2/user/info/?fields=open_id"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return transientf("tiktok", "creating request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.creds.AccessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return &Error{Platform: "tiktok", Message: "connection test failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return permanentf("tiktok", "connection test returned %d", resp.StatusCode)
	}
	return nil
}
