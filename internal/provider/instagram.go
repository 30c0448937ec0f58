package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	config "github.com/postwise/postwise/configs"
)

const (
	instagramBaseURL      = "https://graph.instagram.com"
	instagramCaptionLimit = 2200
	instagramMediaLimit   = 10
)

type instagramProvider struct {
	cfg     config.Config
	creds   Credentials
	baseURL string
	client  *http.Client
}

func NewInstagramProvider(cfg config.Config, creds Credentials) Provider {
	return &instagramProvider{
		cfg:     cfg,
		creds:   creds,
		baseURL: instagramBaseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *instagramProvider) validate(content Content) error {
	if len(content.Text) > instagramCaptionLimit {
		return permanentf("instagram", "caption exceeds %d characters", instagramCaptionLimit)
	}
	if len(content.MediaURLs) == 0 {
		return permanentf("instagram", "at least one media item is required")
	}
	if len(content.MediaURLs) > instagramMediaLimit {
		return permanentf("instagram", "at most %d media items are allowed", instagramMediaLimit)
	}
	return nil
}

// Publish runs the container + publish flow of the Instagram Graph API:
// create one media container per item (a carousel container on top for
// multi-image posts), then publish the top container.
func (p *instagramProvider) Publish(ctx context.Context, content Content) (*Result, error) {
	if err := p.validate(content); err != nil {
		return nil, err
	}

	var containerID string
	var err error
	if len(content.MediaURLs) == 1 {
		containerID, err = p.createContainer(ctx, map[string]interface{}{
			p.mediaField(content.MediaType): content.MediaURLs[0],
			"caption":                       content.Text,
			"access_token":                  p.creds.AccessToken,
		})
	} else {
		containerID, err = p.createCarousel(ctx, content)
	}
	if err != nil {
		return nil, err
	}

	mediaID, err := p.publishContainer(ctx, containerID)
	if err != nil {
		return nil, err
	}

	return &Result{PlatformPostID: mediaID, URL: p.permalink(ctx, mediaID)}, nil
}

func (p *instagramProvider) mediaField(mediaType string) string {
	if mediaType == "video" {
		return "video_url"
	}
	return "image_url"
}

func (p *instagramProvider) createCarousel(ctx context.Context, content Content) (string, error) {
	children := make([]string, 0, len(content.MediaURLs))
	for _, mediaURL := range content.MediaURLs {
		id, err := p.createContainer(ctx, map[string]interface{}{
			"image_url":        mediaURL,
			"is_carousel_item": true,
			"access_token":     p.creds.AccessToken,
		})
		if err != nil {
			return "", err
		}
		children = append(children, id)
	}

	return p.createContainer(ctx, map[string]interface{}{
		"media_type":   "CAROUSEL",
		"children":     children,
		"caption":      content.Text,
		"access_token": p.creds.AccessToken,
	})
}

func (p *instagramProvider) createContainer(ctx context.Context, payload map[string]interface{}) (string, error) {
	url := fmt.Sprintf("%s/v21.0/%s/media", p.baseURL, p.creds.AccountID)

	var result struct {
		ID string `json:"id"`
	}
	if err := p.postJSON(ctx, url, payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", transientf("instagram", "no container id returned")
	}
	return result.ID, nil
}

func (p *instagramProvider) publishContainer(ctx context.Context, containerID string) (string, error) {
	url := fmt.Sprintf("%s/v21.0/%s/media_publish", p.baseURL, p.creds.AccountID)

	var result struct {
		ID string `json:"id"`
	}
	err := p.postJSON(ctx, url, map[string]interface{}{
		"creation_id":  containerID,
		"access_token": p.creds.AccessToken,
	}, &result)
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", transientf("instagram", "no media id returned")
	}
	return result.ID, nil
}

// permalink is best-effort: a missing canonical URL never fails a publish
// that already succeeded.
func (p *instagramProvider) permalink(ctx context.Context, mediaID string) string {
	url := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s", p.baseURL, mediaID, p.creds.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return ""
	}
	defer resp.Body.Close()

	var result struct {
		Permalink string `json:"permalink"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ""
	}
	return result.Permalink
}

func (p *instagramProvider) postJSON(ctx context.Context, url string, payload map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return permanentf("instagram", "marshalling payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return transientf("instagram", "creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return &Error{Platform: "instagram", Message: "HTTP request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		e := &Error{
			Platform: "instagram",
			Message:  fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, respBody),
		}
		// 4xx means the request itself is bad (revoked token, bad account);
		// retrying the same payload cannot help. 429 is the rate-limit
		// exception and stays transient.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			e.Permanent = true
		}
		return e
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transientf("instagram", "decoding response: %v", err)
	}
	return nil
}

// RefreshToken renews a long-lived Instagram token. Instagram reuses the
// access token itself as the refresh credential.
func (p *instagramProvider) RefreshToken(ctx context.Context) (*TokenSet, error) {
	url := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		p.baseURL, p.creds.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, transientf("instagram", "creating request: %v", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &Error{Platform: "instagram", Message: "token refresh failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, permanentf("instagram", "token refresh returned %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, transientf("instagram", "decoding token response: %v", err)
	}

	return &TokenSet{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

func (p *instagramProvider) TestConnection(ctx context.Context) error {
	url := fmt.Sprintf("%s/me?fields=id&access_token=%s", p.baseURL, p.creds.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return transientf("instagram", "creating request: %v", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &Error{Platform: "instagram", Message: "connection test failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return permanentf("instagram", "connection test returned %d", resp.StatusCode)
	}
	return nil
}
