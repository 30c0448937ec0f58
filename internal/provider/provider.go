// Package provider holds the per-platform publish capability. Each variant
// implements the same three-method contract; platform limits are enforced
// before any network I/O so an oversized post fails fast with a classified
// error instead of a platform rejection.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	config "github.com/postwise/postwise/configs"
)

type Content struct {
	Text      string
	Title     string
	MediaURLs []string
	MediaType string
}

type Result struct {
	PlatformPostID string
	URL            string
}

type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Credentials carry the already-decrypted tokens for one channel.
type Credentials struct {
	AccountID    string
	AccessToken  string
	RefreshToken string
}

type Provider interface {
	Publish(ctx context.Context, content Content) (*Result, error)
	RefreshToken(ctx context.Context) (*TokenSet, error)
	TestConnection(ctx context.Context) error
}

// Error classifies a provider failure. Permanent errors (revoked auth,
// content over platform limits) must not be retried; everything else is
// assumed transient and left to the job-level retry policy.
type Error struct {
	Platform  string
	Message   string
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Platform, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsPermanent(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Permanent
}

func permanentf(platform, format string, args ...interface{}) *Error {
	return &Error{Platform: platform, Message: fmt.Sprintf(format, args...), Permanent: true}
}

func transientf(platform, format string, args ...interface{}) *Error {
	return &Error{Platform: platform, Message: fmt.Sprintf(format, args...)}
}

type Factory func(cfg config.Config, creds Credentials) Provider

// Registry maps a platform name to its provider factory. Dispatch is by
// name, not inheritance; the platforms share nothing beyond the contract.
type Registry struct {
	cfg       config.Config
	factories map[string]Factory
}

func NewRegistry(cfg config.Config) *Registry {
	r := &Registry{cfg: cfg, factories: make(map[string]Factory)}
	r.Register("instagram", NewInstagramProvider)
	r.Register("tiktok", NewTiktokProvider)
	return r
}

func (r *Registry) Register(platform string, f Factory) {
	r.factories[platform] = f
}

func (r *Registry) Get(platform string, creds Credentials) (Provider, error) {
	f, ok := r.factories[platform]
	if !ok {
		return nil, permanentf(platform, "unsupported platform")
	}
	return f(r.cfg, creds), nil
}
