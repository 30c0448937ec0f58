package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	config "github.com/postwise/postwise/configs"
	"github.com/postwise/postwise/internal/models"
	"github.com/postwise/postwise/internal/provider"
	"github.com/postwise/postwise/internal/repository"
	"github.com/postwise/postwise/pkg/utils"
)

type TokenRefreshJob struct {
	cfg       config.Config
	cr        repository.ChannelRepository
	providers *provider.Registry
}

func NewTokenRefreshJob(cfg config.Config, cr repository.ChannelRepository, providers *provider.Registry) *TokenRefreshJob {
	return &TokenRefreshJob{cfg: cfg, cr: cr, providers: providers}
}

// Run refreshes tokens expiring within the next 30 minutes. A refresh
// failure marks the channel expired so the publish worker rejects it instead
// of burning retries against a dead token.
func (j *TokenRefreshJob) Run() {
	ctx := context.Background()

	now := time.Now()
	channels, err := j.cr.ListExpiringTokens(ctx, now, now.Add(30*time.Minute))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 10)

	for _, channel := range channels {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(channel *models.Channel) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := j.refreshChannel(ctx, channel); err != nil {
				slog.Error("unable to refresh channel tokens",
					"channel_id", channel.ID, "platform", channel.Platform, "error", err)
				if serr := j.cr.SetConnectionStatus(ctx, channel.ID, models.ChannelStatusExpired); serr != nil {
					slog.Error("failed to mark channel expired", "channel_id", channel.ID, "error", serr)
				}
			}
		}(channel)
	}

	wg.Wait()
}

func (j *TokenRefreshJob) refreshChannel(ctx context.Context, channel *models.Channel) error {
	accessToken, err := utils.Decrypt(channel.AccessToken, []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}
	refreshToken, err := utils.Decrypt(channel.RefreshToken, []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	p, err := j.providers.Get(channel.Platform, provider.Credentials{
		AccountID:    channel.AccountID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
	if err != nil {
		return err
	}

	tokens, err := p.RefreshToken(ctx)
	if err != nil {
		return err
	}

	encryptedAccess, err := utils.Encrypt([]byte(tokens.AccessToken), []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}
	encryptedRefresh, err := utils.Encrypt([]byte(tokens.RefreshToken), []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	return j.cr.SetTokens(ctx, channel.ID, encryptedAccess, encryptedRefresh, tokens.ExpiresAt)
}
