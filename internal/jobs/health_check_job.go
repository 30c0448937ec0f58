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

// HealthCheckJob runs a cheap read-only call against each active channel and
// records the result. A failing check flips the channel to error status,
// which the publish worker treats as a permanent rejection.
type HealthCheckJob struct {
	cfg       config.Config
	cr        repository.ChannelRepository
	providers *provider.Registry
}

func NewHealthCheckJob(cfg config.Config, cr repository.ChannelRepository, providers *provider.Registry) *HealthCheckJob {
	return &HealthCheckJob{cfg: cfg, cr: cr, providers: providers}
}

func (j *HealthCheckJob) Run() {
	ctx := context.Background()

	channels, err := j.cr.ListByStatus(ctx, models.ChannelStatusActive)
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

			j.checkChannel(ctx, channel)
		}(channel)
	}

	wg.Wait()
}

func (j *HealthCheckJob) checkChannel(ctx context.Context, channel *models.Channel) {
	checkedAt := time.Now()

	status := models.ChannelStatusActive
	checkError := ""

	if err := j.testConnection(ctx, channel); err != nil {
		status = models.ChannelStatusError
		checkError = err.Error()
		slog.Warn("channel connection test failed",
			"channel_id", channel.ID, "platform", channel.Platform, "error", err)
	}

	if err := j.cr.RecordHealthCheck(ctx, channel.ID, status, checkError, checkedAt); err != nil {
		slog.Error("failed to record channel health check", "channel_id", channel.ID, "error", err)
	}
}

func (j *HealthCheckJob) testConnection(ctx context.Context, channel *models.Channel) error {
	accessToken, err := utils.Decrypt(channel.AccessToken, []byte(j.cfg.SecretKey))
	if err != nil {
		return err
	}

	p, err := j.providers.Get(channel.Platform, provider.Credentials{
		AccountID:   channel.AccountID,
		AccessToken: accessToken,
	})
	if err != nil {
		return err
	}

	return p.TestConnection(ctx)
}
