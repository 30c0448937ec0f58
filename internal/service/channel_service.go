package service

import (
	"context"
	"errors"
	"time"

	config "github.com/postwise/postwise/configs"
	"github.com/postwise/postwise/internal/models"
	"github.com/postwise/postwise/internal/provider"
	"github.com/postwise/postwise/internal/repository"
	"github.com/postwise/postwise/pkg/utils"
)

var ErrChannelNotFound = errors.New("channel not found")

type ChannelService interface {
	List(ctx context.Context, brandID int64) ([]*models.Channel, error)
	TestConnection(ctx context.Context, channelID int64) error
}

type channelService struct {
	cfg       config.Config
	cr        repository.ChannelRepository
	providers *provider.Registry
}

func NewChannelService(cfg config.Config, cr repository.ChannelRepository, providers *provider.Registry) ChannelService {
	return &channelService{cfg: cfg, cr: cr, providers: providers}
}

func (s *channelService) List(ctx context.Context, brandID int64) ([]*models.Channel, error) {
	return s.cr.ListByBrandID(ctx, brandID)
}

// TestConnection runs the provider's read-only check on demand and records
// the outcome on the channel, same as the periodic health sweep.
func (s *channelService) TestConnection(ctx context.Context, channelID int64) error {
	channel, err := s.cr.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if channel == nil {
		return ErrChannelNotFound
	}

	checkErr := s.runCheck(ctx, channel)

	status := models.ChannelStatusActive
	message := ""
	if checkErr != nil {
		status = models.ChannelStatusError
		message = checkErr.Error()
	}
	if err := s.cr.RecordHealthCheck(ctx, channel.ID, status, message, time.Now()); err != nil {
		return err
	}

	return checkErr
}

func (s *channelService) runCheck(ctx context.Context, channel *models.Channel) error {
	accessToken, err := utils.Decrypt(channel.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	p, err := s.providers.Get(channel.Platform, provider.Credentials{
		AccountID:   channel.AccountID,
		AccessToken: accessToken,
	})
	if err != nil {
		return err
	}

	return p.TestConnection(ctx)
}
