// Package notify delivers the side effects of a publish outcome. Everything
// here is fire-and-forget: the publish worker has already persisted state
// before dispatch, and no sink failure may reach the worker's job result.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mrz1836/postmark"
	config "github.com/postwise/postwise/configs"
	"github.com/postwise/postwise/internal/models"
	"github.com/postwise/postwise/internal/repository"
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type postmarkSender struct {
	client *postmark.Client
	from   string
}

// NewPostmarkSender builds the transactional email sink. Returns an error on
// missing configuration so main can decide to run without email entirely.
func NewPostmarkSender(cfg config.Postmark) (EmailSender, error) {
	if cfg.ServerToken == "" || cfg.SenderEmail == "" {
		return nil, errors.New("postmark server token and sender email are required")
	}
	return &postmarkSender{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		from:   cfg.SenderEmail,
	}, nil
}

func (s *postmarkSender) SendEmail(ctx context.Context, to, subject, body string) error {
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       to,
		Subject:  subject,
		TextBody: body,
	})
	if err != nil {
		return err
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message)
	}
	return nil
}

// Dispatcher fans a publish outcome out to the in-app notification store and
// the email sink. email may be nil when transactional email is not
// configured.
type Dispatcher struct {
	nr    repository.NotificationRepository
	ur    repository.UserRepository
	email EmailSender

	wg sync.WaitGroup
}

func NewDispatcher(nr repository.NotificationRepository, ur repository.UserRepository, email EmailSender) *Dispatcher {
	return &Dispatcher{nr: nr, ur: ur, email: email}
}

func (d *Dispatcher) PublishSucceeded(post *models.Post, schedule *models.Schedule) {
	d.detach(func(ctx context.Context) {
		d.publishSucceeded(ctx, post, schedule)
	})
}

func (d *Dispatcher) PublishFailed(post *models.Post, schedule *models.Schedule, errMsg string) {
	d.detach(func(ctx context.Context) {
		d.publishFailed(ctx, post, schedule, errMsg)
	})
}

// Wait blocks until in-flight side effects finish. Used on shutdown and in
// tests; callers on the publish path never wait.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// detach runs fn off the critical path. Panics and errors stop here.
func (d *Dispatcher) detach(fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("side effect panicked", "panic", r)
			}
		}()
		fn(context.Background())
	}()
}

func (d *Dispatcher) publishSucceeded(ctx context.Context, post *models.Post, schedule *models.Schedule) {
	message := fmt.Sprintf("Your post was published to %s", schedule.Platform)
	if schedule.PlatformURL != "" {
		message = fmt.Sprintf("%s: %s", message, schedule.PlatformURL)
	}

	d.createNotification(ctx, post, schedule, models.NotificationPostPublished, message)

	if post.Settings.NotifyOnPublish {
		d.sendEmail(ctx, post, "Your post is live", message)
	}
}

func (d *Dispatcher) publishFailed(ctx context.Context, post *models.Post, schedule *models.Schedule, errMsg string) {
	message := fmt.Sprintf("Publishing to %s failed: %s", schedule.Platform, errMsg)

	d.createNotification(ctx, post, schedule, models.NotificationPostFailed, message)
	d.sendEmail(ctx, post, "Your scheduled post failed", message)
}

func (d *Dispatcher) createNotification(ctx context.Context, post *models.Post, schedule *models.Schedule, kind, message string) {
	_, err := d.nr.Create(ctx, &models.Notification{
		UserID:     post.CreatorID,
		BrandID:    post.BrandID,
		Kind:       kind,
		Message:    message,
		PostID:     post.ID,
		ScheduleID: schedule.ID,
	})
	if err != nil {
		slog.Error("failed to create notification",
			"post_id", post.ID, "schedule_id", schedule.ID, "error", err)
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, post *models.Post, subject, body string) {
	if d.email == nil {
		return
	}

	user, err := d.ur.GetByID(ctx, post.CreatorID)
	if err != nil || user == nil || user.Email == "" {
		slog.Error("failed to resolve notification recipient", "user_id", post.CreatorID, "error", err)
		return
	}

	if err := d.email.SendEmail(ctx, user.Email, subject, body); err != nil {
		slog.Error("failed to send notification email", "user_id", user.ID, "error", err)
	}
}
