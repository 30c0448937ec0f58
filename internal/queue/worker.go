package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/postwise/postwise/internal/models"
	"github.com/postwise/postwise/internal/provider"
	"github.com/postwise/postwise/pkg/utils"
)

func (w *Worker) HandlePublishTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshalling publish payload: %v: %w", err, asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	return w.process(ctx, payload.PostID, payload.ScheduleID, retried >= maxRetry)
}

// process runs one publish attempt. lastAttempt marks the final try of the
// retry budget: a transient failure then becomes terminal and fires the
// single failure side effect.
func (w *Worker) process(ctx context.Context, postID, scheduleID int64, lastAttempt bool) error {
	post, err := w.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		// the data is gone; retrying cannot bring it back
		slog.Error("post not found for publish job", "post_id", postID, "schedule_id", scheduleID)
		return fmt.Errorf("post %d not found: %w", postID, asynq.SkipRetry)
	}

	schedule := post.FindSchedule(scheduleID)
	if schedule == nil {
		slog.Error("schedule not found for publish job", "post_id", postID, "schedule_id", scheduleID)
		return fmt.Errorf("schedule %d not found on post %d: %w", scheduleID, postID, asynq.SkipRetry)
	}

	// duplicate delivery guard: overlapping reconciler and queue triggers
	// both land here, only the first one past this check does any work
	if !schedule.Processable() {
		slog.Warn("schedule already resolved, skipping",
			"schedule_id", scheduleID, "status", schedule.Status)
		return nil
	}

	channel, err := w.cr.GetByID(ctx, schedule.ChannelID)
	if err != nil {
		return err
	}
	if channel == nil {
		return w.failPermanently(ctx, post, schedule,
			fmt.Sprintf("channel %d not found", schedule.ChannelID))
	}
	if channel.ConnectionStatus != models.ChannelStatusActive {
		// reject before any network I/O; a dead channel cannot heal mid-retry
		return w.failPermanently(ctx, post, schedule,
			fmt.Sprintf("channel %d is %s, not active", channel.ID, channel.ConnectionStatus))
	}

	p, err := w.channelProvider(channel)
	if err != nil {
		return w.failPermanently(ctx, post, schedule, err.Error())
	}

	result, err := p.Publish(ctx, provider.Content{
		Text:      post.Caption,
		Title:     post.Title,
		MediaURLs: post.MediaURLs,
		MediaType: post.MediaType,
	})
	if err != nil {
		return w.handlePublishError(ctx, post, schedule, err, lastAttempt)
	}

	return w.handlePublishSuccess(ctx, post, schedule, channel, result)
}

func (w *Worker) channelProvider(channel *models.Channel) (provider.Provider, error) {
	accessToken, err := utils.Decrypt(channel.AccessToken, []byte(w.cfg.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("decrypting access token for channel %d: %w", channel.ID, err)
	}
	refreshToken, err := utils.Decrypt(channel.RefreshToken, []byte(w.cfg.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("decrypting refresh token for channel %d: %w", channel.ID, err)
	}

	return w.providers.Get(channel.Platform, provider.Credentials{
		AccountID:    channel.AccountID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

func (w *Worker) handlePublishSuccess(ctx context.Context, post *models.Post, schedule *models.Schedule, channel *models.Channel, result *provider.Result) error {
	publishedAt := time.Now().UTC()

	updated, err := w.pr.MarkSchedulePublished(ctx, schedule.ID, result.PlatformPostID, result.URL, publishedAt)
	if err != nil {
		// the platform accepted the post; retrying only re-runs this write,
		// which the published_at guard keeps idempotent
		return err
	}
	if !updated {
		slog.Warn("schedule was resolved concurrently, skipping side effects", "schedule_id", schedule.ID)
		return nil
	}

	schedule.Status = models.ScheduleStatusPublished
	schedule.PlatformPostID = result.PlatformPostID
	schedule.PlatformURL = result.URL
	schedule.PublishedAt = &publishedAt

	externalID, err := gonanoid.New()
	if err != nil {
		slog.Error(err.Error())
	}
	audit := &models.PublishedPost{
		ExternalID:     externalID,
		PostID:         post.ID,
		ChannelID:      channel.ID,
		ScheduleID:     schedule.ID,
		Platform:       schedule.Platform,
		PlatformPostID: result.PlatformPostID,
		PlatformURL:    result.URL,
		PublishedAt:    publishedAt,
	}
	if _, err := w.ppr.Create(ctx, audit); err != nil {
		// never fail the job here: the publish happened and the schedule is
		// already terminal
		slog.Error("failed to write published post audit record",
			"post_id", post.ID, "schedule_id", schedule.ID, "error", err)
	}

	w.dispatcher.PublishSucceeded(post, schedule)
	return nil
}

func (w *Worker) handlePublishError(ctx context.Context, post *models.Post, schedule *models.Schedule, pubErr error, lastAttempt bool) error {
	permanent := provider.IsPermanent(pubErr)
	terminal := permanent || lastAttempt

	if err := w.pr.RecordAttemptFailure(ctx, schedule.ID, pubErr.Error(), terminal); err != nil {
		slog.Error("failed to record publish attempt failure", "schedule_id", schedule.ID, "error", err)
	}
	schedule.Attempts++
	schedule.LastError = pubErr.Error()

	if terminal {
		schedule.Status = models.ScheduleStatusFailed
		w.dispatcher.PublishFailed(post, schedule, pubErr.Error())
	}

	if permanent {
		slog.Error("permanent publish error, not retrying",
			"schedule_id", schedule.ID, "error", pubErr)
		return fmt.Errorf("publishing schedule %d: %v: %w", schedule.ID, pubErr, asynq.SkipRetry)
	}
	return fmt.Errorf("publishing schedule %d: %w", schedule.ID, pubErr)
}

// failPermanently resolves a schedule that can never succeed: missing or
// inactive channel, undecryptable credentials, unknown platform.
func (w *Worker) failPermanently(ctx context.Context, post *models.Post, schedule *models.Schedule, msg string) error {
	if err := w.pr.RecordAttemptFailure(ctx, schedule.ID, msg, true); err != nil {
		slog.Error("failed to record publish failure", "schedule_id", schedule.ID, "error", err)
	}
	schedule.Status = models.ScheduleStatusFailed
	schedule.Attempts++
	schedule.LastError = msg

	w.dispatcher.PublishFailed(post, schedule, msg)

	return fmt.Errorf("publishing schedule %d: %s: %w", schedule.ID, msg, asynq.SkipRetry)
}
