package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/postwise/postwise/internal/models"
	"github.com/postwise/postwise/internal/queue"
	"github.com/postwise/postwise/internal/repository"
	"github.com/postwise/postwise/internal/transfer"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrPostNotFound     = errors.New("post not found")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrAlreadyPublished = errors.New("schedule is already published")
	ErrNotCancellable   = errors.New("schedule is already resolved")
)

const (
	// scheduleGrace absorbs clock skew between the caller and the server.
	scheduleGrace = 60 * time.Second
	// maxScheduleAhead caps how far out a schedule may be created.
	maxScheduleAhead = 365 * 24 * time.Hour
)

type PostService interface {
	CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, error)
	CancelSchedule(ctx context.Context, userID, postID, scheduleID int64) (*models.Post, error)
	PostInfo(ctx context.Context, postID int64) (*models.Post, error)
	List(ctx context.Context, brandID int64) ([]*models.Post, error)
	Remove(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db *sql.DB
	pr repository.PostRepository
	cr repository.ChannelRepository
	bm repository.BrandMemberRepository
	q  queue.Enqueuer
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	cr repository.ChannelRepository,
	bm repository.BrandMemberRepository,
	q queue.Enqueuer) PostService {
	return &postService{
		db: db,
		pr: pr,
		cr: cr,
		bm: bm,
		q:  q,
	}
}

// CreatePost persists the post with its schedules, then enqueues one publish
// job per schedule. An enqueue failure is returned to the caller rather than
// swallowed; the affected schedule stays pending and the reconciler picks it
// up on its next sweep.
func (s *postService) CreatePost(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, error) {
	if pc == nil {
		return nil, fmt.Errorf("%w: post creation data is nil", ErrValidation)
	}

	allowed, err := s.bm.HasPermission(ctx, userID, pc.BrandID, "post:create")
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrPermissionDenied
	}

	if pc.Caption == "" && len(pc.MediaURLs) == 0 {
		return nil, fmt.Errorf("%w: a post needs a caption or media", ErrValidation)
	}

	post := &models.Post{
		BrandID:   pc.BrandID,
		CreatorID: userID,
		Caption:   pc.Caption,
		Title:     pc.Title,
		MediaURLs: pc.MediaURLs,
		MediaType: models.DeriveMediaType(pc.MediaURLs),
		Settings:  models.PostSettings{NotifyOnPublish: pc.NotifyOnPublish},
	}

	now := time.Now()
	for _, sc := range pc.Schedules {
		if err := validateScheduledFor(sc.ScheduledFor, now); err != nil {
			return nil, err
		}

		channel, err := s.cr.GetByID(ctx, sc.ChannelID)
		if err != nil {
			return nil, err
		}
		if channel == nil || channel.BrandID != pc.BrandID {
			return nil, fmt.Errorf("%w: channel %d does not exist", ErrValidation, sc.ChannelID)
		}

		post.Schedules = append(post.Schedules, &models.Schedule{
			ChannelID: sc.ChannelID,
			// denormalized so provider routing never needs a channel lookup
			Platform:     channel.Platform,
			ScheduledFor: sc.ScheduledFor.UTC(),
		})
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = s.pr.Create(ctx, tx, post); err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	var enqueueErr error
	for _, sched := range post.Schedules {
		jobID, err := s.q.Enqueue(ctx, post.ID, sched.ID, sched.ScheduledFor, queue.PriorityDefault)
		if err != nil {
			slog.Error("failed to enqueue schedule",
				"post_id", post.ID, "schedule_id", sched.ID, "error", err)
			if enqueueErr == nil {
				enqueueErr = fmt.Errorf("scheduling publish job: %w", err)
			}
			continue
		}

		if err := s.pr.MarkScheduleQueued(ctx, sched.ID, jobID); err != nil {
			slog.Error("failed to mark schedule queued", "schedule_id", sched.ID, "error", err)
			continue
		}
		sched.Status = models.ScheduleStatusQueued
		sched.JobID = jobID
	}

	return post, enqueueErr
}

func validateScheduledFor(t time.Time, now time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("%w: scheduled_for is required", ErrValidation)
	}
	if t.Before(now.Add(-scheduleGrace)) {
		return fmt.Errorf("%w: scheduled_for %s is in the past", ErrValidation, t.Format(time.RFC3339))
	}
	if t.After(now.Add(maxScheduleAhead)) {
		return fmt.Errorf("%w: scheduled_for %s is more than a year out", ErrValidation, t.Format(time.RFC3339))
	}
	return nil
}

// CancelSchedule removes the queue entry best-effort and marks the schedule
// cancelled. A job already in flight cannot be interrupted: if the publish
// wins the race the caller gets ErrAlreadyPublished instead of a silent
// cancel.
func (s *postService) CancelSchedule(ctx context.Context, userID, postID, scheduleID int64) (*models.Post, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}

	allowed, err := s.bm.HasPermission(ctx, userID, post.BrandID, "post:cancel")
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrPermissionDenied
	}

	sched := post.FindSchedule(scheduleID)
	if sched == nil {
		return nil, ErrScheduleNotFound
	}

	switch sched.Status {
	case models.ScheduleStatusPublished:
		return nil, ErrAlreadyPublished
	case models.ScheduleStatusCancelled:
		return post, nil
	case models.ScheduleStatusFailed:
		return nil, ErrNotCancellable
	}

	if sched.JobID != "" {
		if removed := s.q.Cancel(sched.JobID); !removed {
			slog.Warn("publish job already started, cancellation may lose the race",
				"post_id", postID, "schedule_id", scheduleID, "job_id", sched.JobID)
		}
	}

	cancelled, err := s.pr.CancelSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		// a worker resolved the schedule between our read and the write
		post, err = s.pr.GetByID(ctx, postID)
		if err != nil {
			return nil, err
		}
		if fresh := post.FindSchedule(scheduleID); fresh != nil && fresh.Status == models.ScheduleStatusPublished {
			return nil, ErrAlreadyPublished
		}
		return post, nil
	}

	sched.Status = models.ScheduleStatusCancelled
	return post, nil
}

func (s *postService) PostInfo(ctx context.Context, postID int64) (*models.Post, error) {
	if postID == 0 {
		return nil, fmt.Errorf("%w: post id is not valid", ErrValidation)
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, ErrPostNotFound
	}
	return post, nil
}

func (s *postService) List(ctx context.Context, brandID int64) ([]*models.Post, error) {
	posts, err := s.pr.ListByBrandID(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	return posts, nil
}

// Remove soft-deletes the post from history. Live queue entries are left to
// resolve through the worker's own status check.
func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrPostNotFound
	}

	allowed, err := s.bm.HasPermission(ctx, userID, post.BrandID, "post:delete")
	if err != nil {
		return err
	}
	if !allowed {
		return ErrPermissionDenied
	}

	return s.pr.SoftRemove(ctx, postID)
}
