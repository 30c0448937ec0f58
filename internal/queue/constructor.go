package queue

import (
	"context"
	"fmt"
	"time"

	config "github.com/postwise/postwise/configs"
	"github.com/postwise/postwise/internal/models"
	"github.com/postwise/postwise/internal/provider"
	"github.com/postwise/postwise/internal/repository"
)

const TaskTypePublishSchedule = "publish:schedule"

type PublishPayload struct {
	PostID     int64 `json:"post_id"`
	ScheduleID int64 `json:"schedule_id"`
}

// JobID is derived from the schedule identity, never generated. Re-submitting
// the same schedule therefore replaces the queue entry instead of duplicating
// it, which is what makes the reconciler safe to run repeatedly.
func JobID(postID, scheduleID int64) string {
	return fmt.Sprintf("publish:%d:%d", postID, scheduleID)
}

type Priority string

const (
	// PriorityDefault is for schedules enqueued ahead of their due time.
	PriorityDefault Priority = "default"
	// PriorityCritical is for already-due schedules; they jump ahead of
	// work queued further in advance.
	PriorityCritical Priority = "critical"
)

// Enqueuer is the queue contract consumed by the post service and the
// reconciler.
type Enqueuer interface {
	Enqueue(ctx context.Context, postID, scheduleID int64, dueAt time.Time, priority Priority) (string, error)
	Cancel(jobID string) bool
}

// SideEffectDispatcher fires notifications/emails detached from the worker's
// critical path. Implementations must never return or propagate errors.
type SideEffectDispatcher interface {
	PublishSucceeded(post *models.Post, schedule *models.Schedule)
	PublishFailed(post *models.Post, schedule *models.Schedule, errMsg string)
}

type Worker struct {
	cfg        config.Config
	pr         repository.PostRepository
	cr         repository.ChannelRepository
	ppr        repository.PublishedPostRepository
	providers  *provider.Registry
	dispatcher SideEffectDispatcher
}

func NewWorker(
	cfg config.Config,
	pr repository.PostRepository,
	cr repository.ChannelRepository,
	ppr repository.PublishedPostRepository,
	providers *provider.Registry,
	dispatcher SideEffectDispatcher) *Worker {
	return &Worker{
		cfg:        cfg,
		pr:         pr,
		cr:         cr,
		ppr:        ppr,
		providers:  providers,
		dispatcher: dispatcher,
	}
}
