package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/postwise/postwise/internal/queue"
	"github.com/postwise/postwise/internal/repository"
)

// queuedStaleAfter is how long a queued schedule may sit past its due time
// before the sweep assumes its job was lost and re-submits it. The deduped
// job id makes the re-submission a replace, never a duplicate.
const queuedStaleAfter = 10 * time.Minute

// ReconcilerJob is the safety net under the delayed-job queue. A schedule can
// stay pending past its due time when an enqueue was lost to a crash, a
// flushed queue store, or clock drift; each sweep bounds that staleness to
// one interval.
type ReconcilerJob struct {
	pr repository.PostRepository
	q  queue.Enqueuer
}

func NewReconcilerJob(pr repository.PostRepository, q queue.Enqueuer) *ReconcilerJob {
	return &ReconcilerJob{pr: pr, q: q}
}

func (j *ReconcilerJob) Run() {
	ctx := context.Background()
	now := time.Now().UTC()

	due, err := j.pr.ListDueSchedules(ctx, now, now.Add(-queuedStaleAfter))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, s := range due {
		jobID, err := j.q.Enqueue(ctx, s.PostID, s.ID, s.ScheduledFor, queue.PriorityCritical)
		if err != nil {
			// never leave a due schedule silently stuck in pending
			slog.Error("reconciler failed to enqueue due schedule",
				"post_id", s.PostID, "schedule_id", s.ID, "error", err)
			if ferr := j.pr.FailSchedule(ctx, s.ID, "failed to enqueue publish job: "+err.Error()); ferr != nil {
				slog.Error("failed to mark schedule failed", "schedule_id", s.ID, "error", ferr)
			}
			continue
		}

		if err := j.pr.MarkScheduleQueued(ctx, s.ID, jobID); err != nil {
			slog.Error("failed to mark schedule queued", "schedule_id", s.ID, "error", err)
		}
	}

	if len(due) > 0 {
		slog.Info("reconciler sweep re-submitted due schedules", "count", len(due))
	}
}
