package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const completedRetention = 24 * time.Hour

// Manager wraps the asynq client behind the Enqueuer contract. One logical
// work distribution point; any number of worker processes may consume from
// the backing Redis store concurrently.
type Manager struct {
	client      *asynq.Client
	inspector   *asynq.Inspector
	maxAttempts int
}

func NewManager(redis asynq.RedisClientOpt, maxAttempts int) *Manager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Manager{
		client:      asynq.NewClient(redis),
		inspector:   asynq.NewInspector(redis),
		maxAttempts: maxAttempts,
	}
}

func (m *Manager) Close() error {
	return m.client.Close()
}

// Enqueue schedules a publish job for dueAt. A duplicate enqueue for the same
// schedule replaces the existing entry, whichever priority queue holds it.
// When the existing job is actively running, Enqueue reports success without
// touching it. Enqueue failures surface to the caller: the schedule stays
// pending and the reconciler will ask again.
func (m *Manager) Enqueue(ctx context.Context, postID, scheduleID int64, dueAt time.Time, priority Priority) (string, error) {
	payload, err := json.Marshal(PublishPayload{PostID: postID, ScheduleID: scheduleID})
	if err != nil {
		return "", err
	}

	jobID := JobID(postID, scheduleID)
	delay := time.Until(dueAt)
	if delay <= 0 {
		// the caller missed the window; accept and process immediately
		slog.Warn("enqueueing past-due schedule for immediate processing",
			"post_id", postID, "schedule_id", scheduleID, "due_at", dueAt)
		delay = 0
	}

	// asynq scopes task-id uniqueness per queue, so a leftover entry under
	// the other priority has to go first or both would fire
	if !m.evict(otherPriority(priority), jobID) {
		return jobID, nil
	}

	task := asynq.NewTask(TaskTypePublishSchedule, payload)
	opts := []asynq.Option{
		asynq.TaskID(jobID),
		asynq.Queue(string(priority)),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(m.maxAttempts - 1),
		asynq.Retention(completedRetention),
	}

	_, err = m.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		if !m.evict(priority, jobID) {
			return jobID, nil
		}
		_, err = m.client.EnqueueContext(ctx, task, opts...)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// another enqueuer replaced the entry between our evict and
			// re-enqueue; either way the job is live
			return jobID, nil
		}
	}
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return jobID, nil
}

// evict deletes jobID from the given queue. It reports false when the entry
// exists but cannot be removed; asynq only refuses to delete a task that is
// being processed right now, and an in-flight publish must not be doubled up
// or marked failed.
func (m *Manager) evict(q Priority, jobID string) bool {
	return evicted(m.inspector.DeleteTask(string(q), jobID))
}

func evicted(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, asynq.ErrQueueNotFound),
		errors.Is(err, asynq.ErrTaskNotFound):
		return true
	default:
		return false
	}
}

func otherPriority(p Priority) Priority {
	if p == PriorityCritical {
		return PriorityDefault
	}
	return PriorityCritical
}

// Cancel removes a not-yet-started job. Returns false when the job is
// already running, finished, or unknown; an in-flight publish cannot be
// interrupted.
func (m *Manager) Cancel(jobID string) bool {
	return m.removeTask(jobID)
}

func (m *Manager) removeTask(jobID string) bool {
	for _, q := range []Priority{PriorityCritical, PriorityDefault} {
		if err := m.inspector.DeleteTask(string(q), jobID); err == nil {
			return true
		}
	}
	return false
}

type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Delayed   int `json:"delayed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

func (m *Manager) Stats() (*Stats, error) {
	var stats Stats
	for _, q := range []Priority{PriorityCritical, PriorityDefault} {
		info, err := m.inspector.GetQueueInfo(string(q))
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				continue
			}
			slog.Info(err.Error())
			return nil, err
		}
		stats.Waiting += info.Pending
		stats.Active += info.Active
		stats.Delayed += info.Scheduled + info.Retry
		stats.Completed += info.Completed
		stats.Failed += info.Archived
	}
	return &stats, nil
}
