package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shiv669/echo-core-go/internal/pkg/pagination"
	pkgredis "github.com/shiv669/echo-core-go/internal/pkg/redis"
)

// TaskStatus is where a task currently sits in its lifecycle.
type TaskStatus string

// Active states.
const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
)

// Terminal states. Reaching one releases the task's dedup slot.
const (
	TaskCompleted TaskStatus = "completed" // finished cleanly, result recorded
	TaskFailed    TaskStatus = "failed"    // finished with an error message
	TaskCancelled TaskStatus = "cancelled" // stopped before it ever ran
)

func (st TaskStatus) isTerminal() bool {
	return st == TaskCompleted || st == TaskFailed || st == TaskCancelled
}

var (
	errTaskNotFound = errors.New("task not found")
	errNotPending   = errors.New("can only cancel pending tasks")
)

// Task is one queued unit of work, serialized as JSON under its own key.
type Task struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Status  TaskStatus      `json:"status"`

	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	DedupKey string `json:"dedup_key,omitempty"`
	GroupKey string `json:"group_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newTask(taskType string, payload json.RawMessage, dedupKey, groupKey string) *Task {
	task := &Task{ID: uuid.New().String(), Type: taskType, Status: TaskPending}
	task.Payload = payload
	task.DedupKey = dedupKey
	task.GroupKey = groupKey
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	return task
}

func (t *Task) matches(taskType *string, status *TaskStatus, groupKey *string) bool {
	if taskType != nil && t.Type != *taskType {
		return false
	}
	if status != nil && t.Status != *status {
		return false
	}
	if groupKey != nil && t.GroupKey != *groupKey {
		return false
	}
	return true
}

// createdBefore reports whether the task predates the cutoff. A zero or
// negative cutoff matches everything.
func (t *Task) createdBefore(cutoffMS int64) bool {
	return cutoffMS <= 0 || t.CreatedAt.UnixMilli() < cutoffMS
}

// Redis layout. Each task lives under its own expiring key; a sorted set
// indexes ids by creation time and a per-type hash tracks dedup keys of
// still-active tasks.
const (
	keyTaskPrefix = "echo:task:"
	keyIndex      = "echo:tasks:index"
	keyDedupSet   = "echo:tasks:dedup:"
	taskTTL       = 7 * 24 * time.Hour
)

// Service is the Redis-backed queue behind the admin task endpoints.
type Service struct {
	rc *pkgredis.Client
}

func NewService(rc *pkgredis.Client) *Service {
	return &Service{rc: rc}
}

func (s *Service) taskKey(id string) string { return keyTaskPrefix + id }

func (s *Service) dedupHashKey(taskType string) string { return keyDedupSet + taskType }

// Enqueue creates a new pending task. When dedupKey is set and an earlier
// task with the same key is still active, that task is returned instead.
func (s *Service) Enqueue(ctx context.Context, kind string, payload interface{}, dedupKey, groupKey string) (*Task, error) {
	if dedupKey != "" {
		if id, err := s.rc.Raw().HGet(ctx, s.dedupHashKey(kind), dedupKey).Result(); err == nil && id != "" {
			return s.GetByID(ctx, id)
		}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	task := newTask(kind, encoded, dedupKey, groupKey)
	blob, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	tx := s.rc.Raw().TxPipeline()
	tx.Set(ctx, s.taskKey(task.ID), blob, taskTTL)
	tx.ZAdd(ctx, keyIndex, redis.Z{Score: float64(task.CreatedAt.UnixMilli()), Member: task.ID})
	if dedupKey != "" {
		tx.HSet(ctx, s.dedupHashKey(kind), dedupKey, task.ID)
		tx.Expire(ctx, s.dedupHashKey(kind), taskTTL)
	}
	_, err = tx.Exec(ctx)
	return task, err
}

// GetByID retrieves a task. A missing or expired task yields (nil, nil).
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	raw, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	task := new(Task)
	if err := json.Unmarshal(raw, task); err != nil {
		return nil, err
	}
	return task, nil
}

// requireTask folds the missing and expired cases into one error.
func (s *Service) requireTask(ctx context.Context, id string) (*Task, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil || t == nil {
		return nil, errTaskNotFound
	}
	return t, nil
}

func (s *Service) writeTask(ctx context.Context, task *Task) error {
	blob, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.rc.Raw().Set(ctx, s.taskKey(task.ID), blob, taskTTL).Err()
}

// UpdateStatus moves a task to status and records the optional result payload
// or error message. Terminal statuses release the dedup slot so the same work
// can be enqueued again.
func (s *Service) UpdateStatus(ctx context.Context, id string, status TaskStatus, result interface{}, errMsg string) error {
	t, err := s.requireTask(ctx, id)
	if err != nil {
		return err
	}

	t.Status = status
	t.Error = errMsg
	t.UpdatedAt = time.Now()
	if result != nil {
		t.Result, _ = json.Marshal(result)
	}

	if status.isTerminal() && t.DedupKey != "" {
		s.rc.Raw().HDel(ctx, s.dedupHashKey(t.Type), t.DedupKey)
	}
	return s.writeTask(ctx, t)
}

// List returns tasks newest first, filtered by any of type, status, and group
// key. Pagination happens after filtering, so total counts matches only.
func (s *Service) List(ctx context.Context, page, size int, taskType *string, status *TaskStatus, groupKey *string) ([]*Task, int64, error) {
	taskIDs, err := s.rc.Raw().ZRevRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}

	matched := make([]*Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		task, loadErr := s.GetByID(ctx, id)
		if loadErr != nil || task == nil || !task.matches(taskType, status, groupKey) {
			continue
		}
		matched = append(matched, task)
	}

	window := pagination.OffsetQuery{Offset: (page - 1) * size, Limit: size}
	return pagination.Window(matched, window), int64(len(matched)), nil
}

// Cancel marks a pending task cancelled. Running tasks cannot be stopped.
func (s *Service) Cancel(ctx context.Context, id string) error {
	t, err := s.requireTask(ctx, id)
	if err != nil {
		return err
	}
	if t.Status != TaskPending {
		return errNotPending
	}
	return s.UpdateStatus(ctx, id, TaskCancelled, nil, "cancelled by admin")
}

// queueRemoval stages the deletion of a task and its index entries.
func (s *Service) queueRemoval(ctx context.Context, tx redis.Pipeliner, task *Task) {
	tx.Del(ctx, s.taskKey(task.ID))
	tx.ZRem(ctx, keyIndex, task.ID)
	if task.DedupKey != "" {
		tx.HDel(ctx, s.dedupHashKey(task.Type), task.DedupKey)
	}
}

// DeleteByID removes a single task along with its index entries.
func (s *Service) DeleteByID(ctx context.Context, id string) error {
	task, err := s.requireTask(ctx, id)
	if err != nil {
		return err
	}
	tx := s.rc.Raw().TxPipeline()
	s.queueRemoval(ctx, tx, task)
	_, err = tx.Exec(ctx)
	return err
}

// DeleteCompleted prunes terminal tasks, optionally only those created before
// cutoffMS (unix milliseconds).
func (s *Service) DeleteCompleted(ctx context.Context, cutoffMS int64) error {
	taskIDs, _ := s.rc.Raw().ZRange(ctx, keyIndex, 0, -1).Result()
	tx := s.rc.Raw().TxPipeline()
	for _, id := range taskIDs {
		t, err := s.GetByID(ctx, id)
		if err != nil || t == nil {
			continue
		}
		if !t.Status.isTerminal() || !t.createdBefore(cutoffMS) {
			continue
		}
		s.queueRemoval(ctx, tx, t)
	}
	_, err := tx.Exec(ctx)
	return err
}
