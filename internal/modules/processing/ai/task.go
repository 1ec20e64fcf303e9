package ai

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiv669/echo-core-go/internal/pkg/pagination"
	"github.com/shiv669/echo-core-go/internal/pkg/response"
	"github.com/shiv669/echo-core-go/internal/pkg/taskqueue"
)

// TaskRetrier re-enqueues a failed or cancelled task of one type. The module
// owning a task type registers its retrier at assembly time, which keeps this
// admin surface free of imports into the executing modules.
type TaskRetrier func(ctx context.Context, task *taskqueue.Task) (*taskqueue.Task, error)

// RegisterTaskRetrier wires the re-enqueue function for one task type.
// Retry requests for unregistered types are rejected.
func (h *Handler) RegisterTaskRetrier(taskType string, fn TaskRetrier) {
	h.retriers[taskType] = fn
}

// loadTask fetches the task addressed by the :id param and writes the error
// response itself on a miss.
func (h *Handler) loadTask(c *gin.Context) (*taskqueue.Task, bool) {
	task, err := h.svc.taskSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return nil, false
	}
	if task == nil {
		response.NotFound(c)
		return nil, false
	}
	return task, true
}

func groupKeyParam(c *gin.Context) (string, bool) {
	key := c.Param("groupKey")
	if key == "" {
		response.BadRequest(c, "group id is required")
		return "", false
	}
	return key, true
}

func pagedTasks(c *gin.Context, tasks []*taskqueue.Task, total int64, q pagination.Query) {
	response.Paged(c, tasks, pagination.Meta(total, q))
}

func queryFilter(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

// GET /ai/tasks?type=&status=&group=
func (h *Handler) listTasks(c *gin.Context) {
	q := pagination.FromContext(c)

	var status *taskqueue.TaskStatus
	if v := c.Query("status"); v != "" {
		s := taskqueue.TaskStatus(v)
		status = &s
	}

	tasks, total, err := h.svc.taskSvc.List(c.Request.Context(), q.Page, q.Size,
		queryFilter(c, "type"), status, queryFilter(c, "group"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	pagedTasks(c, tasks, total, q)
}

// GET /ai/tasks/:id
func (h *Handler) taskDetail(c *gin.Context) {
	if task, ok := h.loadTask(c); ok {
		response.OK(c, task)
	}
}

// DELETE /ai/tasks/:id
func (h *Handler) removeTask(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.taskSvc.DeleteByID(c.Request.Context(), id); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.NoContent(c)
}

// parseBeforeStamp accepts unix milliseconds or RFC3339. Anything else means
// no cutoff.
func parseBeforeStamp(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UnixMilli()
	}
	return 0
}

// DELETE /ai/tasks?before=<unix_ms|RFC3339>
func (h *Handler) purgeTasks(c *gin.Context) {
	cutoff := parseBeforeStamp(c.Query("before"))
	if err := h.svc.taskSvc.DeleteCompleted(c.Request.Context(), cutoff); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

// POST /ai/tasks/:id/cancel
func (h *Handler) cancelTask(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	switch task.Status {
	case taskqueue.TaskCompleted, taskqueue.TaskFailed, taskqueue.TaskCancelled:
		response.BadRequest(c, "任务已结束，无法取消")
		return
	case taskqueue.TaskRunning:
		if err := h.svc.taskSvc.UpdateStatus(ctx, task.ID, taskqueue.TaskCancelled, nil, "cancelled by user"); err != nil {
			response.InternalError(c, err)
			return
		}
	default:
		if err := h.svc.taskSvc.Cancel(ctx, task.ID); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	response.NoContent(c)
}

// POST /ai/tasks/:id/retry
func (h *Handler) retryTask(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	retryable := task.Status == taskqueue.TaskFailed || task.Status == taskqueue.TaskCancelled
	if !retryable {
		response.BadRequest(c, "任务无法重试")
		return
	}

	retry, ok := h.retriers[task.Type]
	if !ok {
		response.BadRequest(c, "该类型任务不支持重试")
		return
	}

	fresh, err := retry(c.Request.Context(), task)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, fresh)
}

// GET /ai/tasks/group/:groupKey
func (h *Handler) tasksByGroup(c *gin.Context) {
	key, ok := groupKeyParam(c)
	if !ok {
		return
	}
	q := pagination.FromContext(c)

	tasks, total, err := h.svc.taskSvc.List(c.Request.Context(), q.Page, q.Size, nil, nil, &key)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	pagedTasks(c, tasks, total, q)
}

// cancelOne stops a single live task. Settled tasks are left untouched.
func (h *Handler) cancelOne(ctx context.Context, t *taskqueue.Task) bool {
	switch t.Status {
	case taskqueue.TaskPending:
		return h.svc.taskSvc.Cancel(ctx, t.ID) == nil
	case taskqueue.TaskRunning:
		return h.svc.taskSvc.UpdateStatus(ctx, t.ID, taskqueue.TaskCancelled, nil, "cancelled by group") == nil
	}
	return false
}

// DELETE /ai/tasks/group/:groupKey
func (h *Handler) cancelGroup(c *gin.Context) {
	key, ok := groupKeyParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	all, _, err := h.svc.taskSvc.List(ctx, 1, 1000, nil, nil, &key)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	stopped := 0
	for _, t := range all {
		if h.cancelOne(ctx, t) {
			stopped++
		}
	}
	response.OK(c, gin.H{"cancelled": stopped})
}
