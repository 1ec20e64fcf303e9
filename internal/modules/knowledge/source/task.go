package source

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiv669/echo-core-go/internal/pkg/taskqueue"
)

// TaskTypeIngest identifies queued repository imports.
const TaskTypeIngest = "source:ingest"

// EnqueueIngest queues one import task per repository URL under a shared batch
// group and starts the pending ones. Deduplication is by URL, so re-importing
// a repo that is already queued returns the live task instead of a new one.
func (s *Service) EnqueueIngest(ctx context.Context, repoURLs []string) (string, []*taskqueue.Task, error) {
	batchID := "import-" + uuid.New().String()[:8]
	tasks := make([]*taskqueue.Task, 0, len(repoURLs))

	for _, raw := range repoURLs {
		repoURL := strings.TrimSpace(raw)
		if repoURL == "" {
			continue
		}

		payload := IngestPayload{RepoURL: repoURL}
		task, err := s.taskSvc.Enqueue(ctx, TaskTypeIngest, payload, repoURL, batchID)
		if err != nil {
			return "", nil, err
		}
		tasks = append(tasks, task)

		if task.Status == taskqueue.TaskPending {
			go s.executeIngest(context.Background(), task.ID, payload)
		}
	}
	return batchID, tasks, nil
}

func (s *Service) executeIngest(ctx context.Context, taskID string, payload IngestPayload) {
	if err := s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskRunning, nil, ""); err != nil && s.logger != nil {
		s.logger.Warn("ingest task start failed", zap.String("task", taskID), zap.Error(err))
	}

	node, err := s.Ingest(ctx, payload.RepoURL, payload.Title, "")
	if err != nil {
		_ = s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, nil, err.Error())
		return
	}

	_ = s.taskSvc.UpdateStatus(ctx, taskID, taskqueue.TaskCompleted, gin.H{
		"node_id": node.ID,
		"title":   node.Title,
		"source":  node.SourceLink,
	}, "")
}

// RetryIngest re-runs a failed or cancelled import as a fresh task. Wired into
// the task admin retry endpoint.
func (s *Service) RetryIngest(ctx context.Context, task *taskqueue.Task) (*taskqueue.Task, error) {
	var payload IngestPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return nil, err
	}

	fresh, err := s.taskSvc.Enqueue(ctx, TaskTypeIngest, payload, "", task.GroupKey)
	if err != nil {
		return nil, err
	}
	if fresh.Status == taskqueue.TaskPending {
		go s.executeIngest(context.Background(), fresh.ID, payload)
	}
	return fresh, nil
}
