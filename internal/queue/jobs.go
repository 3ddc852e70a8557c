package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// BuildBundleTask is scheduled each time a user requests an archive.
	BuildBundleTask = "bundle:build"
)

// FileRef points the worker at one uploaded original in object storage.
type FileRef struct {
	ObjectKey string `json:"object_key"`
	FileName  string `json:"file_name"`
	MIME      string `json:"mime"`
}

// BuildPayload is serialized into the task so the worker knows which
// objects to pull and which exam schema to apply.
type BuildPayload struct {
	BundleID   string    `json:"bundle_id"`
	ExamID     string    `json:"exam_id"`
	RollNumber string    `json:"roll_number"`
	Policy     string    `json:"policy"`
	Files      []FileRef `json:"files"`
}

// EnqueueBuild enqueues an archive build job.
func EnqueueBuild(ctx context.Context, client *asynq.Client, payload BuildPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(BuildBundleTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return fmt.Errorf("enqueue build task: %w", err)
	}
	return nil
}
