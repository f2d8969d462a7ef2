package tasks

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeGeneratePodcast = "podcast:generate"
	TypeRebuildFeed     = "feed:rebuild"
)

// GenerateTimeout bounds one pipeline run. Provider deadlines are much
// shorter; this only catches a stuck worker.
const GenerateTimeout = 45 * time.Minute

type GeneratePodcastTaskPayload struct {
	JobID string `json:"job_id"`
}

// NewGeneratePodcastTask builds the task for one job. Phases are not
// resumable, so asynq must never redeliver it after a failure.
func NewGeneratePodcastTask(jobID string) (*asynq.Task, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}
	payload, err := json.Marshal(GeneratePodcastTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGeneratePodcast, payload, asynq.MaxRetry(0), asynq.Timeout(GenerateTimeout)), nil
}

// ParseGeneratePodcastTask decodes the payload of a generate task.
func ParseGeneratePodcastTask(t *asynq.Task) (GeneratePodcastTaskPayload, error) {
	var p GeneratePodcastTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, err
	}
	if p.JobID == "" {
		return p, errors.New("payload has no job_id")
	}
	return p, nil
}

func NewRebuildFeedTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeRebuildFeed, nil, asynq.MaxRetry(3)), nil
}
