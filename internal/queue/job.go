package queue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DispatchJob asks a worker to send one scheduled message on behalf of its
// owner.
type DispatchJob struct {
	ID     string `json:"scheduled_message_id"`
	UserID string `json:"user_id"`
}

var ErrInvalidJob = errors.New("invalid dispatch job")

func EncodeJob(job DispatchJob) ([]byte, error) {
	if err := job.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(job)
}

func DecodeJob(body []byte) (DispatchJob, error) {
	var job DispatchJob
	if err := json.Unmarshal(body, &job); err != nil {
		return DispatchJob{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if err := job.validate(); err != nil {
		return DispatchJob{}, err
	}
	return job, nil
}

func (j DispatchJob) validate() error {
	if j.ID == "" || j.UserID == "" {
		return fmt.Errorf("%w: scheduled_message_id and user_id are required", ErrInvalidJob)
	}
	return nil
}
