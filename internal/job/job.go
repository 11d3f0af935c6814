package job

import (
	"time"

	"github.com/google/uuid"

	"github.com/walletscope/backend/internal/cluster"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a job in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ItemError records the failure of a single item without failing the batch.
type ItemError struct {
	Item    string `json:"item"`
	Message string `json:"message"`
}

// Job is one submitted batch of wallet addresses. Items and Total are fixed
// at creation; Progress, Results and Errors only ever grow while the job is
// processing.
type Job struct {
	ID            string                    `json:"id"`
	Status        Status                    `json:"status"`
	Items         []string                  `json:"items"`
	Progress      int                       `json:"progress"`
	Total         int                       `json:"total"`
	Results       map[string]cluster.Result `json:"results,omitempty"`
	Errors        []ItemError               `json:"errors,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	StartedAt     *time.Time                `json:"started_at,omitempty"`
	CompletedAt   *time.Time                `json:"completed_at,omitempty"`
	FailureReason string                    `json:"failure_reason,omitempty"`
}

func New(items []string) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Items:     items,
		Total:     len(items),
		Results:   make(map[string]cluster.Result),
		CreatedAt: time.Now().UTC(),
	}
}

// Channel is the pub/sub channel progress events for this job go out on.
func (j *Job) Channel() string {
	return "job:" + j.ID
}

// Clone returns a copy that shares no mutable state with the original, so
// the execution loop can keep appending while callers hold the copy.
func (j *Job) Clone() *Job {
	c := *j
	c.Items = append([]string(nil), j.Items...)
	c.Results = make(map[string]cluster.Result, len(j.Results))
	for k, v := range j.Results {
		c.Results[k] = v
	}
	c.Errors = append([]ItemError(nil), j.Errors...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
