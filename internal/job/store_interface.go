package job

import (
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get for unknown job ids.
var ErrNotFound = errors.New("job not found")

// Store persists job records. Save is an idempotent upsert keyed by job id;
// the last write wins. Cleanup removes terminal records whose CompletedAt is
// older than maxAge and reports how many it deleted. Records that are still
// active are never cleaned up, whatever their age.
type Store interface {
	Save(j *Job) error
	Get(id string) (*Job, error)
	Cleanup(maxAge time.Duration) (int, error)
}
