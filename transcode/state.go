package transcode

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a compression job.
type JobState int

const (
	JobStatePending JobState = iota
	JobStateProcessing
	JobStateCompleted
	JobStateFailed
	JobStateCancelled
)

func (s JobState) String() string {
	switch s {
	case JobStatePending:
		return "pending"
	case JobStateProcessing:
		return "processing"
	case JobStateCompleted:
		return "completed"
	case JobStateFailed:
		return "failed"
	case JobStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the job has finished one way or another.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed || s == JobStateCancelled
}

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobFinished  = errors.New("job already finished")
	ErrDuplicateJob = errors.New("job id already in use")
	ErrInvalidJobID = errors.New("job id must be a UUID")
	ErrBusy         = errors.New("another compression is already running")
	ErrNoDeliverer  = errors.New("no delivery target")
)

// maxFinishedJobs bounds how many finished jobs stay queryable in memory.
const maxFinishedJobs = 1024

// register adds a pending job. The caller holds no locks.
func (c *Controller) register(id string, cancel context.CancelFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.states[id]; ok && !state.Terminal() {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}
	if _, ok := c.states[id]; ok {
		c.dropFinished(id)
	}
	c.states[id] = JobStatePending
	c.active[id] = cancel
	return nil
}

// dropFinished removes a reused id from the eviction list so the old entry
// cannot evict the new job. The caller holds c.mu.
func (c *Controller) dropFinished(id string) {
	kept := c.finished[:0]
	for _, f := range c.finished {
		if f != id {
			kept = append(kept, f)
		}
	}
	c.finished = kept
}

func (c *Controller) setState(id string, state JobState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[id] = state
	if state.Terminal() {
		delete(c.active, id)
		c.finished = append(c.finished, id)
		for len(c.finished) > maxFinishedJobs {
			delete(c.states, c.finished[0])
			c.finished = c.finished[1:]
		}
	}
}

// forget drops a job that was never admitted.
func (c *Controller) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, id)
	delete(c.active, id)
}

// NormalizeJobID returns the canonical form under which a job id is stored.
// Ids that are not UUIDs are returned unchanged.
func NormalizeJobID(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return parsed.String()
}

// JobState returns the state of a job known to this process.
func (c *Controller) JobState(id string) (JobState, bool) {
	id = NormalizeJobID(id)
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.states[id]
	return state, ok
}

// Cancel stops a pending or running job. A running encode is killed.
func (c *Controller) Cancel(id string) error {
	id = NormalizeJobID(id)
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.states[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if state.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, id, state)
	}
	cancel, ok := c.active[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	cancel()
	return nil
}
