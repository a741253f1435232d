// Package model provides data models for the ragserve service.
package model

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a processing job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

// Step names reported by processing jobs, in presentation order.
const (
	StepFilesDiscovered   = "filesDiscovered"
	StepFilesProcessed    = "filesProcessed"
	StepChunksIndexed     = "chunksIndexed"
	StepEmbeddingsCreated = "embeddingsCreated"
)

// Step tracks the progress of one stage of a processing job.
// For cumulative counters (chunks indexed, embeddings created) the total
// mirrors the current value because the final count is unknown up front.
type Step struct {
	Step    string `json:"step"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// Job is the status record of one asynchronous document-processing run.
// Jobs are kept in memory for the lifetime of the process.
type Job struct {
	ID        uuid.UUID `json:"job_id"`
	State     JobState  `json:"state"`
	Steps     []Step    `json:"steps"`
	Errors    []string  `json:"errors"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewJob creates a queued job with all four steps pre-seeded at zero so
// status polls see the full step list before the worker starts.
func NewJob(id uuid.UUID) *Job {
	now := time.Now()
	return &Job{
		ID:    id,
		State: JobStateQueued,
		Steps: []Step{
			{Step: StepFilesDiscovered},
			{Step: StepFilesProcessed},
			{Step: StepChunksIndexed},
			{Step: StepEmbeddingsCreated},
		},
		Errors:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Step returns the step with the given name, or nil if absent.
func (j *Job) Step(name string) *Step {
	for i := range j.Steps {
		if j.Steps[i].Step == name {
			return &j.Steps[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the job so callers can release the registry
// lock before serializing the snapshot.
func (j *Job) Clone() *Job {
	c := *j
	c.Steps = make([]Step, len(j.Steps))
	copy(c.Steps, j.Steps)
	c.Errors = make([]string, len(j.Errors))
	copy(c.Errors, j.Errors)
	return &c
}
