package domain

import (
	"encoding/json"
	"time"
)

// JobKind enumerates the long-running provider job categories.
type JobKind string

const (
	JobKindImage    JobKind = "image"
	JobKindVideo    JobKind = "video"
	JobKindTraining JobKind = "training"
)

// Valid reports whether k is a known kind.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindImage, JobKindVideo, JobKindTraining:
		return true
	}
	return false
}

// JobStatus enumerates job lifecycle states as reported by the provider.
type JobStatus string

const (
	JobStatusStarting   JobStatus = "starting"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// IsTerminal reports whether no further transition can happen from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// IsNegative reports whether s is a terminal failure outcome.
func (s JobStatus) IsNegative() bool {
	return s == JobStatusFailed || s == JobStatusCanceled
}

// Job is the persisted record of one external provider job.
type Job struct {
	ID         string
	ExternalID string
	Kind       JobKind
	AccountID  string
	Cost       int
	Status     JobStatus
	Paid       bool
	Input      json.RawMessage
	Output     json.RawMessage
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Handle returns the provider-side reference for the job.
func (j *Job) Handle() JobHandle {
	return JobHandle{Kind: j.Kind, ExternalID: j.ExternalID}
}

// JobHandle addresses a job at the external provider.
type JobHandle struct {
	Kind       JobKind
	ExternalID string
}

// Account holds an account's credit balance. Credits never go negative.
type Account struct {
	ID      string
	Credits int
}
