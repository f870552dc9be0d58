package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for provider jobs.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	GetByExternalID(ctx context.Context, externalID string) (*Job, error)
	SetExternalID(ctx context.Context, jobID, externalID string, status JobStatus) error
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, output []byte, errMsg string) error
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]Job, error)
}

// CoverIndex records the current composed cover object key per entity.
type CoverIndex interface {
	CurrentCover(ctx context.Context, entityID string) (string, error)
	SetCover(ctx context.Context, entityID, key, url string) error
}

// AccountRepository reads account balances outside reconciliation.
type AccountRepository interface {
	GetAccount(ctx context.Context, accountID string) (*Account, error)
}
