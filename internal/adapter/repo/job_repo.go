package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stylebff/internal/domain"
	"stylebff/internal/infra"
	"stylebff/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job record, assigning an ID when empty.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = domain.JobStatusStarting
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertJob,
		job.ID,
		nullableString(job.ExternalID),
		string(job.Kind),
		job.AccountID,
		job.Cost,
		string(job.Status),
		job.Paid,
		nullableBytes(job.Input),
	)
	return row.Scan(&job.CreatedAt, &job.UpdatedAt)
}

// SetExternalID records the provider handle returned by submission.
func (r *JobRepositoryPG) SetExternalID(ctx context.Context, jobID, externalID string, status domain.JobStatus) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QSetJobExternalID, jobID, externalID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus persists a status observation. Terminal rows are never overwritten.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, output []byte, errMsg string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpdateJobStatus, jobID, string(status), nullableBytes(output), errMsg)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
}

// GetByExternalID fetches a job by the provider's identifier.
func (r *JobRepositoryPG) GetByExternalID(ctx context.Context, externalID string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByExternalID, externalID))
}

// ListPending returns non-terminal submitted jobs last touched before olderThan.
func (r *JobRepositoryPG) ListPending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListPendingJobs, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job    domain.Job
		kind   string
		status string
		output []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.ExternalID,
		&kind,
		&job.AccountID,
		&job.Cost,
		&status,
		&job.Paid,
		&job.Input,
		&output,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	if len(output) > 0 {
		job.Output = output
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
