package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

type RenderJobRepository struct {
	db *sql.DB
}

func NewRenderJobRepository(db *sql.DB) *RenderJobRepository {
	return &RenderJobRepository{db: db}
}

func (r *RenderJobRepository) CreateJob(ctx context.Context, job *domain.RenderJob) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO render_jobs (id, template_id, project_id, status, document_id, error, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, job.ID, job.TemplateID, job.ProjectID, string(job.Status), job.DocumentID, job.Error, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create render job: %w", err)
	}
	return nil
}

func (r *RenderJobRepository) GetJob(ctx context.Context, id string) (*domain.RenderJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, template_id, project_id, status, document_id, error, created_at, updated_at
FROM render_jobs
WHERE id = $1
`, id)

	job, err := scanRenderJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("render job", id)
		}
		return nil, fmt.Errorf("get render job by id: %w", err)
	}
	return &job, nil
}

func (r *RenderJobRepository) UpdateJob(ctx context.Context, job *domain.RenderJob) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE render_jobs
SET status = $2, document_id = $3, error = $4, updated_at = $5
WHERE id = $1
`, job.ID, string(job.Status), job.DocumentID, job.Error, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update render job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update render job rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NotFoundError("render job", job.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRenderJob(row rowScanner) (domain.RenderJob, error) {
	var job domain.RenderJob
	var status string
	err := row.Scan(
		&job.ID,
		&job.TemplateID,
		&job.ProjectID,
		&status,
		&job.DocumentID,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return domain.RenderJob{}, err
	}
	job.Status = domain.RenderJobStatus(status)
	return job, nil
}
