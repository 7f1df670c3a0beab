package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/core/ports"
)

// RenderJobUseCase queues renders for the worker and records their outcome.
type RenderJobUseCase struct {
	jobs      ports.RenderJobRepository
	publisher ports.RenderRequestPublisher
	renderer  ports.DocumentRenderer
	logger    *slog.Logger
	now       func() time.Time
}

func NewRenderJobUseCase(
	jobs ports.RenderJobRepository,
	publisher ports.RenderRequestPublisher,
	renderer ports.DocumentRenderer,
	logger *slog.Logger,
) *RenderJobUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderJobUseCase{
		jobs:      jobs,
		publisher: publisher,
		renderer:  renderer,
		logger:    logger,
		now:       time.Now,
	}
}

func (uc *RenderJobUseCase) Enqueue(ctx context.Context, req domain.RenderRequest) (*domain.RenderJob, error) {
	if strings.TrimSpace(req.TemplateID) == "" || strings.TrimSpace(req.ProjectID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue render", errors.New("template_id and project_id are required"))
	}

	now := uc.now().UTC()
	job := &domain.RenderJob{
		ID:         uuid.NewString(),
		TemplateID: req.TemplateID,
		ProjectID:  req.ProjectID,
		Status:     domain.RenderJobQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("save render job: %w", err)
	}

	req.JobID = job.ID
	if err := uc.publisher.PublishRenderRequest(ctx, req); err != nil {
		uc.finish(ctx, job, "", err)
		return nil, fmt.Errorf("publish render request: %w", err)
	}

	uc.logger.Info("render_job_queued", "job_id", job.ID, "template_id", job.TemplateID, "project_id", job.ProjectID)
	return job, nil
}

func (uc *RenderJobUseCase) GetJob(ctx context.Context, id string) (*domain.RenderJob, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get render job", errors.New("job id is required"))
	}
	return uc.jobs.GetJob(ctx, id)
}

// Run executes a queued render. Requests without a job id render directly.
// A job that already finished is not rendered again.
func (uc *RenderJobUseCase) Run(ctx context.Context, req domain.RenderRequest) (*domain.GeneratedDocument, error) {
	if req.JobID == "" {
		return uc.renderer.Render(ctx, req)
	}

	job, err := uc.jobs.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, fmt.Errorf("load render job: %w", err)
	}
	if job.Status == domain.RenderJobSucceeded || job.Status == domain.RenderJobFailed {
		uc.logger.Warn("render_job_redelivered", "job_id", job.ID, "status", string(job.Status))
		return nil, nil
	}

	job.Status = domain.RenderJobRunning
	job.UpdatedAt = uc.now().UTC()
	if err := uc.jobs.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("mark render job running: %w", err)
	}

	doc, renderErr := uc.renderer.Render(ctx, req)
	documentID := ""
	if doc != nil {
		documentID = doc.ID
	}
	uc.finish(ctx, job, documentID, renderErr)
	return doc, renderErr
}

// finish records the terminal state; a failed status write is only logged so
// the render outcome is still returned to the caller.
func (uc *RenderJobUseCase) finish(ctx context.Context, job *domain.RenderJob, documentID string, err error) {
	job.Status = domain.RenderJobSucceeded
	job.DocumentID = documentID
	job.Error = ""
	if err != nil {
		job.Status = domain.RenderJobFailed
		job.Error = err.Error()
	}
	job.UpdatedAt = uc.now().UTC()

	if updateErr := uc.jobs.UpdateJob(context.WithoutCancel(ctx), job); updateErr != nil {
		uc.logger.Error("render_job_update_failed", "job_id", job.ID, "status", string(job.Status), "error", updateErr)
	}
}
