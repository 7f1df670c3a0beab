package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

type jobsFake struct {
	jobs    map[string]*domain.RenderJob
	history []domain.RenderJobStatus
}

func newJobsFake() *jobsFake { return &jobsFake{jobs: map[string]*domain.RenderJob{}} }

func (f *jobsFake) CreateJob(_ context.Context, job *domain.RenderJob) error {
	cp := *job
	f.jobs[job.ID] = &cp
	f.history = append(f.history, job.Status)
	return nil
}

func (f *jobsFake) GetJob(_ context.Context, id string) (*domain.RenderJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.NotFoundError("render job", id)
	}
	cp := *job
	return &cp, nil
}

func (f *jobsFake) UpdateJob(_ context.Context, job *domain.RenderJob) error {
	if _, ok := f.jobs[job.ID]; !ok {
		return domain.NotFoundError("render job", job.ID)
	}
	cp := *job
	f.jobs[job.ID] = &cp
	f.history = append(f.history, job.Status)
	return nil
}

type publisherFake struct {
	got []domain.RenderRequest
	err error
}

func (f *publisherFake) PublishRenderRequest(_ context.Context, req domain.RenderRequest) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, req)
	return nil
}

type documentRendererFake struct {
	calls int
	err   error
}

func (f *documentRendererFake) Render(_ context.Context, req domain.RenderRequest) (*domain.GeneratedDocument, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GeneratedDocument{ID: "doc-" + req.ProjectID}, nil
}

func TestEnqueueCreatesJobAndPublishesWithJobID(t *testing.T) {
	jobs := newJobsFake()
	pub := &publisherFake{}
	uc := NewRenderJobUseCase(jobs, pub, &documentRendererFake{}, nil)

	job, err := uc.Enqueue(context.Background(), domain.RenderRequest{TemplateID: "tpl-1", ProjectID: "prj-1"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if job.Status != domain.RenderJobQueued || job.ID == "" {
		t.Fatalf("unexpected job %+v", job)
	}
	if len(pub.got) != 1 || pub.got[0].JobID != job.ID {
		t.Fatalf("expected published request to carry job id, got %+v", pub.got)
	}
}

func TestEnqueueMarksJobFailedWhenPublishFails(t *testing.T) {
	jobs := newJobsFake()
	pub := &publisherFake{err: domain.WrapError(domain.ErrTemporary, "nats publish", errors.New("no responders"))}
	uc := NewRenderJobUseCase(jobs, pub, &documentRendererFake{}, nil)

	_, err := uc.Enqueue(context.Background(), domain.RenderRequest{TemplateID: "tpl-1", ProjectID: "prj-1"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if len(jobs.jobs) != 1 {
		t.Fatalf("expected one job row, got %d", len(jobs.jobs))
	}
	for _, job := range jobs.jobs {
		if job.Status != domain.RenderJobFailed || job.Error == "" {
			t.Fatalf("expected failed job with error, got %+v", job)
		}
	}
}

func TestEnqueueRejectsMissingIDs(t *testing.T) {
	uc := NewRenderJobUseCase(newJobsFake(), &publisherFake{}, &documentRendererFake{}, nil)
	_, err := uc.Enqueue(context.Background(), domain.RenderRequest{TemplateID: "tpl-1"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRunTracksJobLifecycle(t *testing.T) {
	jobs := newJobsFake()
	pub := &publisherFake{}
	renderer := &documentRendererFake{}
	uc := NewRenderJobUseCase(jobs, pub, renderer, nil)

	job, err := uc.Enqueue(context.Background(), domain.RenderRequest{TemplateID: "tpl-1", ProjectID: "prj-1"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	doc, err := uc.Run(context.Background(), pub.got[0])
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if doc.ID != "doc-prj-1" {
		t.Fatalf("unexpected document %+v", doc)
	}

	stored, _ := jobs.GetJob(context.Background(), job.ID)
	if stored.Status != domain.RenderJobSucceeded || stored.DocumentID != "doc-prj-1" {
		t.Fatalf("unexpected stored job %+v", stored)
	}
	want := []domain.RenderJobStatus{domain.RenderJobQueued, domain.RenderJobRunning, domain.RenderJobSucceeded}
	if len(jobs.history) != len(want) {
		t.Fatalf("status history = %v, want %v", jobs.history, want)
	}
	for i := range want {
		if jobs.history[i] != want[i] {
			t.Fatalf("status history = %v, want %v", jobs.history, want)
		}
	}

	if _, err := uc.Run(context.Background(), pub.got[0]); err != nil {
		t.Fatalf("redelivery must be ignored, got %v", err)
	}
	if renderer.calls != 1 {
		t.Fatalf("finished job must not render again, got %d renders", renderer.calls)
	}
}

func TestRunRecordsRenderFailure(t *testing.T) {
	jobs := newJobsFake()
	pub := &publisherFake{}
	renderErr := domain.WrapError(domain.ErrRender, "render template", errors.New(`unknown tag "client_vat"`))
	uc := NewRenderJobUseCase(jobs, pub, &documentRendererFake{err: renderErr}, nil)

	job, _ := uc.Enqueue(context.Background(), domain.RenderRequest{TemplateID: "tpl-1", ProjectID: "prj-1"})
	_, err := uc.Run(context.Background(), pub.got[0])
	if !domain.IsKind(err, domain.ErrRender) {
		t.Fatalf("expected render error, got %v", err)
	}
	stored, _ := jobs.GetJob(context.Background(), job.ID)
	if stored.Status != domain.RenderJobFailed || stored.Error == "" {
		t.Fatalf("expected failed job, got %+v", stored)
	}
}

func TestRunWithoutJobRendersDirectly(t *testing.T) {
	renderer := &documentRendererFake{}
	uc := NewRenderJobUseCase(newJobsFake(), &publisherFake{}, renderer, nil)

	doc, err := uc.Run(context.Background(), domain.RenderRequest{TemplateID: "t", ProjectID: "p"})
	if err != nil || doc == nil || renderer.calls != 1 {
		t.Fatalf("expected direct render, got doc=%v err=%v calls=%d", doc, err, renderer.calls)
	}
}
