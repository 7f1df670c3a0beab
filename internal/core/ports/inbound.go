package ports

import (
	"context"
	"io"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

// DocumentRenderer is the inbound contract for template rendering.
type DocumentRenderer interface {
	Render(ctx context.Context, req domain.RenderRequest) (*domain.GeneratedDocument, error)
}

// DocumentSigner is the inbound contract for one signing call.
type DocumentSigner interface {
	Sign(ctx context.Context, req domain.SignRequest) (*domain.GeneratedDocument, error)
}

// DocumentVerifier is the inbound contract for signature verification.
type DocumentVerifier interface {
	Verify(ctx context.Context, documentID string) (*domain.VerificationReport, error)
}

// DocumentReader is the inbound read model for generated documents.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.GeneratedDocument, error)
	OpenFile(ctx context.Context, id string) (*domain.GeneratedDocument, io.ReadCloser, error)
}

// AuditExporter renders a signature audit workbook for a document.
type AuditExporter interface {
	ExportAudit(ctx context.Context, documentID string) ([]byte, error)
}

// RenderJobService queues renders and reports their progress.
type RenderJobService interface {
	Enqueue(ctx context.Context, req domain.RenderRequest) (*domain.RenderJob, error)
	GetJob(ctx context.Context, id string) (*domain.RenderJob, error)
}
