package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/core/ports"
)

type DocumentQueryUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	verifier ports.DocumentVerifier
	workbook ports.AuditWorkbook
}

func NewDocumentQueryUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	verifier ports.DocumentVerifier,
	workbook ports.AuditWorkbook,
) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{
		repo:     repo,
		storage:  storage,
		verifier: verifier,
		workbook: workbook,
	}
}

func (uc *DocumentQueryUseCase) GetByID(ctx context.Context, id string) (*domain.GeneratedDocument, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

// OpenFile returns the current artifact; the caller closes the reader.
func (uc *DocumentQueryUseCase) OpenFile(ctx context.Context, id string) (*domain.GeneratedDocument, io.ReadCloser, error) {
	doc, err := uc.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := uc.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact: %w", err)
	}
	return doc, rc, nil
}

func (uc *DocumentQueryUseCase) ExportAudit(ctx context.Context, id string) ([]byte, error) {
	doc, err := uc.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	report, err := uc.verifier.Verify(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := uc.workbook.Build(doc, report)
	if err != nil {
		return nil, fmt.Errorf("build audit workbook: %w", err)
	}
	return out, nil
}
