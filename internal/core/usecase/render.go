package usecase

import (
	"bytes"
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

type RenderDocumentUseCase struct {
	templates ports.TemplateSource
	projects  ports.ProjectSource
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	events    ports.EventPublisher
	pipeline  *Pipeline
	logger    *slog.Logger
	now       func() time.Time
}

func NewRenderDocumentUseCase(
	templates ports.TemplateSource,
	projects ports.ProjectSource,
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	events ports.EventPublisher,
	pipeline *Pipeline,
	logger *slog.Logger,
) *RenderDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderDocumentUseCase{
		templates: templates,
		projects:  projects,
		repo:      repo,
		storage:   storage,
		events:    events,
		pipeline:  pipeline,
		logger:    logger,
		now:       time.Now,
	}
}

func (uc *RenderDocumentUseCase) Render(ctx context.Context, req domain.RenderRequest) (*domain.GeneratedDocument, error) {
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	req.ProjectID = strings.TrimSpace(req.ProjectID)
	if req.TemplateID == "" || req.ProjectID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "render document", errors.New("template_id and project_id are required"))
	}

	tmpl, err := uc.templates.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	project, err := uc.projects.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	result, err := uc.pipeline.Run(ctx, tmpl, project, nil)
	if err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	id := uuid.NewString()
	filename := ArtifactName(tmpl.Name, project.Title, now)
	doc := &domain.GeneratedDocument{
		ID:                id,
		TemplateID:        tmpl.ID,
		ProjectID:         project.ID,
		Type:              tmpl.Type,
		Filename:          filename,
		StorageKey:        fmt.Sprintf("%s_%s", id, filename),
		DigitalSignatures: []domain.SignatureRecord{},
		SignatureData: domain.SignatureData{
			MarkerPositions: result.Positions,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, role := range result.Roles {
		switch role {
		case domain.RoleA:
			doc.RequiresSignatureA = true
		case domain.RoleB:
			doc.RequiresSignatureB = true
		}
	}

	if err := uc.storage.Save(ctx, doc.StorageKey, bytes.NewReader(result.PDF)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discard(ctx, doc.StorageKey)
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	uc.logger.Info("document_generated",
		"document_id", doc.ID,
		"template_id", tmpl.ID,
		"project_id", project.ID,
		"requires_a", doc.RequiresSignatureA,
		"requires_b", doc.RequiresSignatureB,
	)
	publish(ctx, uc.events, uc.logger, domain.DocumentEvent{
		Type:       domain.EventDocumentGenerated,
		DocumentID: doc.ID,
		OccurredAt: now,
	})
	return doc, nil
}

func (uc *RenderDocumentUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(ctx, key); err != nil {
		uc.logger.Error("orphan_blob_delete_failed", "storage_key", key, "error", err)
	}
}

// publish reports lifecycle events; the document is already persisted, so a
// broker failure is logged rather than returned.
func publish(ctx context.Context, events ports.EventPublisher, logger *slog.Logger, event domain.DocumentEvent) {
	if events == nil {
		return
	}
	if err := events.PublishDocumentEvent(ctx, event); err != nil {
		logger.Warn("document_event_publish_failed",
			"type", event.Type,
			"document_id", event.DocumentID,
			"error", err,
		)
	}
}
