package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/core/ports"
)

type SigningMode string

const (
	// SigningModeIncremental composites later signatures on top of the
	// already signed bytes so earlier byte ranges stay intact.
	SigningModeIncremental SigningMode = "incremental"
	// SigningModeRegenerate rebuilds the PDF from the template on every call.
	SigningModeRegenerate SigningMode = "regenerate"
)

func ParseSigningMode(v string) (SigningMode, error) {
	switch SigningMode(strings.ToLower(strings.TrimSpace(v))) {
	case "", SigningModeIncremental:
		return SigningModeIncremental, nil
	case SigningModeRegenerate:
		return SigningModeRegenerate, nil
	default:
		return "", fmt.Errorf("unknown signing mode %q", v)
	}
}

type SignOptions struct {
	Mode     SigningMode
	Reason   string
	Location string
}

type SignDocumentUseCase struct {
	repo       ports.DocumentRepository
	templates  ports.TemplateSource
	projects   ports.ProjectSource
	storage    ports.ObjectStorage
	events     ports.EventPublisher
	pipeline   *Pipeline
	compositor ports.SignatureCompositor
	issuer     ports.CertificateIssuer
	signer     ports.PDFSigner
	opts       SignOptions
	logger     *slog.Logger
	now        func() time.Time
}

func NewSignDocumentUseCase(
	repo ports.DocumentRepository,
	templates ports.TemplateSource,
	projects ports.ProjectSource,
	storage ports.ObjectStorage,
	events ports.EventPublisher,
	pipeline *Pipeline,
	compositor ports.SignatureCompositor,
	issuer ports.CertificateIssuer,
	signer ports.PDFSigner,
	opts SignOptions,
	logger *slog.Logger,
) *SignDocumentUseCase {
	if opts.Mode == "" {
		opts.Mode = SigningModeIncremental
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SignDocumentUseCase{
		repo:       repo,
		templates:  templates,
		projects:   projects,
		storage:    storage,
		events:     events,
		pipeline:   pipeline,
		compositor: compositor,
		issuer:     issuer,
		signer:     signer,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

func (uc *SignDocumentUseCase) Sign(ctx context.Context, req domain.SignRequest) (*domain.GeneratedDocument, error) {
	role, err := domain.ParseRole(string(req.Role))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "sign document", errors.New("document id is required"))
	}

	doc, err := uc.repo.GetByID(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	if !doc.Requires(role) {
		return nil, fmt.Errorf("sign document %s as %s: %w", doc.ID, role, domain.ErrRoleNotRequired)
	}
	if _, ok := doc.SignatureFor(role); ok {
		return nil, fmt.Errorf("sign document %s as %s: %w", doc.ID, role, domain.ErrAlreadySigned)
	}

	data := doc.SignatureData.Clone()
	if len(req.Image) > 0 {
		data.Images[role] = base64.StdEncoding.EncodeToString(req.Image)
	}

	visual, included, err := uc.visual(ctx, doc, &data, role, req.Image)
	if err != nil {
		return nil, err
	}
	hashBefore := sha256.Sum256(visual)

	id, err := uc.issuer.Issue(ctx, req.SignerName, req.SignerEmail, req.Organization)
	if err != nil {
		return nil, fmt.Errorf("issue certificate: %w", err)
	}
	now := uc.now().UTC()
	signed, err := uc.signer.Sign(ctx, visual, id, domain.SignatureMeta{
		Role:        role,
		SignerName:  strings.TrimSpace(req.SignerName),
		SignerEmail: strings.TrimSpace(req.SignerEmail),
		Reason:      uc.reason(role),
		Location:    uc.opts.Location,
		SignedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("apply signature: %w", err)
	}

	data.Fingerprints[role] = id.Fingerprint
	updated := *doc
	updated.SignatureData = data
	updated.DigitalSignatures = append(append([]domain.SignatureRecord(nil), doc.DigitalSignatures...), domain.SignatureRecord{
		SignerRole:              role,
		SignerName:              strings.TrimSpace(req.SignerName),
		SignerEmail:             strings.TrimSpace(req.SignerEmail),
		SignedAt:                now,
		CertificateFingerprint:  id.Fingerprint,
		CertificatePEM:          id.CertificatePEM,
		DocumentHashBeforeSign:  hex.EncodeToString(hashBefore[:]),
		VisualSignatureIncluded: included,
	})
	updated.Filename = SignedFilename(doc.Filename, role)
	updated.StorageKey = fmt.Sprintf("%s_%s", doc.ID, updated.Filename)
	updated.Signed = updated.AllRequiredSigned()
	updated.UpdatedAt = now

	if err := uc.storage.Save(ctx, updated.StorageKey, bytes.NewReader(signed)); err != nil {
		return nil, fmt.Errorf("save signed artifact: %w", err)
	}
	if err := uc.repo.Update(ctx, &updated); err != nil {
		if updated.StorageKey != doc.StorageKey {
			if delErr := uc.storage.Delete(ctx, updated.StorageKey); delErr != nil {
				uc.logger.Error("orphan_blob_delete_failed", "storage_key", updated.StorageKey, "error", delErr)
			}
		}
		return nil, fmt.Errorf("update document: %w", err)
	}

	uc.logger.Info("document_signed",
		"document_id", updated.ID,
		"role", string(role),
		"state", string(updated.State()),
		"visual", included,
		"fingerprint", id.Fingerprint,
	)
	publish(ctx, uc.events, uc.logger, domain.DocumentEvent{
		Type:       domain.EventDocumentSigned,
		DocumentID: updated.ID,
		Role:       role,
		OccurredAt: now,
	})
	return &updated, nil
}

// visual returns the bytes to sign and whether this role's image is on them.
func (uc *SignDocumentUseCase) visual(
	ctx context.Context,
	doc *domain.GeneratedDocument,
	data *domain.SignatureData,
	role domain.Role,
	image []byte,
) ([]byte, bool, error) {
	// Without an image the signer signs exactly the bytes already stored.
	if len(image) == 0 {
		current, err := uc.load(ctx, doc.StorageKey)
		return current, false, err
	}
	if uc.opts.Mode == SigningModeRegenerate || len(doc.DigitalSignatures) == 0 {
		return uc.regenerate(ctx, doc, data, role)
	}

	current, err := uc.load(ctx, doc.StorageKey)
	if err != nil {
		return nil, false, err
	}
	out, err := uc.compositor.Composite(current,
		map[domain.Role][]domain.MarkerPosition{role: data.MarkerPositions[role]},
		map[domain.Role][]byte{role: image},
	)
	if err != nil {
		uc.logger.Warn("signature_composition_failed", "document_id", doc.ID, "role", string(role), "error", err)
		return current, false, nil
	}
	return out, true, nil
}

func (uc *SignDocumentUseCase) regenerate(
	ctx context.Context,
	doc *domain.GeneratedDocument,
	data *domain.SignatureData,
	role domain.Role,
) ([]byte, bool, error) {
	tmpl, err := uc.templates.GetTemplate(ctx, doc.TemplateID)
	if err != nil {
		return nil, false, fmt.Errorf("load template: %w", err)
	}
	project, err := uc.projects.GetProject(ctx, doc.ProjectID)
	if err != nil {
		return nil, false, fmt.Errorf("load project: %w", err)
	}

	images := make(map[domain.Role][]byte, len(data.Images))
	for r, encoded := range data.Images {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			uc.logger.Warn("stored_signature_image_invalid", "document_id", doc.ID, "role", string(r), "error", err)
			continue
		}
		images[r] = raw
	}

	result, err := uc.pipeline.Run(ctx, tmpl, project, images)
	if err != nil {
		return nil, false, err
	}
	if len(result.Positions) > 0 {
		data.MarkerPositions = result.Positions
	}
	_, hasImage := images[role]
	return result.PDF, hasImage && result.Composited, nil
}

func (uc *SignDocumentUseCase) load(ctx context.Context, key string) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return raw, nil
}

func (uc *SignDocumentUseCase) reason(role domain.Role) string {
	if uc.opts.Reason != "" {
		return uc.opts.Reason
	}
	return fmt.Sprintf("Approval by signer %s", strings.ToUpper(string(role)))
}
