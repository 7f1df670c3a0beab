package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/core/ports"
)

// VerifyDocument derives validity from the stored signature records only.
// It does not touch the PDF bytes or mutate doc.
func VerifyDocument(doc *domain.GeneratedDocument, now time.Time) domain.VerificationReport {
	report := domain.VerificationReport{
		DocumentID: doc.ID,
		Signatures: make([]domain.SignatureCheck, 0, len(doc.DigitalSignatures)),
		CheckedAt:  now,
	}

	allValid := true
	for _, rec := range doc.DigitalSignatures {
		check := checkRecord(rec, now)
		allValid = allValid && check.Valid
		report.Signatures = append(report.Signatures, check)
	}

	switch {
	case len(report.Signatures) == 0:
		report.Status = domain.VerificationUnsigned
	case !doc.AllRequiredSigned():
		report.Status = domain.VerificationPartiallySigned
	case allValid:
		report.Status = domain.VerificationFullySignedValid
	default:
		report.Status = domain.VerificationFullySignedIssue
	}
	report.Valid = len(report.Signatures) > 0 && allValid
	return report
}

func checkRecord(rec domain.SignatureRecord, now time.Time) domain.SignatureCheck {
	check := domain.SignatureCheck{
		Role:             rec.SignerRole,
		SignerName:       rec.SignerName,
		SignerEmail:      rec.SignerEmail,
		SignedAt:         rec.SignedAt,
		Fingerprint:      rec.CertificateFingerprint,
		CertificateValid: true,
	}

	if rec.CertificatePEM != "" {
		cert, err := domain.ParseCertificatePEM(rec.CertificatePEM)
		if err != nil {
			check.CertificateValid = false
			check.Issues = append(check.Issues, fmt.Sprintf("certificate unreadable: %v", err))
		} else {
			nb, na := cert.NotBefore, cert.NotAfter
			check.NotBefore, check.NotAfter = &nb, &na
			switch {
			case now.Before(nb):
				check.CertificateValid = false
				check.Issues = append(check.Issues, "certificate not yet valid")
			case now.After(na):
				check.CertificateValid = false
				check.Issues = append(check.Issues, "certificate expired")
			}
		}
	} else if rec.CertificateFingerprint == "" {
		check.CertificateValid = false
		check.Issues = append(check.Issues, "no certificate retained")
	}

	check.IntegrityValid = rec.DocumentHashBeforeSign != ""
	if !check.IntegrityValid {
		check.Issues = append(check.Issues, "document hash missing")
	}
	check.Valid = check.CertificateValid && check.IntegrityValid
	return check
}

type VerifyDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	inspector ports.SignatureInspector
	logger    *slog.Logger
	now       func() time.Time
}

func NewVerifyDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	inspector ports.SignatureInspector,
	logger *slog.Logger,
) *VerifyDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifyDocumentUseCase{
		repo:      repo,
		storage:   storage,
		inspector: inspector,
		logger:    logger,
		now:       time.Now,
	}
}

// Verify reports record validity and, when an inspector is configured, the
// embedded signatures of the stored artifact. Embedded results never change
// the record-derived status.
func (uc *VerifyDocumentUseCase) Verify(ctx context.Context, documentID string) (*domain.VerificationReport, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	report := VerifyDocument(doc, uc.now().UTC())

	if uc.inspector == nil || len(doc.DigitalSignatures) == 0 {
		return &report, nil
	}
	rc, err := uc.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	embedded, err := uc.inspector.Inspect(ctx, raw)
	if err != nil {
		uc.logger.Warn("embedded_signature_inspection_failed", "document_id", doc.ID, "error", err)
		return &report, nil
	}
	report.Embedded = embedded
	return &report, nil
}
