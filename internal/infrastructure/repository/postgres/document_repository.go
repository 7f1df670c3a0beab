package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, template_id, project_id, type, filename, storage_key, signed,
	requires_signature_a, requires_signature_b, signature_data, digital_signatures, version, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.GeneratedDocument) error {
	dataJSON, sigsJSON, err := marshalSigning(doc)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO generated_documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		doc.ID, doc.TemplateID, doc.ProjectID, string(doc.Type), doc.Filename, doc.StorageKey, doc.Signed,
		doc.RequiresSignatureA, doc.RequiresSignatureB, dataJSON, sigsJSON, doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.GeneratedDocument, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM generated_documents
WHERE id = $1
`, id)

	var doc domain.GeneratedDocument
	var docType string
	var dataRaw, sigsRaw []byte

	err := row.Scan(
		&doc.ID, &doc.TemplateID, &doc.ProjectID, &docType, &doc.Filename, &doc.StorageKey, &doc.Signed,
		&doc.RequiresSignatureA, &doc.RequiresSignatureB, &dataRaw, &sigsRaw, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("document", id)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.Type = domain.DocumentType(docType)
	if err := json.Unmarshal(dataRaw, &doc.SignatureData); err != nil {
		return nil, fmt.Errorf("unmarshal signature data: %w", err)
	}
	if err := json.Unmarshal(sigsRaw, &doc.DigitalSignatures); err != nil {
		return nil, fmt.Errorf("unmarshal digital signatures: %w", err)
	}
	if doc.DigitalSignatures == nil {
		doc.DigitalSignatures = []domain.SignatureRecord{}
	}
	return &doc, nil
}

// Update writes doc only if the stored version still equals doc.Version,
// then bumps doc.Version.
func (r *DocumentRepository) Update(ctx context.Context, doc *domain.GeneratedDocument) error {
	dataJSON, sigsJSON, err := marshalSigning(doc)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE generated_documents
SET filename = $3, storage_key = $4, signed = $5, signature_data = $6, digital_signatures = $7,
	updated_at = $8, version = version + 1
WHERE id = $1 AND version = $2
`, doc.ID, doc.Version, doc.Filename, doc.StorageKey, doc.Signed, dataJSON, sigsJSON, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows affected: %w", err)
	}
	if affected == 0 {
		return r.missOrConflict(ctx, doc.ID, doc.Version)
	}
	doc.Version++
	return nil
}

func (r *DocumentRepository) missOrConflict(ctx context.Context, id string, version int64) error {
	var current int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM generated_documents WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundError("document", id)
	}
	if err != nil {
		return fmt.Errorf("read document version: %w", err)
	}
	return domain.WrapError(domain.ErrConflict, "update document",
		fmt.Errorf("document %s is at version %d, update was based on %d", id, current, version))
}

func marshalSigning(doc *domain.GeneratedDocument) ([]byte, []byte, error) {
	dataJSON, err := json.Marshal(doc.SignatureData)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal signature data: %w", err)
	}
	sigs := doc.DigitalSignatures
	if sigs == nil {
		sigs = []domain.SignatureRecord{}
	}
	sigsJSON, err := json.Marshal(sigs)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal digital signatures: %w", err)
	}
	return dataJSON, sigsJSON, nil
}
