package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

// TemplateRepository reads DOCX templates managed by another service.
type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, type, content, updated_at
FROM templates
WHERE id = $1
`, id)

	var tmpl domain.Template
	var tmplType string
	if err := row.Scan(&tmpl.ID, &tmpl.Name, &tmplType, &tmpl.Content, &tmpl.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("template", id)
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	tmpl.Type = domain.DocumentType(tmplType)
	return &tmpl, nil
}

// ProjectRepository reads the business records templates are rendered against.
type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, reference, description, client, company, site_address, site_same_as_client,
	work_type, status, start_date, end_date, amount_excl_tax, vat_rate, notes, created_at
FROM projects
WHERE id = $1
`, id)

	var p domain.Project
	var clientRaw, companyRaw, siteRaw []byte
	var workType, status string
	var start, end sql.NullTime
	var amount, vat sql.NullFloat64

	err := row.Scan(
		&p.ID, &p.Title, &p.Reference, &p.Description, &clientRaw, &companyRaw, &siteRaw, &p.SiteSameAsClient,
		&workType, &status, &start, &end, &amount, &vat, &p.Notes, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("project", id)
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}

	for _, part := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"client", clientRaw, &p.Client},
		{"company", companyRaw, &p.Company},
		{"site address", siteRaw, &p.SiteAddress},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", part.name, err)
		}
	}

	p.WorkType = domain.WorkType(workType)
	p.Status = domain.ProjectStatus(status)
	if start.Valid {
		p.StartDate = &start.Time
	}
	if end.Valid {
		p.EndDate = &end.Time
	}
	if amount.Valid {
		p.AmountExclTax = &amount.Float64
	}
	if vat.Valid {
		p.VATRate = &vat.Float64
	}
	return &p, nil
}
