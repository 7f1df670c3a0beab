package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

func TestGetTemplate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := NewTemplateRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, name, type, content, updated_at").
		WithArgs("tpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "content", "updated_at"}).
			AddRow("tpl-1", "Devis", "quote", []byte("PK\x03\x04"), now))
	mock.ExpectQuery("SELECT id, name, type, content, updated_at").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	tmpl, err := repo.GetTemplate(context.Background(), "tpl-1")
	if err != nil {
		t.Fatalf("GetTemplate() error = %v", err)
	}
	if tmpl.Type != domain.DocumentTypeQuote || string(tmpl.Content) != "PK\x03\x04" {
		t.Fatalf("unexpected template %+v", tmpl)
	}

	_, err = repo.GetTemplate(context.Background(), "nope")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetProjectOptionalFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := NewProjectRepository(db)

	cols := []string{"id", "title", "reference", "description", "client", "company", "site_address", "site_same_as_client",
		"work_type", "status", "start_date", "end_date", "amount_excl_tax", "vat_rate", "notes", "created_at"}
	start := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, title, reference").
		WithArgs("prj-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"prj-1", "Villa", "R-1", "", []byte(`{"name":"Client","address":{"city":"Lyon"}}`), []byte(`{"name":"Co"}`), []byte(`{}`), true,
			"renovation", "quoted", start, nil, 1200.5, nil, "", start,
		))

	p, err := repo.GetProject(context.Background(), "prj-1")
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if p.Client.Address.City != "Lyon" || !p.SiteSameAsClient || p.WorkType != domain.WorkTypeRenovation {
		t.Fatalf("unexpected project %+v", p)
	}
	if p.StartDate == nil || p.EndDate != nil {
		t.Fatalf("unexpected dates %v %v", p.StartDate, p.EndDate)
	}
	if p.AmountExclTax == nil || *p.AmountExclTax != 1200.5 || p.VATRate != nil {
		t.Fatalf("unexpected amounts %v %v", p.AmountExclTax, p.VATRate)
	}
}
