package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

func newTestEngine(t *testing.T, locale string) *Engine {
	t.Helper()
	labels, err := LoadLabels("")
	if err != nil {
		t.Fatalf("LoadLabels() error = %v", err)
	}
	now := func() time.Time { return time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC) }
	engine, err := NewEngine(labels, locale, now)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func TestTokensMissingOptionalFieldsAreEmpty(t *testing.T) {
	engine := newTestEngine(t, "fr")

	out := engine.Tokens(&domain.Project{Title: "Maison Dupont"})

	if out["project_title"] != "Maison Dupont" {
		t.Fatalf("project_title = %q", out["project_title"])
	}
	for _, key := range []string{"start_date", "end_date", "client_address", "site_address", "amount_excl_tax", "work_type"} {
		v, ok := out[key]
		if !ok {
			t.Fatalf("expected key %q to be present", key)
		}
		if v != "" {
			t.Fatalf("%s = %q, want empty", key, v)
		}
	}
	if out["today"] != "4 mars 2025" {
		t.Fatalf("today = %q", out["today"])
	}
}

func TestTokensLocalizedLabelsAndDates(t *testing.T) {
	engine := newTestEngine(t, "fr")
	start := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

	out := engine.Tokens(&domain.Project{
		WorkType:  domain.WorkTypeRenovation,
		Status:    "archived",
		StartDate: &start,
	})

	if out["work_type"] != "Rénovation" {
		t.Fatalf("work_type = %q", out["work_type"])
	}
	if out["status"] != "archived" {
		t.Fatalf("unknown enum should pass through, got %q", out["status"])
	}
	if out["start_date"] != "15 janvier 2025" {
		t.Fatalf("start_date = %q", out["start_date"])
	}
}

func TestTokensSiteSameAsClient(t *testing.T) {
	engine := newTestEngine(t, "en")

	out := engine.Tokens(&domain.Project{
		Client: domain.Party{
			Name:    "Jane Roe",
			Address: domain.Address{Street: "1 Rue Haute", PostalCode: "75001", City: "Paris"},
		},
		SiteAddress:      domain.Address{Street: "ignored"},
		SiteSameAsClient: true,
	})

	if out["site_address"] != "1 Rue Haute\n75001 Paris" {
		t.Fatalf("site_address = %q", out["site_address"])
	}
	if out["site_address"] != out["client_address"] {
		t.Fatalf("site and client address differ")
	}
}

func TestTokensAmounts(t *testing.T) {
	engine := newTestEngine(t, "en")
	excl := 1000.0
	rate := 20.0

	out := engine.Tokens(&domain.Project{AmountExclTax: &excl, VATRate: &rate})

	if out["amount_excl_tax"] != "1,000.00 EUR" {
		t.Fatalf("amount_excl_tax = %q", out["amount_excl_tax"])
	}
	if out["amount_vat"] != "200.00 EUR" {
		t.Fatalf("amount_vat = %q", out["amount_vat"])
	}
	if out["amount_incl_tax"] != "1,200.00 EUR" {
		t.Fatalf("amount_incl_tax = %q", out["amount_incl_tax"])
	}
	if !strings.HasPrefix(out["vat_rate"], "20") {
		t.Fatalf("vat_rate = %q", out["vat_rate"])
	}
}

func TestParseLabelsRejectsIncompleteMonths(t *testing.T) {
	_, err := ParseLabels([]byte("locales:\n  xx:\n    language: en\n    months: [a, b]\n"))
	if err == nil {
		t.Fatalf("expected error for short month table")
	}
}
