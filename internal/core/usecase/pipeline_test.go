package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

func TestPipelineGroupsMarkersByRole(t *testing.T) {
	f := newFixture(domain.RoleA, domain.RoleB)
	f.renderer.markers["ZZSIGA0ZZ"] = domain.RoleA
	f.locator.found["ZZSIGA0ZZ"] = []domain.MarkerPosition{{Page: 2, X: 10, Y: 10, Width: 5, Height: 5}, {Page: 3}}

	result, err := f.pipeline.Run(context.Background(), f.templates.tmpl, f.projects.project, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := len(result.Positions[domain.RoleA]); got != 3 {
		t.Fatalf("role a positions = %d, want 3", got)
	}
	if got := len(result.Positions[domain.RoleB]); got != 1 {
		t.Fatalf("role b positions = %d, want 1", got)
	}
	if !result.Composited || len(f.compositor.calls) != 1 {
		t.Fatalf("compositor must always run")
	}
	want := []string{"render", "convert", "locate", "locate", "locate", "composite"}
	if len(f.stages) != len(want) {
		t.Fatalf("stages = %v, want %v", f.stages, want)
	}
}

func TestPipelineLocateAndCompositeFailuresAreNotFatal(t *testing.T) {
	f := newFixture(domain.RoleA)
	f.locator.errs = map[string]error{"ZZSIGA1ZZ": domain.WrapError(domain.ErrComposition, "locate", errors.New("bad font"))}
	f.compositor.err = domain.WrapError(domain.ErrComposition, "composite", errors.New("broken xref"))

	result, err := f.pipeline.Run(context.Background(), f.templates.tmpl, f.projects.project, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Composited {
		t.Fatalf("expected composition to be reported as skipped")
	}
	if string(result.PDF) != "%PDF-docx:Rénovation Été" {
		t.Fatalf("expected unmodified pdf, got %q", result.PDF)
	}
	if len(result.Positions) != 0 {
		t.Fatalf("expected no positions, got %+v", result.Positions)
	}
}

func TestPipelineRenderErrorIsFatal(t *testing.T) {
	f := newFixture(domain.RoleA)
	f.renderer.err = domain.WrapError(domain.ErrRender, "render", errors.New("unclosed tag"))

	_, err := f.pipeline.Run(context.Background(), f.templates.tmpl, f.projects.project, nil)
	if !domain.IsKind(err, domain.ErrRender) {
		t.Fatalf("expected render error, got %v", err)
	}
}
