package locator

import (
	"context"
	"math"
	"testing"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/infrastructure/pdfdoc/pdftest"
)

func near(a, b float64) bool { return math.Abs(a-b) < 0.01 }

func TestLocateEveryOccurrence(t *testing.T) {
	data := pdftest.Build(
		pdftest.Page{Texts: []pdftest.Text{
			{X: 100, Y: 200, Size: 10, Value: "Signature: ZZSIGA1ZZ"},
			{X: 300, Y: 500, Size: 10, Value: "ZZSIGA1ZZ and ZZSIGB2ZZ"},
		}},
		pdftest.Page{Texts: []pdftest.Text{{X: 50, Y: 60, Size: 12, Value: "ZZSIGA1ZZ"}}},
	)

	got, err := NewTextLayer(nil).Locate(context.Background(), data, "ZZSIGA1ZZ")
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 positions, got %d: %+v", len(got), got)
	}

	// Courier advances 0.6 em; "Signature:" is 10 glyphs plus one space.
	first := got[0]
	if first.Page != 1 || !near(first.X, 166) || !near(first.Width, 54) {
		t.Fatalf("unexpected first box %+v", first)
	}
	if !near(first.Y, 198) || !near(first.Height, 10) {
		t.Fatalf("unexpected first box height %+v", first)
	}
	if got[1].Page != 1 || !near(got[1].X, 300) {
		t.Fatalf("unexpected second box %+v", got[1])
	}
	if got[2].Page != 2 || !near(got[2].Width, 9*7.2) {
		t.Fatalf("unexpected third box %+v", got[2])
	}
}

func TestLocateNoMatch(t *testing.T) {
	data := pdftest.Build(pdftest.Page{Texts: []pdftest.Text{{X: 10, Y: 10, Value: "nothing here"}}})

	got, err := NewTextLayer(nil).Locate(context.Background(), data, "ZZSIGB2ZZ")
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no positions, got %+v", got)
	}
}

func TestLocateInvalidPDF(t *testing.T) {
	_, err := NewTextLayer(nil).Locate(context.Background(), []byte("garbage"), "ZZSIGA1ZZ")
	if !domain.IsKind(err, domain.ErrComposition) {
		t.Fatalf("expected ErrComposition, got %v", err)
	}
}

func TestNoopReturnsEmpty(t *testing.T) {
	got, err := Noop{}.Locate(context.Background(), nil, "ZZSIGA1ZZ")
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("Noop.Locate() = %v, %v", got, err)
	}
}
