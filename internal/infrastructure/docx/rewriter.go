package docx

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

// Placeholder maps a signature token to the marker that survives conversion.
type Placeholder struct {
	Token  string
	Marker string
	Role   domain.Role
}

// DefaultPlaceholders are the signature tokens templates may use. Markers are
// plain alphanumerics so the data tag parser never treats them as tags.
var DefaultPlaceholders = []Placeholder{
	{Token: "{%signature}", Marker: "ZZSIGA0ZZ", Role: domain.RoleA},
	{Token: "{%signature1}", Marker: "ZZSIGA1ZZ", Role: domain.RoleA},
	{Token: "{%signature2}", Marker: "ZZSIGB2ZZ", Role: domain.RoleB},
}

// Rewriter replaces signature tokens with markers even when Word has split a
// token across several runs.
type Rewriter struct {
	placeholders []Placeholder
}

func NewRewriter(placeholders []Placeholder) (*Rewriter, error) {
	for _, ph := range placeholders {
		if ph.Token == "" || ph.Marker == "" {
			return nil, fmt.Errorf("placeholder for role %q: token and marker are required", ph.Role)
		}
		if strings.ContainsAny(ph.Marker, "{}%") {
			return nil, fmt.Errorf("marker %q must not contain tag delimiters", ph.Marker)
		}
	}
	return &Rewriter{placeholders: placeholders}, nil
}

// Markers returns marker -> role for every configured placeholder.
func (r *Rewriter) Markers() map[string]domain.Role {
	out := make(map[string]domain.Role, len(r.placeholders))
	for _, ph := range r.placeholders {
		out[ph.Marker] = ph.Role
	}
	return out
}

// Rewrite rewrites one WordprocessingML part. Parts without tokens are
// returned unchanged.
func (r *Rewriter) Rewrite(part []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(part); err != nil {
		return nil, fmt.Errorf("parse part: %w", err)
	}
	if n := r.rewriteTree(doc); n == 0 {
		return part, nil
	}
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize part: %w", err)
	}
	return out, nil
}

// scan reports the roles whose tokens appear in doc, split runs included.
func (r *Rewriter) scan(doc *etree.Document) map[domain.Role]bool {
	found := make(map[domain.Role]bool, 2)
	for _, p := range paragraphs(doc) {
		text := joined(segments(p))
		for _, ph := range r.placeholders {
			if strings.Contains(text, ph.Token) {
				found[ph.Role] = true
			}
		}
	}
	return found
}

func (r *Rewriter) rewriteTree(doc *etree.Document) int {
	total := 0
	for _, p := range paragraphs(doc) {
		text := joined(segments(p))
		if !strings.Contains(text, "{%") {
			continue
		}
		for _, ph := range r.placeholders {
			total += replaceAll(p, ph.Token, ph.Marker)
		}
	}
	return total
}
