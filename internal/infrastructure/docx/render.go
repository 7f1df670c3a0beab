package docx

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/core/ports"
)

// Renderer fills a DOCX template: signature tokens become markers, then data
// tags are substituted from the token table.
type Renderer struct {
	rewriter *Rewriter
	logger   *slog.Logger
}

func NewRenderer(rewriter *Rewriter, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{rewriter: rewriter, logger: logger}
}

func (r *Renderer) Render(template []byte, data domain.DataRecord) (*ports.RenderedTemplate, error) {
	pkg, err := OpenPackage(template)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRender, "render template", err)
	}

	roles := make(map[domain.Role]bool, 2)
	var errs []error
	for _, name := range pkg.ContentParts() {
		raw, _ := pkg.Part(name)
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: parse: %w", name, err))
			continue
		}
		for role := range r.rewriter.scan(doc) {
			roles[role] = true
		}
		r.rewriter.rewriteTree(doc)
		errs = append(errs, substituteTags(name, doc, data)...)

		out, err := doc.WriteToBytes()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: serialize: %w", name, err))
			continue
		}
		pkg.SetPart(name, out)
	}
	if len(errs) > 0 {
		return nil, domain.WrapError(domain.ErrRender, "render template", errors.Join(errs...))
	}

	content, err := pkg.Bytes()
	if err != nil {
		return nil, domain.WrapError(domain.ErrRender, "render template", err)
	}

	result := &ports.RenderedTemplate{
		Content:    content,
		MarkerRole: r.rewriter.Markers(),
	}
	for role := range roles {
		result.Roles = append(result.Roles, role)
	}
	sort.Slice(result.Roles, func(i, j int) bool { return result.Roles[i] < result.Roles[j] })
	r.logger.Debug("template_rendered", "roles", result.Roles, "parts", len(pkg.ContentParts()))
	return result, nil
}

// substituteTags replaces {key} tags in every paragraph of doc. Malformed and
// unknown tags are returned, never silently dropped.
func substituteTags(part string, doc *etree.Document, data domain.DataRecord) []error {
	var errs []error
	for pi, p := range paragraphs(doc) {
		pos := 0
		touched := false
		for {
			text := joined(segments(p))
			if pos >= len(text) {
				break
			}
			open := strings.IndexAny(text[pos:], "{}")
			if open < 0 {
				break
			}
			open += pos
			if text[open] == '}' {
				errs = append(errs, fmt.Errorf("%s: paragraph %d: unopened tag near %q", part, pi+1, snippet(text, open)))
				pos = open + 1
				continue
			}
			rel := strings.IndexAny(text[open+1:], "{}")
			if rel < 0 || text[open+1+rel] == '{' {
				errs = append(errs, fmt.Errorf("%s: paragraph %d: unclosed tag near %q", part, pi+1, snippet(text, open)))
				pos = open + 1
				continue
			}
			closeAt := open + 1 + rel
			name := strings.TrimSpace(text[open+1 : closeAt])
			switch {
			case name == "":
				errs = append(errs, fmt.Errorf("%s: paragraph %d: empty tag", part, pi+1))
				pos = closeAt + 1
				continue
			case strings.HasPrefix(name, "%"):
				errs = append(errs, fmt.Errorf("%s: paragraph %d: unknown signature placeholder {%s}", part, pi+1, name))
				pos = closeAt + 1
				continue
			}
			value, ok := data[name]
			if !ok {
				errs = append(errs, fmt.Errorf("%s: paragraph %d: unknown tag {%s}", part, pi+1, name))
				pos = closeAt + 1
				continue
			}
			if !replaceSpan(segments(p), open, closeAt+1, value) {
				pos = closeAt + 1
				continue
			}
			touched = true
			pos = open + len(value)
		}
		if touched {
			expandLineBreaks(p)
		}
	}
	return errs
}

func snippet(text string, at int) string {
	end := at + 24
	if end > len(text) {
		end = len(text)
	}
	return text[at:end]
}
