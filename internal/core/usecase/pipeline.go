package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/core/ports"
)

// StageObserver receives the duration and outcome of each pipeline stage.
type StageObserver func(stage string, elapsed time.Duration, err error)

// Pipeline runs template → DOCX → PDF → markers → composited PDF.
type Pipeline struct {
	tokens     ports.TokenEngine
	renderer   ports.TemplateRenderer
	converter  ports.DocumentConverter
	locator    ports.MarkerLocator
	compositor ports.SignatureCompositor
	logger     *slog.Logger
	observe    StageObserver
}

func NewPipeline(
	tokens ports.TokenEngine,
	renderer ports.TemplateRenderer,
	converter ports.DocumentConverter,
	locator ports.MarkerLocator,
	compositor ports.SignatureCompositor,
	logger *slog.Logger,
	observe StageObserver,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if observe == nil {
		observe = func(string, time.Duration, error) {}
	}
	return &Pipeline{
		tokens:     tokens,
		renderer:   renderer,
		converter:  converter,
		locator:    locator,
		compositor: compositor,
		logger:     logger,
		observe:    observe,
	}
}

// PipelineResult is the composited PDF plus what generation learned about it.
type PipelineResult struct {
	PDF        []byte
	Roles      []domain.Role
	Positions  map[domain.Role][]domain.MarkerPosition
	Composited bool
}

func (p *Pipeline) Run(
	ctx context.Context,
	tmpl *domain.Template,
	project *domain.Project,
	images map[domain.Role][]byte,
) (*PipelineResult, error) {
	data := p.tokens.Tokens(project)

	var rendered *ports.RenderedTemplate
	err := p.stage("render", func() error {
		var err error
		rendered, err = p.renderer.Render(tmpl.Content, data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("render template %s: %w", tmpl.ID, err)
	}

	var pdf []byte
	err = p.stage("convert", func() error {
		var err error
		pdf, err = p.converter.Convert(ctx, rendered.Content)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("convert template %s: %w", tmpl.ID, err)
	}

	positions := p.locate(ctx, pdf, rendered.MarkerRole)

	result := &PipelineResult{PDF: pdf, Roles: rendered.Roles, Positions: positions}
	err = p.stage("composite", func() error {
		out, err := p.compositor.Composite(pdf, positions, images)
		if err != nil {
			return err
		}
		result.PDF, result.Composited = out, true
		return nil
	})
	if err != nil {
		p.logger.Warn("signature_composition_failed",
			"template_id", tmpl.ID,
			"error", err,
		)
	}

	return result, nil
}

// locate never fails the pipeline: a marker that cannot be found only
// means the compositor falls back to its default placement.
func (p *Pipeline) locate(ctx context.Context, pdf []byte, markers map[string]domain.Role) map[domain.Role][]domain.MarkerPosition {
	names := make([]string, 0, len(markers))
	for m := range markers {
		names = append(names, m)
	}
	sort.Strings(names)

	positions := make(map[domain.Role][]domain.MarkerPosition)
	for _, marker := range names {
		var found []domain.MarkerPosition
		err := p.stage("locate", func() error {
			var err error
			found, err = p.locator.Locate(ctx, pdf, marker)
			return err
		})
		if err != nil {
			p.logger.Warn("marker_locate_failed", "marker", marker, "error", err)
			continue
		}
		role := markers[marker]
		positions[role] = append(positions[role], found...)
	}
	return positions
}

func (p *Pipeline) stage(name string, fn func() error) error {
	started := time.Now()
	err := fn()
	p.observe(name, time.Since(started), err)
	return err
}
