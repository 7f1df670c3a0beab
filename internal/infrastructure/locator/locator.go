package locator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/contract-signer/internal/core/domain"
)

const (
	// Glyph box below the baseline and fallback advance, in font-size units.
	descent         = 0.2
	fallbackAdvance = 0.5
)

// TextLayer locates markers through the PDF text layer.
type TextLayer struct {
	logger *slog.Logger
}

func NewTextLayer(logger *slog.Logger) *TextLayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextLayer{logger: logger}
}

func (l *TextLayer) Locate(ctx context.Context, data []byte, marker string) (positions []domain.MarkerPosition, err error) {
	if marker == "" {
		return nil, fmt.Errorf("%w: empty marker", domain.ErrInvalidInput)
	}
	defer func() {
		if r := recover(); r != nil {
			positions = nil
			err = domain.WrapError(domain.ErrComposition, "locate marker", fmt.Errorf("text layer: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrComposition, "locate marker", err)
	}

	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		positions = append(positions, findOnPage(page.Content().Text, marker, i)...)
	}
	l.logger.Debug("markers_located", "marker", marker, "count", len(positions))
	return positions, nil
}

// findOnPage joins the page glyphs and maps each marker occurrence back to
// the glyphs it spans.
func findOnPage(glyphs []pdf.Text, marker string, pageNum int) []domain.MarkerPosition {
	var joined strings.Builder
	owner := make([]int, 0, len(glyphs))
	for gi, g := range glyphs {
		joined.WriteString(g.S)
		for range len(g.S) {
			owner = append(owner, gi)
		}
	}
	text := joined.String()

	var out []domain.MarkerPosition
	for pos := 0; pos < len(text); {
		idx := strings.Index(text[pos:], marker)
		if idx < 0 {
			break
		}
		start := pos + idx
		end := start + len(marker)
		out = append(out, box(glyphs[owner[start]:owner[end-1]+1], pageNum))
		pos = end
	}
	return out
}

func box(glyphs []pdf.Text, pageNum int) domain.MarkerPosition {
	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, size := -math.MaxFloat64, 0.0
	for _, g := range glyphs {
		w := g.W
		if w <= 0 {
			w = g.FontSize * fallbackAdvance
		}
		minX = math.Min(minX, g.X)
		maxX = math.Max(maxX, g.X+w)
		minY = math.Min(minY, g.Y)
		size = math.Max(size, g.FontSize)
	}
	return domain.MarkerPosition{
		Page:   pageNum,
		X:      minX,
		Y:      minY - size*descent,
		Width:  maxX - minX,
		Height: size,
	}
}
