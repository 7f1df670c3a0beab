package compositor

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/kirillkom/contract-signer/internal/core/domain"
	"github.com/kirillkom/contract-signer/internal/infrastructure/pdfdoc"
)

type Options struct {
	BoxWidth  float64
	BoxHeight float64
	// Padding enlarges each white-out rectangle on every side.
	Padding float64
	// FallbackPage is 1-based; zero or out of range means the last page.
	FallbackPage   int
	FallbackMargin float64
	FallbackGap    float64
}

func DefaultOptions() Options {
	return Options{
		BoxWidth:       180,
		BoxHeight:      60,
		Padding:        2,
		FallbackMargin: 40,
		FallbackGap:    10,
	}
}

// Compositor hides markers and stamps signature images over a PDF as an
// incremental update.
type Compositor struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Compositor {
	def := DefaultOptions()
	if opts.BoxWidth <= 0 {
		opts.BoxWidth = def.BoxWidth
	}
	if opts.BoxHeight <= 0 {
		opts.BoxHeight = def.BoxHeight
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	}
	if opts.FallbackMargin <= 0 {
		opts.FallbackMargin = def.FallbackMargin
	}
	if opts.FallbackGap < 0 {
		opts.FallbackGap = def.FallbackGap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{opts: opts, logger: logger}
}

func (c *Compositor) Composite(data []byte, positions map[domain.Role][]domain.MarkerPosition, images map[domain.Role][]byte) ([]byte, error) {
	located := 0
	for _, list := range positions {
		located += len(list)
	}
	if located == 0 && len(images) == 0 {
		return data, nil
	}

	doc, err := pdfdoc.Open(data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrComposition, "open pdf", err)
	}
	pages, err := doc.Pages()
	if err != nil {
		return nil, domain.WrapError(domain.ErrComposition, "read pages", err)
	}

	upd := doc.NewUpdate()
	stamps := make(map[domain.Role]*stamp, len(images))
	for _, role := range domain.Roles() {
		raw, ok := images[role]
		if !ok {
			continue
		}
		img, err := DecodeImage(raw)
		if err != nil {
			return nil, domain.WrapError(domain.ErrComposition, fmt.Sprintf("decode image for role %s", role), err)
		}
		b := img.Bounds()
		stamps[role] = &stamp{
			ref:    upd.AddImage(img),
			width:  float64(b.Dx()),
			height: float64(b.Dy()),
			names:  make(map[int]pdfdoc.Name),
		}
	}

	overlays := make(map[int]*bytes.Buffer)
	overlay := func(pageNum int) *bytes.Buffer {
		if overlays[pageNum] == nil {
			overlays[pageNum] = &bytes.Buffer{}
		}
		return overlays[pageNum]
	}

	if located > 0 {
		// White-out first so no image is covered by another marker's rectangle.
		for _, role := range domain.Roles() {
			for _, pos := range positions[role] {
				if pos.Page < 1 || pos.Page > len(pages) {
					return nil, domain.WrapError(domain.ErrComposition, "white out marker", fmt.Errorf("page %d out of range", pos.Page))
				}
				c.whiteOut(overlay(pos.Page), pos)
			}
		}
		for _, role := range domain.Roles() {
			st, ok := stamps[role]
			if !ok {
				continue
			}
			for _, pos := range positions[role] {
				page := pages[pos.Page-1]
				w, h := c.fit(st)
				cx, cy := pos.X+pos.Width/2, pos.Y+pos.Height/2
				c.draw(overlay(pos.Page), st.name(upd, page, role), w, h, cx-w/2, cy-h/2)
			}
		}
	} else {
		page := c.fallbackPage(pages)
		placed := 0
		for _, role := range domain.Roles() {
			st, ok := stamps[role]
			if !ok {
				continue
			}
			// Slots are fixed per role, not per call.
			slot := role.Index() - 1
			w, h := c.fit(st)
			x := page.MediaBox[2] - c.opts.FallbackMargin - w
			y := page.MediaBox[1] + c.opts.FallbackMargin + float64(slot)*(c.opts.BoxHeight+c.opts.FallbackGap)
			c.draw(overlay(page.Number), st.name(upd, page, role), w, h, x, y)
			placed++
		}
		c.logger.Info("signature_fallback_placement", "page", page.Number, "images", placed)
	}

	for _, page := range pages {
		if ops, ok := overlays[page.Number]; ok {
			upd.AppendPageOverlay(page, ops.Bytes())
		}
	}
	out, err := upd.Write()
	if err != nil {
		return nil, domain.WrapError(domain.ErrComposition, "write revision", err)
	}
	return out.Data, nil
}

type stamp struct {
	ref    pdfdoc.Ref
	width  float64
	height float64
	names  map[int]pdfdoc.Name
}

func (s *stamp) name(upd *pdfdoc.Update, page pdfdoc.Page, role domain.Role) pdfdoc.Name {
	if n, ok := s.names[page.Number]; ok {
		return n
	}
	n := upd.AddPageXObject(page, "Sig"+strings.ToUpper(string(role)), s.ref)
	s.names[page.Number] = n
	return n
}

// fit scales the image into the signature box keeping its aspect ratio and
// never enlarging it.
func (c *Compositor) fit(s *stamp) (float64, float64) {
	if s.width <= 0 || s.height <= 0 {
		return 0, 0
	}
	scale := math.Min(1, math.Min(c.opts.BoxWidth/s.width, c.opts.BoxHeight/s.height))
	return s.width * scale, s.height * scale
}

func (c *Compositor) fallbackPage(pages []pdfdoc.Page) pdfdoc.Page {
	if c.opts.FallbackPage >= 1 && c.opts.FallbackPage <= len(pages) {
		return pages[c.opts.FallbackPage-1]
	}
	return pages[len(pages)-1]
}

func (c *Compositor) whiteOut(buf *bytes.Buffer, pos domain.MarkerPosition) {
	p := c.opts.Padding
	fmt.Fprintf(buf, "q 1 1 1 rg %s %s %s %s re f Q\n",
		pdfdoc.FormatReal(pos.X-p), pdfdoc.FormatReal(pos.Y-p),
		pdfdoc.FormatReal(pos.Width+2*p), pdfdoc.FormatReal(pos.Height+2*p))
}

func (c *Compositor) draw(buf *bytes.Buffer, name pdfdoc.Name, w, h, x, y float64) {
	fmt.Fprintf(buf, "q %s 0 0 %s %s %s cm /%s Do Q\n",
		pdfdoc.FormatReal(w), pdfdoc.FormatReal(h), pdfdoc.FormatReal(x), pdfdoc.FormatReal(y), name)
}
