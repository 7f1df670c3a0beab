package pdfdoc_test

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/kirillkom/contract-signer/internal/infrastructure/pdfdoc"
	"github.com/kirillkom/contract-signer/internal/infrastructure/pdfdoc/pdftest"
)

func twoPages() []pdftest.Page {
	return []pdftest.Page{
		{Texts: []pdftest.Text{{X: 72, Y: 700, Value: "Page one"}}},
		{Width: 612, Height: 792, Texts: []pdftest.Text{{X: 72, Y: 100, Value: "Page two"}}},
	}
}

func TestOpenClassicAndStreamXRef(t *testing.T) {
	for name, opts := range map[string]pdftest.Options{
		"classic": {},
		"stream":  {XRefStream: true},
	} {
		t.Run(name, func(t *testing.T) {
			doc, err := pdfdoc.Open(pdftest.BuildWith(opts, twoPages()...))
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if doc.UsesXRefStream() != opts.XRefStream {
				t.Fatalf("UsesXRefStream() = %v", doc.UsesXRefStream())
			}
			pages, err := doc.Pages()
			if err != nil {
				t.Fatalf("Pages() error = %v", err)
			}
			if len(pages) != 2 {
				t.Fatalf("expected 2 pages, got %d", len(pages))
			}
			if pages[0].Width() != 595 || pages[1].Height() != 792 {
				t.Fatalf("unexpected media boxes %v %v", pages[0].MediaBox, pages[1].MediaBox)
			}
			fonts, ok := doc.Resolve(pages[1].Resources.Get("Font")).(*pdfdoc.Dict)
			if !ok || !fonts.Has("F1") {
				t.Fatalf("inherited resources not applied")
			}
		})
	}
}

func TestOpenRejectsNonPDF(t *testing.T) {
	if _, err := pdfdoc.Open([]byte("PK\x03\x04 not a pdf")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestUpdateAppendsRevision(t *testing.T) {
	for name, opts := range map[string]pdftest.Options{
		"classic": {},
		"stream":  {XRefStream: true},
	} {
		t.Run(name, func(t *testing.T) {
			original := pdftest.BuildWith(opts, twoPages()...)
			doc, err := pdfdoc.Open(original)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			pages, _ := doc.Pages()

			upd := doc.NewUpdate()
			img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
			img.Set(0, 0, color.NRGBA{R: 10, A: 128})
			imgRef := upd.AddImage(img)
			name := upd.AddPageXObject(pages[0], "Sig", imgRef)
			upd.AppendPageOverlay(pages[0], []byte("q 10 0 0 5 0 0 cm /"+string(name)+" Do Q\n"))

			out, err := upd.Write()
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if !bytes.HasPrefix(out.Data, original) {
				t.Fatalf("original revision was modified")
			}

			reopened, err := pdfdoc.Open(out.Data)
			if err != nil {
				t.Fatalf("reopen error = %v", err)
			}
			if reopened.UsesXRefStream() != opts.XRefStream {
				t.Fatalf("cross-reference style changed")
			}
			prev, _ := pdfdoc.AsInt(reopened.Trailer().Get("Prev"))
			if prev != doc.StartXRef() {
				t.Fatalf("Prev = %d, want %d", prev, doc.StartXRef())
			}

			newPages, err := reopened.Pages()
			if err != nil {
				t.Fatalf("Pages() error = %v", err)
			}
			contents, ok := newPages[0].Dict.Get("Contents").(pdfdoc.Array)
			if !ok || len(contents) != 3 {
				t.Fatalf("expected wrapped contents array of 3, got %#v", newPages[0].Dict.Get("Contents"))
			}
			closing, ok := reopened.Resolve(contents[2]).(*pdfdoc.Stream)
			if !ok {
				t.Fatalf("closing content is not a stream")
			}
			decoded, err := reopened.Decode(closing)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !bytes.HasPrefix(decoded, []byte("\nQ\n")) || !bytes.Contains(decoded, []byte("/Sig0 Do")) {
				t.Fatalf("unexpected overlay %q", decoded)
			}

			xobjects, ok := reopened.Resolve(newPages[0].Resources.Get("XObject")).(*pdfdoc.Dict)
			if !ok || !xobjects.Has("Sig0") {
				t.Fatalf("image not registered in page resources")
			}
			imgStream, ok := reopened.Resolve(xobjects.Get("Sig0")).(*pdfdoc.Stream)
			if !ok {
				t.Fatalf("image xobject missing")
			}
			if _, ok := imgStream.Dict.Get("SMask").(pdfdoc.Ref); !ok {
				t.Fatalf("translucent image should carry an SMask")
			}
			pixels, err := reopened.Decode(imgStream)
			if err != nil || len(pixels) != 4*2*3 {
				t.Fatalf("unexpected image payload len=%d err=%v", len(pixels), err)
			}

			if _, ok := newPages[1].Dict.Get("Contents").(pdfdoc.Ref); !ok {
				t.Fatalf("untouched page should keep its content reference")
			}
		})
	}
}

func TestSerializeRoundTripsTrickyValues(t *testing.T) {
	d := pdfdoc.D(
		"Name", pdfdoc.Name("A B#C"),
		"Text", pdfdoc.String{Value: []byte("a(b)\\c\n")},
		"Hex", pdfdoc.String{Value: []byte{0, 0xff}, Hex: true},
		"Nums", pdfdoc.Array{pdfdoc.Integer(-3), pdfdoc.Real(0.5), pdfdoc.Ref{Num: 7}},
		"Nested", pdfdoc.D("Flag", pdfdoc.Bool(true), "None", nil),
	)
	src := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Extra " + string(pdfdoc.Serialize(d)) + " >>\nendobj\ntrailer\n<< /Root 1 0 R /Size 2 >>\n")

	doc, err := pdfdoc.Open(src)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	cat, _, err := doc.Catalog()
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	got, ok := cat.Get("Extra").(*pdfdoc.Dict)
	if !ok {
		t.Fatalf("Extra is not a dictionary")
	}
	if got.Get("Name") != pdfdoc.Name("A B#C") {
		t.Fatalf("Name = %#v", got.Get("Name"))
	}
	if s := got.Get("Text").(pdfdoc.String); string(s.Value) != "a(b)\\c\n" {
		t.Fatalf("Text = %q", s.Value)
	}
	if s := got.Get("Hex").(pdfdoc.String); !s.Hex || !bytes.Equal(s.Value, []byte{0, 0xff}) {
		t.Fatalf("Hex = %#v", s)
	}
	nums := got.Get("Nums").(pdfdoc.Array)
	if nums[0] != pdfdoc.Integer(-3) || nums[1] != pdfdoc.Real(0.5) || nums[2] != (pdfdoc.Ref{Num: 7}) {
		t.Fatalf("Nums = %#v", nums)
	}
	if !got.Get("Nested").(*pdfdoc.Dict).Has("None") {
		t.Fatalf("null entry dropped")
	}
}
