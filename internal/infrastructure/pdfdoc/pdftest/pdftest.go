// Package pdftest builds small, valid PDF files for tests.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"strings"
)

// Text is one string drawn in 12pt-scalable Courier at baseline (X, Y).
type Text struct {
	X, Y  float64
	Size  float64
	Value string
}

type Page struct {
	Width, Height float64
	Texts         []Text
}

// Options selects how the cross-reference section is written.
type Options struct {
	XRefStream bool
}

// Build renders pages with a classic xref table.
func Build(pages ...Page) []byte {
	return BuildWith(Options{}, pages...)
}

func BuildWith(opts Options, pages ...Page) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	offsets := map[int]int{}
	write := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	widths := strings.TrimSpace(strings.Repeat("600 ", 95))
	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}

	write(1, "<< /Type /Catalog /Pages 2 0 R >>")
	write(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /Resources << /Font << /F1 3 0 R >> >> >>", strings.Join(kids, " "), len(pages)))
	write(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Courier /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths ["+widths+"] >>")

	for i, p := range pages {
		w, h := p.Width, p.Height
		if w == 0 {
			w, h = 595, 842
		}
		var content bytes.Buffer
		for _, t := range p.Texts {
			size := t.Size
			if size == 0 {
				size = 12
			}
			fmt.Fprintf(&content, "BT /F1 %g Tf 1 0 0 1 %g %g Tm (%s) Tj ET\n", size, t.X, t.Y, escape(t.Value))
		}
		pageNum, contentNum := 4+2*i, 5+2*i
		write(pageNum, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Contents %d 0 R >>", w, h, contentNum))
		write(contentNum, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()))
	}

	size := 4 + 2*len(pages)
	id := "<0123456789ABCDEF0123456789ABCDEF>"
	if !opts.XRefStream {
		start := buf.Len()
		fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f\r\n", size)
		for n := 1; n < size; n++ {
			fmt.Fprintf(&buf, "%010d 00000 n\r\n", offsets[n])
		}
		fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /ID [%s %s] >>\nstartxref\n%d\n%%%%EOF\n", size, id, id, start)
		return buf.Bytes()
	}

	// Xref stream with PNG "Up" prediction, as produced by most modern writers.
	xrefNum := size
	offsets[xrefNum] = buf.Len()
	const columns = 7 // W [1 4 2]
	var raw bytes.Buffer
	prev := make([]byte, columns)
	for n := 0; n <= xrefNum; n++ {
		row := make([]byte, columns)
		if n > 0 {
			off := offsets[n]
			row[0] = 1
			row[1], row[2], row[3], row[4] = byte(off>>24), byte(off>>16), byte(off>>8), byte(off)
		} else {
			row[5], row[6] = 0xff, 0xff
		}
		raw.WriteByte(2)
		for i := range row {
			raw.WriteByte(row[i] - prev[i])
		}
		prev = row
	}
	var packed bytes.Buffer
	zw := zlib.NewWriter(&packed)
	_, _ = zw.Write(raw.Bytes())
	_ = zw.Close()

	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 2] /Root 1 0 R /ID [%s %s] /Filter /FlateDecode /DecodeParms << /Predictor 12 /Columns %d >> /Length %d >>\nstream\n",
		xrefNum, xrefNum+1, id, id, columns, packed.Len())
	buf.Write(packed.Bytes())
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", offsets[xrefNum])
	return buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
