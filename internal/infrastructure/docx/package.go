package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
)

var contentPartPattern = regexp.MustCompile(`^word/(document|header\d*|footer\d*|footnotes|endnotes)\.xml$`)

// Package is an in-memory OOXML zip container. Entry order is preserved on save.
type Package struct {
	entries []*entry
}

type entry struct {
	name   string
	method uint16
	header zip.FileHeader
	data   []byte
}

func OpenPackage(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx container: %w", err)
	}
	pkg := &Package{entries: make([]*entry, 0, len(zr.File))}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open part %s: %w", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %s: %w", f.Name, err)
		}
		pkg.entries = append(pkg.entries, &entry{name: f.Name, method: f.Method, header: f.FileHeader, data: body})
	}
	if _, ok := pkg.Part("word/document.xml"); !ok {
		return nil, fmt.Errorf("open docx container: word/document.xml missing")
	}
	return pkg, nil
}

func (p *Package) Part(name string) ([]byte, bool) {
	for _, e := range p.entries {
		if e.name == name {
			return e.data, true
		}
	}
	return nil, false
}

func (p *Package) SetPart(name string, data []byte) {
	for _, e := range p.entries {
		if e.name == name {
			e.data = data
			return
		}
	}
	p.entries = append(p.entries, &entry{name: name, method: zip.Deflate, data: data})
}

// ContentParts lists the parts that carry run text: body, headers, footers, notes.
func (p *Package) ContentParts() []string {
	names := make([]string, 0, 4)
	for _, e := range p.entries {
		if contentPartPattern.MatchString(e.name) {
			names = append(names, e.name)
		}
	}
	return names
}

func (p *Package) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range p.entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   e.method,
			Modified: e.header.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("write part %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("write part %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx container: %w", err)
	}
	return buf.Bytes(), nil
}
