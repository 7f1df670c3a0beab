package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

var ErrEncrypted = errors.New("encrypted PDF documents are not supported")

type entryKind byte

const (
	entryFree entryKind = iota
	entryOffset
	entryCompressed
)

type xrefEntry struct {
	kind   entryKind
	offset int64
	gen    int
	stream int
	index  int
}

type objectStream struct {
	data    []byte
	offsets map[int]int
}

// Document is a parsed, read-only view of a PDF. Resolved objects are cached;
// callers must not mutate them and should Clone before editing.
type Document struct {
	data           []byte
	xref           map[int]xrefEntry
	trailer        *Dict
	startXRef      int64
	usesXRefStream bool

	cache      map[int]Object
	objStreams map[int]*objectStream
}

// Open parses the cross-reference chain of data. data is retained and must
// not be modified while the document is in use.
func Open(data []byte) (*Document, error) {
	head := bytes.TrimLeft(data[:min(len(data), 1024)], "\x00\t\r\n ")
	if !bytes.HasPrefix(head, []byte("%PDF-")) {
		return nil, fmt.Errorf("not a PDF: missing header")
	}
	d := &Document{
		data:       data,
		xref:       make(map[int]xrefEntry),
		cache:      make(map[int]Object),
		objStreams: make(map[int]*objectStream),
	}

	start, err := findStartXRef(data)
	if err == nil {
		d.startXRef = start
		err = d.loadXRefChain(start)
	}
	if err != nil {
		if rebuildErr := d.rebuildXRef(); rebuildErr != nil {
			return nil, fmt.Errorf("read cross-reference: %w", errors.Join(err, rebuildErr))
		}
	}
	if d.trailer.Has("Encrypt") {
		return nil, ErrEncrypted
	}
	if _, ok := d.trailer.Get("Root").(Ref); !ok {
		return nil, fmt.Errorf("trailer has no /Root reference")
	}
	return d, nil
}

func (d *Document) Bytes() []byte { return d.data }

func (d *Document) Trailer() *Dict { return d.trailer }

func (d *Document) StartXRef() int64 { return d.startXRef }

func (d *Document) UsesXRefStream() bool { return d.usesXRefStream }

// Catalog returns the document root dictionary.
func (d *Document) Catalog() (*Dict, Ref, error) {
	ref, _ := d.trailer.Get("Root").(Ref)
	cat, ok := d.Resolve(ref).(*Dict)
	if !ok {
		return nil, ref, fmt.Errorf("catalog %s is not a dictionary", ref)
	}
	return cat, ref, nil
}

// Size is the first object number free for new objects.
func (d *Document) Size() int {
	size := 0
	if n, ok := AsInt(d.trailer.Get("Size")); ok {
		size = int(n)
	}
	for num := range d.xref {
		if num >= size {
			size = num + 1
		}
	}
	return size
}

// Resolve follows references until a direct object is reached.
func (d *Document) Resolve(o Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := o.(Ref)
		if !ok {
			return o
		}
		o = d.Object(ref)
	}
	return nil
}

// Object loads an indirect object; missing objects are null.
func (d *Document) Object(ref Ref) Object {
	if o, ok := d.cache[ref.Num]; ok {
		return o
	}
	d.cache[ref.Num] = nil // cycle guard while loading
	o, err := d.load(ref.Num)
	if err != nil {
		o = nil
	}
	d.cache[ref.Num] = o
	return o
}

func (d *Document) load(num int) (Object, error) {
	e, ok := d.xref[num]
	if !ok {
		return nil, fmt.Errorf("object %d not in cross-reference", num)
	}
	switch e.kind {
	case entryOffset:
		_, obj, err := d.parseIndirectAt(e.offset)
		return obj, err
	case entryCompressed:
		return d.loadCompressed(num, e)
	default:
		return nil, nil
	}
}

func (d *Document) parseIndirectAt(offset int64) (Ref, Object, error) {
	if offset < 0 || offset >= int64(len(d.data)) {
		return Ref{}, nil, fmt.Errorf("object offset %d out of range", offset)
	}
	p := &parser{data: d.data, pos: int(offset)}
	num, err := p.readInt()
	if err != nil {
		return Ref{}, nil, err
	}
	gen, err := p.readInt()
	if err != nil {
		return Ref{}, nil, err
	}
	if err := p.expectKeyword("obj"); err != nil {
		return Ref{}, nil, err
	}
	obj, err := p.parseObject()
	if err != nil {
		return Ref{}, nil, err
	}
	ref := Ref{Num: int(num), Gen: int(gen)}
	dict, ok := obj.(*Dict)
	if !ok {
		return ref, obj, nil
	}
	p.skipSpace()
	if !p.hasPrefix("stream") {
		return ref, dict, nil
	}
	p.pos += len("stream")
	if p.hasPrefix("\r\n") {
		p.pos += 2
	} else if p.hasPrefix("\n") || p.hasPrefix("\r") {
		p.pos++
	}
	data, err := d.streamData(p, dict)
	if err != nil {
		return ref, nil, err
	}
	return ref, &Stream{Dict: dict, Data: data}, nil
}

func (d *Document) streamData(p *parser, dict *Dict) ([]byte, error) {
	start := p.pos
	length := int64(-1)
	switch l := dict.Get("Length").(type) {
	case Integer:
		length = int64(l)
	case Ref:
		if n, ok := AsInt(d.Object(l)); ok {
			length = n
		}
	}
	if length >= 0 && start+int(length) <= len(d.data) {
		rest := bytes.TrimLeft(d.data[start+int(length):min(len(d.data), start+int(length)+32)], "\r\n \t")
		if bytes.HasPrefix(rest, []byte("endstream")) {
			return d.data[start : start+int(length)], nil
		}
	}
	end := bytes.Index(d.data[start:], []byte("endstream"))
	if end < 0 {
		return nil, fmt.Errorf("stream at offset %d has no endstream", start)
	}
	data := d.data[start : start+end]
	data = bytes.TrimSuffix(data, []byte("\n"))
	data = bytes.TrimSuffix(data, []byte("\r"))
	return data, nil
}

func (d *Document) loadCompressed(num int, e xrefEntry) (Object, error) {
	ostm, err := d.objectStream(e.stream)
	if err != nil {
		return nil, err
	}
	off, ok := ostm.offsets[num]
	if !ok {
		return nil, fmt.Errorf("object %d missing from object stream %d", num, e.stream)
	}
	p := &parser{data: ostm.data, pos: off}
	return p.parseObject()
}

func (d *Document) objectStream(num int) (*objectStream, error) {
	if ostm, ok := d.objStreams[num]; ok {
		return ostm, nil
	}
	e, ok := d.xref[num]
	if !ok || e.kind != entryOffset {
		return nil, fmt.Errorf("object stream %d not found", num)
	}
	_, obj, err := d.parseIndirectAt(e.offset)
	if err != nil {
		return nil, err
	}
	s, ok := obj.(*Stream)
	if !ok {
		return nil, fmt.Errorf("object %d is not an object stream", num)
	}
	data, err := d.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode object stream %d: %w", num, err)
	}
	n, _ := AsInt(s.Dict.Get("N"))
	first, _ := AsInt(s.Dict.Get("First"))
	p := &parser{data: data}
	offsets := make(map[int]int, n)
	for i := int64(0); i < n; i++ {
		objNum, err := p.readInt()
		if err != nil {
			return nil, err
		}
		rel, err := p.readInt()
		if err != nil {
			return nil, err
		}
		offsets[int(objNum)] = int(first + rel)
	}
	ostm := &objectStream{data: data, offsets: offsets}
	d.objStreams[num] = ostm
	return ostm, nil
}

func findStartXRef(data []byte) (int64, error) {
	tail := data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("startxref not found")
	}
	p := &parser{data: tail, pos: idx + len("startxref")}
	off, err := p.readInt()
	if err != nil {
		return 0, err
	}
	return off, nil
}

func (d *Document) loadXRefChain(offset int64) error {
	seen := make(map[int64]bool)
	first := true
	for {
		if seen[offset] {
			break
		}
		seen[offset] = true
		if offset < 0 || offset >= int64(len(d.data)) {
			return fmt.Errorf("xref offset %d out of range", offset)
		}

		p := &parser{data: d.data, pos: int(offset)}
		p.skipSpace()
		var trailer *Dict
		isStream := false
		if p.hasPrefix("xref") {
			p.pos += len("xref")
			t, err := d.readXRefTable(p)
			if err != nil {
				return err
			}
			trailer = t
			if xs, ok := AsInt(t.Get("XRefStm")); ok {
				if _, err := d.readXRefStream(xs); err != nil {
					return err
				}
			}
		} else {
			t, err := d.readXRefStream(offset)
			if err != nil {
				return err
			}
			trailer = t
			isStream = true
		}
		if first {
			d.trailer = trailer
			d.usesXRefStream = isStream
			first = false
		}
		prev, ok := AsInt(trailer.Get("Prev"))
		if !ok {
			break
		}
		offset = prev
	}
	return nil
}

// addEntry keeps the first (newest) definition of an object number.
func (d *Document) addEntry(num int, e xrefEntry) {
	if _, ok := d.xref[num]; ok {
		return
	}
	d.xref[num] = e
}

func (d *Document) readXRefTable(p *parser) (*Dict, error) {
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("xref table without trailer")
		}
		if p.hasPrefix("trailer") {
			p.pos += len("trailer")
			obj, err := p.parseObject()
			if err != nil {
				return nil, err
			}
			t, ok := obj.(*Dict)
			if !ok {
				return nil, p.errorf("trailer is not a dictionary")
			}
			return t, nil
		}
		start, err := p.readInt()
		if err != nil {
			return nil, err
		}
		count, err := p.readInt()
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < count; i++ {
			off, err := p.readInt()
			if err != nil {
				return nil, err
			}
			gen, err := p.readInt()
			if err != nil {
				return nil, err
			}
			p.skipSpace()
			kind := p.keyword()
			num := int(start + i)
			switch kind {
			case "n":
				d.addEntry(num, xrefEntry{kind: entryOffset, offset: off, gen: int(gen)})
			case "f":
				d.addEntry(num, xrefEntry{kind: entryFree, gen: int(gen)})
			default:
				return nil, p.errorf("bad xref entry type %q", kind)
			}
		}
	}
}

func (d *Document) readXRefStream(offset int64) (*Dict, error) {
	_, obj, err := d.parseIndirectAt(offset)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	s, ok := obj.(*Stream)
	if !ok {
		return nil, fmt.Errorf("xref stream at %d is not a stream", offset)
	}
	data, err := d.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}
	wArr, ok := s.Dict.Get("W").(Array)
	if !ok || len(wArr) != 3 {
		return nil, fmt.Errorf("xref stream: bad /W")
	}
	var w [3]int
	for i, v := range wArr {
		n, _ := AsInt(v)
		w[i] = int(n)
	}
	index := []int64{0}
	size, _ := AsInt(s.Dict.Get("Size"))
	index = append(index, size)
	if idx, ok := s.Dict.Get("Index").(Array); ok {
		index = index[:0]
		for _, v := range idx {
			n, _ := AsInt(v)
			index = append(index, n)
		}
	}

	row := w[0] + w[1] + w[2]
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		for j := int64(0); j < index[i+1]; j++ {
			if pos+row > len(data) {
				return s.Dict, nil
			}
			f1 := int64(1)
			if w[0] > 0 {
				f1 = readBE(data[pos : pos+w[0]])
			}
			f2 := readBE(data[pos+w[0] : pos+w[0]+w[1]])
			f3 := readBE(data[pos+w[0]+w[1] : pos+row])
			pos += row
			num := int(index[i] + j)
			switch f1 {
			case 0:
				d.addEntry(num, xrefEntry{kind: entryFree})
			case 1:
				d.addEntry(num, xrefEntry{kind: entryOffset, offset: f2, gen: int(f3)})
			case 2:
				d.addEntry(num, xrefEntry{kind: entryCompressed, stream: int(f2), index: int(f3)})
			}
		}
	}
	return s.Dict, nil
}

func readBE(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

var objHeader = regexp.MustCompile(`(?m)(?:^|[\r\n])\s*(\d+)\s+(\d+)\s+obj\b`)

// rebuildXRef scans the file for object headers when the cross-reference
// chain is unusable.
func (d *Document) rebuildXRef() error {
	d.xref = make(map[int]xrefEntry)
	matches := objHeader.FindAllSubmatchIndex(d.data, -1)
	sort.SliceStable(matches, func(i, j int) bool { return matches[i][2] > matches[j][2] })
	for _, m := range matches {
		num, _ := strconv.Atoi(string(d.data[m[2]:m[3]]))
		gen, _ := strconv.Atoi(string(d.data[m[4]:m[5]]))
		d.addEntry(num, xrefEntry{kind: entryOffset, offset: int64(m[2]), gen: gen})
	}
	idx := bytes.LastIndex(d.data, []byte("trailer"))
	if idx < 0 {
		return fmt.Errorf("no trailer found while rebuilding cross-reference")
	}
	p := &parser{data: d.data, pos: idx + len("trailer")}
	obj, err := p.parseObject()
	if err != nil {
		return err
	}
	t, ok := obj.(*Dict)
	if !ok {
		return fmt.Errorf("trailer is not a dictionary")
	}
	d.trailer = t
	d.usesXRefStream = false
	return nil
}
