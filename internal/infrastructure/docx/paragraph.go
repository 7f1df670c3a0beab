package docx

import (
	"strings"

	"github.com/beevik/etree"
)

// segment is one w:t element and its offset in the paragraph's joined text.
type segment struct {
	el    *etree.Element
	start int
	text  string
}

func (s segment) end() int { return s.start + len(s.text) }

func isW(el *etree.Element, tag string) bool {
	return el.Space == "w" && el.Tag == tag
}

// paragraphs returns every w:p in the tree, outer paragraphs first.
func paragraphs(doc *etree.Document) []*etree.Element {
	return doc.FindElements("//w:p")
}

// segments collects the w:t elements owned by p. Paragraphs nested in text
// boxes are skipped; they are visited on their own.
func segments(p *etree.Element) []segment {
	var out []segment
	offset := 0
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			switch {
			case isW(child, "p"):
				continue
			case isW(child, "t"):
				text := child.Text()
				out = append(out, segment{el: child, start: offset, text: text})
				offset += len(text)
			default:
				walk(child)
			}
		}
	}
	walk(p)
	return out
}

func joined(segs []segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(s.text)
	}
	return b.String()
}

// replaceSpan rewrites the byte span [start,end) of the joined text with repl.
// The first overlapping segment keeps its prefix and receives repl, middle
// segments are emptied and the last keeps its suffix.
func replaceSpan(segs []segment, start, end int, repl string) bool {
	first, last := -1, -1
	for i, s := range segs {
		if s.text == "" {
			continue
		}
		if first < 0 && start >= s.start && start < s.end() {
			first = i
		}
		if end > s.start && end <= s.end() {
			last = i
			break
		}
	}
	if first < 0 || last < first {
		return false
	}
	if first == last {
		s := segs[first]
		setText(s.el, s.text[:start-s.start]+repl+s.text[end-s.start:])
		return true
	}
	head := segs[first]
	setText(head.el, head.text[:start-head.start]+repl)
	for i := first + 1; i < last; i++ {
		setText(segs[i].el, "")
	}
	tail := segs[last]
	setText(tail.el, tail.text[end-tail.start:])
	return true
}

func setText(el *etree.Element, text string) {
	el.SetText(text)
	if el.SelectAttr("xml:space") == nil {
		el.CreateAttr("xml:space", "preserve")
	}
}

// replaceAll substitutes every occurrence of token in p and returns the count.
// Search resumes after each inserted replacement, so a replacement containing
// the token is never re-expanded.
func replaceAll(p *etree.Element, token, repl string) int {
	count := 0
	pos := 0
	for {
		segs := segments(p)
		text := joined(segs)
		if pos > len(text) {
			return count
		}
		idx := strings.Index(text[pos:], token)
		if idx < 0 {
			return count
		}
		idx += pos
		if !replaceSpan(segs, idx, idx+len(token), repl) {
			return count
		}
		count++
		pos = idx + len(repl)
	}
}

// expandLineBreaks turns "\n" inside w:t elements of p into w:br siblings.
func expandLineBreaks(p *etree.Element) {
	for _, s := range segments(p) {
		text := s.el.Text()
		if !strings.Contains(text, "\n") {
			continue
		}
		parent := s.el.Parent()
		if parent == nil {
			continue
		}
		lines := strings.Split(text, "\n")
		setText(s.el, lines[0])
		at := s.el.Index()
		for i, line := range lines[1:] {
			br := etree.NewElement("w:br")
			t := etree.NewElement("w:t")
			t.CreateAttr("xml:space", "preserve")
			t.SetText(line)
			parent.InsertChildAt(at+1+2*i, br)
			parent.InsertChildAt(at+2+2*i, t)
		}
	}
}
