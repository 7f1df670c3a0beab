package pdfdoc

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
)

const maxNesting = 256

type parser struct {
	data  []byte
	pos   int
	depth int
}

func (p *parser) eof() bool { return p.pos >= len(p.data) }

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("pdf syntax at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		switch {
		case isWhitespace(c):
			p.pos++
		case c == '%':
			for p.pos < len(p.data) && p.data[p.pos] != '\n' && p.data[p.pos] != '\r' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *parser) hasPrefix(s string) bool {
	return bytes.HasPrefix(p.data[p.pos:], []byte(s))
}

// keyword reads a run of regular characters.
func (p *parser) keyword() string {
	start := p.pos
	for p.pos < len(p.data) && !isWhitespace(p.data[p.pos]) && !isDelimiter(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

func (p *parser) expectKeyword(want string) error {
	p.skipSpace()
	if got := p.keyword(); got != want {
		return p.errorf("expected %q, got %q", want, got)
	}
	return nil
}

func (p *parser) readInt() (int64, error) {
	p.skipSpace()
	tok := p.keyword()
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, p.errorf("expected integer, got %q", tok)
	}
	return n, nil
}

func (p *parser) parseObject() (Object, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("unexpected end of data")
	}
	switch c := p.data[p.pos]; {
	case c == '/':
		return p.parseName()
	case c == '(':
		return p.parseLiteralString()
	case c == '<':
		if p.hasPrefix("<<") {
			return p.parseDict()
		}
		return p.parseHexString()
	case c == '[':
		return p.parseArray()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumberOrRef()
	default:
		switch kw := p.keyword(); kw {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return nil, nil
		default:
			return nil, p.errorf("unexpected token %q", kw)
		}
	}
}

func (p *parser) parseName() (Name, error) {
	p.pos++
	var out []byte
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && p.pos+2 < len(p.data) {
			if b, err := hex.DecodeString(string(p.data[p.pos+1 : p.pos+3])); err == nil {
				out = append(out, b[0])
				p.pos += 3
				continue
			}
		}
		out = append(out, c)
		p.pos++
	}
	return Name(out), nil
}

func (p *parser) parseLiteralString() (String, error) {
	p.pos++
	var out []byte
	level := 1
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		p.pos++
		switch c {
		case '(':
			level++
			out = append(out, c)
		case ')':
			level--
			if level == 0 {
				return String{Value: out}, nil
			}
			out = append(out, c)
		case '\\':
			if p.eof() {
				return String{}, p.errorf("unterminated escape")
			}
			e := p.data[p.pos]
			p.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if !p.eof() && p.data[p.pos] == '\n' {
					p.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && !p.eof() && p.data[p.pos] >= '0' && p.data[p.pos] <= '7'; i++ {
						v = v*8 + int(p.data[p.pos]-'0')
						p.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return String{}, p.errorf("unterminated string")
}

func (p *parser) parseHexString() (String, error) {
	p.pos++
	var digits []byte
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		p.pos++
		if c == '>' {
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			out := make([]byte, len(digits)/2)
			if _, err := hex.Decode(out, digits); err != nil {
				return String{}, p.errorf("bad hex string: %v", err)
			}
			return String{Value: out, Hex: true}, nil
		}
		if isWhitespace(c) {
			continue
		}
		digits = append(digits, c)
	}
	return String{}, p.errorf("unterminated hex string")
}

func (p *parser) parseArray() (Array, error) {
	p.pos++
	if p.depth++; p.depth > maxNesting {
		return nil, p.errorf("nesting too deep")
	}
	defer func() { p.depth-- }()
	out := Array{}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated array")
		}
		if p.data[p.pos] == ']' {
			p.pos++
			return out, nil
		}
		item, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
}

func (p *parser) parseDict() (*Dict, error) {
	p.pos += 2
	if p.depth++; p.depth > maxNesting {
		return nil, p.errorf("nesting too deep")
	}
	defer func() { p.depth-- }()
	d := NewDict()
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated dictionary")
		}
		if p.hasPrefix(">>") {
			p.pos += 2
			return d, nil
		}
		if p.data[p.pos] != '/' {
			return nil, p.errorf("dictionary key must be a name")
		}
		key, err := p.parseName()
		if err != nil {
			return nil, err
		}
		val, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		d.Set(key, val)
	}
}

func (p *parser) parseNumberOrRef() (Object, error) {
	tok := p.keyword()
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		save := p.pos
		if ref, ok := p.tryRef(n); ok {
			return ref, nil
		}
		p.pos = save
		return Integer(n), nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return nil, p.errorf("bad number %q", tok)
	}
	return Real(f), nil
}

// tryRef checks for "<gen> R" after an integer.
func (p *parser) tryRef(num int64) (Ref, bool) {
	p.skipSpace()
	if p.eof() || p.data[p.pos] < '0' || p.data[p.pos] > '9' {
		return Ref{}, false
	}
	genTok := p.keyword()
	gen, err := strconv.Atoi(genTok)
	if err != nil {
		return Ref{}, false
	}
	p.skipSpace()
	if p.eof() || p.data[p.pos] != 'R' {
		return Ref{}, false
	}
	if p.pos+1 < len(p.data) && !isWhitespace(p.data[p.pos+1]) && !isDelimiter(p.data[p.pos+1]) {
		return Ref{}, false
	}
	p.pos++
	return Ref{Num: int(num), Gen: gen}, true
}
