// Package pdfdoc reads PDF object graphs and appends incremental updates
// without rewriting the original bytes.
package pdfdoc

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Object is one of: nil (null), Bool, Integer, Real, Name, String, Array,
// *Dict, *Stream or Ref.
type Object any

type (
	Bool    bool
	Integer int64
	Real    float64
	Name    string
	Array   []Object
)

type String struct {
	Value []byte
	Hex   bool
}

type Ref struct {
	Num int
	Gen int
}

func (r Ref) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Dict keeps insertion order so serialized output is stable.
type Dict struct {
	keys []Name
	vals map[Name]Object
}

func NewDict() *Dict {
	return &Dict{vals: make(map[Name]Object)}
}

// D builds a dict from alternating key/value pairs.
func D(pairs ...any) *Dict {
	d := NewDict()
	for i := 0; i+1 < len(pairs); i += 2 {
		d.Set(Name(fmt.Sprint(pairs[i])), pairs[i+1])
	}
	return d
}

func (d *Dict) Get(key Name) Object {
	if d == nil {
		return nil
	}
	return d.vals[key]
}

func (d *Dict) Has(key Name) bool {
	if d == nil {
		return false
	}
	_, ok := d.vals[key]
	return ok
}

func (d *Dict) Set(key Name, v Object) {
	if _, ok := d.vals[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.vals[key] = v
}

func (d *Dict) Delete(key Name) {
	if _, ok := d.vals[key]; !ok {
		return
	}
	delete(d.vals, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

func (d *Dict) Keys() []Name {
	if d == nil {
		return nil
	}
	return append([]Name(nil), d.keys...)
}

func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Clone is shallow: nested values are shared.
func (d *Dict) Clone() *Dict {
	out := NewDict()
	if d == nil {
		return out
	}
	for _, k := range d.keys {
		out.Set(k, d.vals[k])
	}
	return out
}

// Stream holds the still-encoded payload.
type Stream struct {
	Dict *Dict
	Data []byte
}

func AsInt(o Object) (int64, bool) {
	switch v := o.(type) {
	case Integer:
		return int64(v), true
	case Real:
		return int64(v), true
	default:
		return 0, false
	}
}

func AsFloat(o Object) (float64, bool) {
	switch v := o.(type) {
	case Integer:
		return float64(v), true
	case Real:
		return float64(v), true
	default:
		return 0, false
	}
}

// Serialize renders o in PDF syntax.
func Serialize(o Object) []byte {
	var buf bytes.Buffer
	writeObject(&buf, o)
	return buf.Bytes()
}

func writeObject(buf *bytes.Buffer, o Object) {
	switch v := o.(type) {
	case nil:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(v)))
	case Integer:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case int:
		buf.WriteString(strconv.Itoa(v))
	case Real:
		buf.WriteString(FormatReal(float64(v)))
	case float64:
		buf.WriteString(FormatReal(v))
	case Name:
		writeName(buf, v)
	case String:
		writeString(buf, v)
	case string:
		writeString(buf, String{Value: []byte(v)})
	case Array:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(' ')
			}
			writeObject(buf, item)
		}
		buf.WriteByte(']')
	case *Dict:
		writeDict(buf, v)
	case *Stream:
		dict := v.Dict.Clone()
		dict.Set("Length", Integer(len(v.Data)))
		writeDict(buf, dict)
		buf.WriteString("\nstream\n")
		buf.Write(v.Data)
		buf.WriteString("\nendstream")
	case Ref:
		buf.WriteString(v.String())
	default:
		panic(fmt.Sprintf("pdfdoc: cannot serialize %T", o))
	}
}

func writeDict(buf *bytes.Buffer, d *Dict) {
	buf.WriteString("<<")
	for _, k := range d.keys {
		writeName(buf, k)
		buf.WriteByte(' ')
		writeObject(buf, d.vals[k])
	}
	buf.WriteString(">>")
}

func writeName(buf *bytes.Buffer, n Name) {
	buf.WriteByte('/')
	for i := 0; i < len(n); i++ {
		c := n[i]
		if c < 0x21 || c > 0x7e || c == '#' || isDelimiter(c) {
			fmt.Fprintf(buf, "#%02X", c)
			continue
		}
		buf.WriteByte(c)
	}
}

func writeString(buf *bytes.Buffer, s String) {
	if s.Hex {
		buf.WriteByte('<')
		fmt.Fprintf(buf, "%X", s.Value)
		buf.WriteByte('>')
		return
	}
	buf.WriteByte('(')
	for _, c := range s.Value {
		switch c {
		case '\\', '(', ')':
			buf.WriteByte('\\')
			buf.WriteByte(c)
		case '\r':
			buf.WriteString(`\r`)
		case '\n':
			buf.WriteString(`\n`)
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte(')')
}

// FormatReal prints v without exponent and with at most 4 decimals.
func FormatReal(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

func isWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
