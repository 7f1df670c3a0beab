package pdfdoc

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"sort"
)

// Update collects new and replaced objects and appends them, with a new
// cross-reference section, after the original bytes.
type Update struct {
	doc     *Document
	next    int
	objects map[int]Object
	gens    map[int]int
	pages   map[int]*pageEdit
}

func (d *Document) NewUpdate() *Update {
	return &Update{
		doc:     d,
		next:    d.Size(),
		objects: make(map[int]Object),
		gens:    make(map[int]int),
	}
}

// Add allocates a new object number for o.
func (u *Update) Add(o Object) Ref {
	num := u.next
	u.next++
	u.objects[num] = o
	return Ref{Num: num}
}

// Set replaces the object at ref in the new revision.
func (u *Update) Set(ref Ref, o Object) {
	u.objects[ref.Num] = o
	u.gens[ref.Num] = ref.Gen
}

// Pending returns the object staged for ref, or the original if untouched.
func (u *Update) Pending(ref Ref) Object {
	if o, ok := u.objects[ref.Num]; ok {
		return o
	}
	return u.doc.Object(ref)
}

func (u *Update) Empty() bool { return len(u.objects) == 0 }

// Output is the updated file.
type Output struct {
	Data []byte
}

func (u *Update) Write() (*Output, error) {
	u.flushOverlays()
	orig := u.doc.Bytes()
	var buf bytes.Buffer
	buf.Grow(len(orig) + 4096)
	buf.Write(orig)
	if len(orig) > 0 && orig[len(orig)-1] != '\n' && orig[len(orig)-1] != '\r' {
		buf.WriteByte('\n')
	}

	nums := make([]int, 0, len(u.objects)+1)
	for n := range u.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	offsets := make(map[int]int64, len(nums)+1)
	for _, n := range nums {
		offsets[n] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d %d obj\n", n, u.gens[n])
		writeObject(&buf, u.objects[n])
		buf.WriteString("\nendobj\n")
	}

	trailer, err := u.trailer()
	if err != nil {
		return nil, err
	}

	xrefStart := int64(buf.Len())
	if u.doc.UsesXRefStream() {
		xrefNum := u.next
		offsets[xrefNum] = xrefStart
		nums = append(nums, xrefNum)
		trailer.Set("Size", Integer(xrefNum+1))
		u.writeXRefStream(&buf, xrefNum, nums, offsets, trailer)
	} else {
		trailer.Set("Size", Integer(u.next))
		u.writeXRefTable(&buf, nums, offsets, trailer)
	}
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefStart)

	return &Output{Data: buf.Bytes()}, nil
}

func (u *Update) trailer() (*Dict, error) {
	old := u.doc.Trailer()
	root, ok := old.Get("Root").(Ref)
	if !ok {
		return nil, fmt.Errorf("trailer has no /Root")
	}
	t := NewDict()
	t.Set("Size", Integer(u.next))
	t.Set("Root", root)
	if info, ok := old.Get("Info").(Ref); ok {
		t.Set("Info", info)
	}
	if id, ok := old.Get("ID").(Array); ok && len(id) == 2 {
		t.Set("ID", id)
	} else {
		first := make([]byte, 16)
		if _, err := rand.Read(first); err != nil {
			return nil, fmt.Errorf("generate document id: %w", err)
		}
		t.Set("ID", Array{String{Value: first, Hex: true}, String{Value: first, Hex: true}})
	}
	t.Set("Prev", Integer(u.doc.StartXRef()))
	return t, nil
}

// runs groups sorted object numbers into contiguous subsections.
func runs(nums []int) [][2]int {
	var out [][2]int
	for i := 0; i < len(nums); {
		j := i
		for j+1 < len(nums) && nums[j+1] == nums[j]+1 {
			j++
		}
		out = append(out, [2]int{nums[i], j - i + 1})
		i = j + 1
	}
	return out
}

func (u *Update) writeXRefTable(buf *bytes.Buffer, nums []int, offsets map[int]int64, trailer *Dict) {
	buf.WriteString("xref\n")
	for _, r := range runs(nums) {
		fmt.Fprintf(buf, "%d %d\n", r[0], r[1])
		for n := r[0]; n < r[0]+r[1]; n++ {
			fmt.Fprintf(buf, "%010d %05d n\r\n", offsets[n], u.gens[n])
		}
	}
	buf.WriteString("trailer\n")
	writeDict(buf, trailer)
	buf.WriteByte('\n')
}

func (u *Update) writeXRefStream(buf *bytes.Buffer, xrefNum int, nums []int, offsets map[int]int64, trailer *Dict) {
	sort.Ints(nums)
	width := 1
	for v := offsets[xrefNum]; v > 0xff; v >>= 8 {
		width++
	}
	var rows bytes.Buffer
	index := Array{}
	for _, r := range runs(nums) {
		index = append(index, Integer(r[0]), Integer(r[1]))
		for n := r[0]; n < r[0]+r[1]; n++ {
			rows.WriteByte(1)
			off := offsets[n]
			for i := width - 1; i >= 0; i-- {
				rows.WriteByte(byte(off >> (8 * i)))
			}
			gen := u.gens[n]
			rows.WriteByte(byte(gen >> 8))
			rows.WriteByte(byte(gen))
		}
	}
	dict := NewDict()
	dict.Set("Type", Name("XRef"))
	for _, k := range trailer.Keys() {
		dict.Set(k, trailer.Get(k))
	}
	dict.Set("Index", index)
	dict.Set("W", Array{Integer(1), Integer(width), Integer(2)})

	fmt.Fprintf(buf, "%d 0 obj\n", xrefNum)
	writeObject(buf, &Stream{Dict: dict, Data: rows.Bytes()})
	buf.WriteString("\nendobj\n")
}
