package pdfdoc

import (
	"fmt"
	"sort"
)

type pageEdit struct {
	dict      *Dict
	resources *Dict
	xobjects  *Dict
	overlay   []byte
	wrapped   bool
	flushed   bool
}

func (u *Update) page(p Page) *pageEdit {
	if u.pages == nil {
		u.pages = make(map[int]*pageEdit)
	}
	if e, ok := u.pages[p.Ref.Num]; ok {
		return e
	}
	dict, _ := u.Pending(p.Ref).(*Dict)
	dict = dict.Clone()

	res := p.Resources.Clone()
	if own, ok := u.doc.Resolve(dict.Get("Resources")).(*Dict); ok {
		res = own.Clone()
	}
	xobj := NewDict()
	if existing, ok := u.doc.Resolve(res.Get("XObject")).(*Dict); ok {
		xobj = existing.Clone()
	}
	res.Set("XObject", xobj)
	dict.Set("Resources", res)

	e := &pageEdit{dict: dict, resources: res, xobjects: xobj}
	u.pages[p.Ref.Num] = e
	u.Set(p.Ref, dict)
	return e
}

// AddPageXObject registers ref in the page resources under an unused name
// built from prefix and returns that name.
func (u *Update) AddPageXObject(p Page, prefix string, ref Ref) Name {
	e := u.page(p)
	for i := 0; ; i++ {
		name := Name(fmt.Sprintf("%s%d", prefix, i))
		if !e.xobjects.Has(name) {
			e.xobjects.Set(name, ref)
			return name
		}
	}
}

// AppendPageOverlay queues content drawn above the existing page content.
// The original content is wrapped in q/Q so its graphics state cannot leak
// into the overlay.
func (u *Update) AppendPageOverlay(p Page, ops []byte) {
	e := u.page(p)
	e.overlay = append(e.overlay, ops...)
	if e.wrapped {
		return
	}
	e.wrapped = true

	var existing Array
	switch c := e.dict.Get("Contents").(type) {
	case Ref:
		if arr, ok := u.doc.Resolve(c).(Array); ok {
			existing = append(existing, arr...)
		} else {
			existing = Array{c}
		}
	case Array:
		existing = append(existing, c...)
	}
	open := u.Add(&Stream{Dict: NewDict(), Data: []byte("q\n")})
	contents := append(Array{open}, existing...)
	e.dict.Set("Contents", contents)
}

// flushOverlays materializes the closing stream of every wrapped page.
// Called by Write.
func (u *Update) flushOverlays() {
	nums := make([]int, 0, len(u.pages))
	for num := range u.pages {
		nums = append(nums, num)
	}
	sort.Ints(nums)
	for _, num := range nums {
		e := u.pages[num]
		if !e.wrapped || e.flushed {
			continue
		}
		e.flushed = true
		data := append([]byte("\nQ\n"), e.overlay...)
		closeRef := u.Add(&Stream{Dict: D("Filter", Name("FlateDecode")), Data: Deflate(data)})
		contents, _ := e.dict.Get("Contents").(Array)
		e.dict.Set("Contents", append(contents, closeRef))
	}
}
