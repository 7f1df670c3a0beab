package pdfdoc

import "fmt"

// Page is a leaf of the page tree with inherited attributes applied.
type Page struct {
	Number    int
	Ref       Ref
	Dict      *Dict
	Resources *Dict
	MediaBox  [4]float64
}

func (p Page) Width() float64  { return p.MediaBox[2] - p.MediaBox[0] }
func (p Page) Height() float64 { return p.MediaBox[3] - p.MediaBox[1] }

var defaultMediaBox = [4]float64{0, 0, 612, 792}

type inherited struct {
	resources Object
	mediaBox  Object
}

// Pages walks the page tree in document order.
func (d *Document) Pages() ([]Page, error) {
	cat, _, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	rootRef, ok := cat.Get("Pages").(Ref)
	if !ok {
		return nil, fmt.Errorf("catalog has no /Pages reference")
	}
	var out []Page
	seen := make(map[int]bool)
	if err := d.walkPages(rootRef, inherited{}, seen, &out, 0); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	return out, nil
}

func (d *Document) walkPages(ref Ref, inh inherited, seen map[int]bool, out *[]Page, depth int) error {
	if depth > 64 {
		return fmt.Errorf("page tree too deep")
	}
	if seen[ref.Num] {
		return fmt.Errorf("page tree cycle at %s", ref)
	}
	seen[ref.Num] = true

	node, ok := d.Object(ref).(*Dict)
	if !ok {
		return fmt.Errorf("page tree node %s is not a dictionary", ref)
	}
	if r := node.Get("Resources"); r != nil {
		inh.resources = r
	}
	if m := node.Get("MediaBox"); m != nil {
		inh.mediaBox = m
	}

	typ, _ := node.Get("Type").(Name)
	kids, hasKids := d.Resolve(node.Get("Kids")).(Array)
	if typ == "Pages" || (typ == "" && hasKids) {
		for _, kid := range kids {
			kidRef, ok := kid.(Ref)
			if !ok {
				continue
			}
			if err := d.walkPages(kidRef, inh, seen, out, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	res, _ := d.Resolve(inh.resources).(*Dict)
	*out = append(*out, Page{
		Number:    len(*out) + 1,
		Ref:       ref,
		Dict:      node,
		Resources: res,
		MediaBox:  d.rect(inh.mediaBox),
	})
	return nil
}

func (d *Document) rect(o Object) [4]float64 {
	arr, ok := d.Resolve(o).(Array)
	if !ok || len(arr) != 4 {
		return defaultMediaBox
	}
	var r [4]float64
	for i, v := range arr {
		f, ok := AsFloat(d.Resolve(v))
		if !ok {
			return defaultMediaBox
		}
		r[i] = f
	}
	if r[0] > r[2] {
		r[0], r[2] = r[2], r[0]
	}
	if r[1] > r[3] {
		r[1], r[3] = r[3], r[1]
	}
	return r
}
