package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/ir/raw"
)

// Page is a leaf of the page tree with inherited attributes applied.
type Page struct {
	Number    int // 1-based
	Ref       raw.ObjectRef
	Dict      *raw.DictObj
	Resources *raw.DictObj
	MediaBox  coords.Rect
	CropBox   coords.Rect
	Rotate    int
}

// Letter is the fallback media box.
var Letter = coords.Rect{URX: 612, URY: 792}

type inherited struct {
	resources *raw.DictObj
	mediaBox  *coords.Rect
	cropBox   *coords.Rect
	rotate    int
}

// Pages walks the page tree in document order.
func (d *Document) Pages() ([]*Page, error) {
	cat, err := d.catalog()
	if err != nil {
		return nil, err
	}
	rootRef, ok := cat.Get("Pages")
	if !ok {
		return nil, errors.New("catalog has no /Pages")
	}
	var pages []*Page
	visited := make(map[raw.ObjectRef]bool)
	var walk func(node raw.Object, inh inherited, depth int) error
	walk = func(node raw.Object, inh inherited, depth int) error {
		if depth > 64 {
			return errors.New("page tree too deep")
		}
		var ref raw.ObjectRef
		if r, ok := node.(raw.RefObj); ok {
			if visited[r.R] {
				return fmt.Errorf("page tree cycle at %s", r.R)
			}
			visited[r.R] = true
			ref = r.R
		}
		obj, err := d.Resolve(node)
		if err != nil {
			return err
		}
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			return nil
		}
		if res, ok := d.GetDict(dict, "Resources"); ok {
			inh.resources = res
		}
		if box, ok := d.GetRect(dict, "MediaBox"); ok {
			inh.mediaBox = &box
		}
		if box, ok := d.GetRect(dict, "CropBox"); ok {
			inh.cropBox = &box
		}
		if rot, ok := d.GetInt(dict, "Rotate"); ok {
			inh.rotate = int(rot)
		}
		typ, _ := d.GetName(dict, "Type")
		kids, hasKids := d.GetArray(dict, "Kids")
		if typ == "Pages" || (typ == "" && hasKids) {
			for _, kid := range kids.Items {
				if err := walk(kid, inh, depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		p := &Page{Number: len(pages) + 1, Ref: ref, Dict: dict, Resources: inh.resources, MediaBox: Letter}
		if inh.resources == nil {
			p.Resources = raw.Dict()
		}
		if inh.mediaBox != nil {
			p.MediaBox = *inh.mediaBox
		}
		p.CropBox = p.MediaBox
		if inh.cropBox != nil {
			p.CropBox = *inh.cropBox
		}
		p.Rotate = ((inh.rotate % 360) + 360) % 360
		pages = append(pages, p)
		return nil
	}
	if err := walk(rootRef, inherited{}, 0); err != nil {
		return nil, err
	}
	return pages, nil
}

// Info holds the document information dictionary.
type Info struct {
	Title, Author, Subject, Keywords, Creator, Producer string
	CreationDate, ModDate                             string
}

func (d *Document) Info() (Info, error) {
	var info Info
	obj, ok := d.table.Trailer.Get("Info")
	if !ok {
		return info, nil
	}
	resolved, err := d.Resolve(obj)
	if err != nil {
		return info, err
	}
	dict, ok := resolved.(*raw.DictObj)
	if !ok {
		return info, nil
	}
	text := func(key string) string {
		s, _ := d.GetText(dict, key)
		return s
	}
	info.Title = text("Title")
	info.Author = text("Author")
	info.Subject = text("Subject")
	info.Keywords = text("Keywords")
	info.Creator = text("Creator")
	info.Producer = text("Producer")
	info.CreationDate = text("CreationDate")
	info.ModDate = text("ModDate")
	return info, nil
}

type labelRange struct {
	start  int
	style  string
	prefix string
	first  int
}

// PageLabels returns the display label of each page. Pages without a label
// range, and documents without /PageLabels, use decimal page numbers.
func (d *Document) PageLabels() ([]string, error) {
	pages, err := d.Pages()
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(pages))
	for i := range labels {
		labels[i] = strconv.Itoa(i + 1)
	}
	cat, _ := d.catalog()
	tree, ok := d.GetDict(cat, "PageLabels")
	if !ok {
		return labels, nil
	}
	var ranges []labelRange
	d.collectNums(tree, func(key int, val raw.Object) {
		dict, ok := d.resolveQuiet(val).(*raw.DictObj)
		if !ok {
			return
		}
		r := labelRange{start: key, first: 1}
		r.style, _ = d.GetName(dict, "S")
		r.prefix, _ = d.GetText(dict, "P")
		if st, ok := d.GetInt(dict, "St"); ok {
			r.first = int(st)
		}
		ranges = append(ranges, r)
	}, 0)
	for i := range labels {
		var cur *labelRange
		for j := range ranges {
			if ranges[j].start <= i && (cur == nil || ranges[j].start >= cur.start) {
				cur = &ranges[j]
			}
		}
		if cur == nil {
			continue
		}
		labels[i] = cur.prefix + formatLabel(cur.style, cur.first+i-cur.start)
	}
	return labels, nil
}

func (d *Document) collectNums(node *raw.DictObj, fn func(int, raw.Object), depth int) {
	if node == nil || depth > 32 {
		return
	}
	if nums, ok := d.GetArray(node, "Nums"); ok {
		for i := 0; i+1 < len(nums.Items); i += 2 {
			if k, ok := d.resolveQuiet(nums.Items[i]).(raw.NumberObj); ok {
				fn(int(k.Int()), nums.Items[i+1])
			}
		}
	}
	if kids, ok := d.GetArray(node, "Kids"); ok {
		for _, kid := range kids.Items {
			if kd, ok := d.resolveQuiet(kid).(*raw.DictObj); ok {
				d.collectNums(kd, fn, depth+1)
			}
		}
	}
}

func formatLabel(style string, n int) string {
	switch style {
	case "D":
		return strconv.Itoa(n)
	case "R":
		return roman(n)
	case "r":
		return strings.ToLower(roman(n))
	case "A":
		return letters(n)
	case "a":
		return strings.ToLower(letters(n))
	}
	return ""
}

func roman(n int) string {
	if n <= 0 {
		return strconv.Itoa(n)
	}
	vals := []int{1000, 900, 500, 400, 100, 90, 50, 40, 10, 9, 5, 4, 1}
	syms := []string{"M", "CM", "D", "CD", "C", "XC", "L", "XL", "X", "IX", "V", "IV", "I"}
	var sb strings.Builder
	for i, v := range vals {
		for n >= v {
			sb.WriteString(syms[i])
			n -= v
		}
	}
	return sb.String()
}

// letters renders 1..26 as A..Z, 27 as AA, 28 as BB and so on.
func letters(n int) string {
	if n <= 0 {
		return strconv.Itoa(n)
	}
	ch := byte('A' + (n-1)%26)
	return strings.Repeat(string(ch), (n-1)/26+1)
}
