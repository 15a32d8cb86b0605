package extractor

import (
	"github.com/wudi/charterkit/contentstream"
	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/parser"
)

// Annotation summarizes a page annotation. Rect and QuadPoints are in the
// same display space as Line boxes.
type Annotation struct {
	Page       int
	Subtype    string
	Rect       coords.Rect
	QuadPoints []coords.Rect
	Contents   string
	URI        string
	Color      []float64
}

// ExtractAnnotations returns annotations across all pages in page order.
func (e *Extractor) ExtractAnnotations() ([]Annotation, error) {
	var out []Annotation
	for _, p := range e.pages {
		annots, err := e.pageAnnotations(p)
		if err != nil {
			return nil, err
		}
		out = append(out, annots...)
	}
	return out, nil
}

func (e *Extractor) pageAnnotations(p *parser.Page) ([]Annotation, error) {
	arr, ok := e.doc.GetArray(p.Dict, "Annots")
	if !ok {
		return nil, nil
	}
	m := contentstream.DisplayMatrix(p)
	var out []Annotation
	for _, item := range arr.Items {
		obj, err := e.doc.Resolve(item)
		if err != nil {
			return out, err
		}
		dict, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		a := Annotation{Page: p.Number}
		a.Subtype, _ = e.doc.GetName(dict, "Subtype")
		if r, ok := e.doc.GetRect(dict, "Rect"); ok {
			a.Rect = r.Transform(m)
		}
		a.Contents, _ = e.doc.GetText(dict, "Contents")
		if c, ok := e.doc.GetArray(dict, "C"); ok {
			a.Color, _ = e.doc.Floats(c)
		}
		if qp, ok := e.doc.GetArray(dict, "QuadPoints"); ok {
			vals, _ := e.doc.Floats(qp)
			for i := 0; i+8 <= len(vals); i += 8 {
				pts := make([]coords.Point, 4)
				for j := range pts {
					pts[j] = m.Transform(coords.Point{X: vals[i+2*j], Y: vals[i+2*j+1]})
				}
				a.QuadPoints = append(a.QuadPoints, coords.RectFromPoints(pts...))
			}
		}
		a.URI = e.annotationURI(dict)
		out = append(out, a)
	}
	return out, nil
}

func (e *Extractor) annotationURI(dict *raw.DictObj) string {
	if uri, ok := e.doc.GetText(dict, "URI"); ok {
		return uri
	}
	action, ok := e.doc.GetDict(dict, "A")
	if !ok {
		return ""
	}
	if s, _ := e.doc.GetName(action, "S"); s == "URI" {
		uri, _ := e.doc.GetText(action, "URI")
		return uri
	}
	return ""
}
